package main

import (
	"care-chat/domain"
	"care-chat/infrastructure/storage"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/database"
	"github.com/olekukonko/tablewriter"
)

func main() {
	dbPath := flag.String("db", database.DefaultPath, "Path to badger DB")
	a := flag.String("a", "", "First participant of the thread (optional)")
	b := flag.String("b", "", "Second participant of the thread (optional)")
	flag.Parse()

	prefix, err := scanPrefix(*a, *b)
	if err != nil {
		log.Fatal(err)
	}

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Sent", "Sender", "Receiver", "Type", "Seq", "Message"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			err := item.Value(func(v []byte) error {
				m, err := storage.DecodeMessage(v)
				if err != nil {
					fmt.Printf("Error decoding key %s: %v\n", string(item.Key()), err)
					return nil
				}
				table.Append([]string{
					string(item.Key()),
					m.CreatedAt.Format("2006-01-02 15:04:05.000"),
					short(m.Sender.String()),
					short(m.Receiver.String()),
					string(m.ReceiverType),
					strconv.FormatUint(m.Seq, 10),
					m.Content,
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	table.Render()
}

// scanPrefix narrows the scan to one thread when both participants are given.
func scanPrefix(a, b string) (string, error) {
	if a == "" && b == "" {
		return storage.ThreadPrefix, nil
	}
	first, err := domain.ParseParticipantID(a)
	if err != nil {
		return "", err
	}
	second, err := domain.ParseParticipantID(b)
	if err != nil {
		return "", err
	}
	return storage.ThreadPrefix + domain.ThreadOf(first, second).Key() + ":", nil
}

// short keeps the last 8 hex digits, where ObjectIDs differ most.
func short(id string) string {
	if len(id) > 8 {
		return "…" + id[len(id)-8:]
	}
	return id
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)

	db, err := badger.Open(opts)
	if err != nil && strings.Contains(err.Error(), "Log truncate required") {
		return nil, fmt.Errorf("database needs recovery, start the relay once on %s: %w", path, err)
	}
	return db, err
}
