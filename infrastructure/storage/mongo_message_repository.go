package storage

import (
	"care-chat/domain"
	"care-chat/errors"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const chatsCollection = "chats"

// mongoMessage is the document layout of the chats collection.
type mongoMessage struct {
	ID           primitive.ObjectID `bson:"_id"`
	Sender       primitive.ObjectID `bson:"sender"`
	Receiver     primitive.ObjectID `bson:"receiver"`
	ReceiverType string             `bson:"receiverType"`
	Message      string             `bson:"message"`
	Seq          int64              `bson:"seq"`
	CreatedAt    time.Time          `bson:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt"`
}

// MongoMessageRepository stores messages in MongoDB.
// BSON dates have millisecond precision, so timestamps advance by at least one millisecond.
type MongoMessageRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
	log        *slog.Logger
	stamper    *stamper
}

func NewMongoMessageRepository(ctx context.Context, uri, database string, log *slog.Logger) (*MongoMessageRepository, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err = client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	collection := client.Database(database).Collection(chatsCollection)
	_, err = collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "sender", Value: 1}, {Key: "receiver", Value: 1}, {Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "receiver", Value: 1}, {Key: "sender", Value: 1}, {Key: "createdAt", Value: 1}}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo indexes: %w", err)
	}

	st := newStamper(time.Millisecond, nil)
	var newest mongoMessage
	err = collection.FindOne(ctx, bson.M{}, options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}})).Decode(&newest)
	switch {
	case err == nil:
		st.resume(newest.CreatedAt)
	case !stderrors.Is(err, mongo.ErrNoDocuments):
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo newest message: %w", err)
	}

	return &MongoMessageRepository{
		client:     client,
		collection: collection,
		log:        log,
		stamper:    st,
	}, nil
}

func (r *MongoMessageRepository) Append(ctx context.Context, draft domain.Draft) (domain.Message, error) {
	sender, receiver, err := objectIDs(draft.Sender, draft.Receiver)
	if err != nil {
		return domain.Message{}, err
	}
	st, err := r.stamper.next()
	if err != nil {
		return domain.Message{}, errors.StoreUnavailable(err)
	}

	doc := mongoMessage{
		ID:           primitive.NewObjectID(),
		Sender:       sender,
		Receiver:     receiver,
		ReceiverType: string(draft.ReceiverType),
		Message:      draft.Content,
		Seq:          int64(st.Seq),
		CreatedAt:    st.At,
		UpdatedAt:    st.At,
	}
	if _, err = r.collection.InsertOne(ctx, doc); err != nil {
		return domain.Message{}, errors.StoreUnavailable(err)
	}
	return toMessage(doc), nil
}

func (r *MongoMessageRepository) Thread(ctx context.Context, a, b domain.ParticipantID) ([]domain.Message, error) {
	first, second, err := objectIDs(a, b)
	if err != nil {
		return nil, err
	}
	filter := bson.M{"$or": bson.A{
		bson.M{"sender": first, "receiver": second},
		bson.M{"sender": second, "receiver": first},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "seq", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.StoreUnavailable(err)
	}
	var docs []mongoMessage
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, errors.StoreUnavailable(err)
	}

	messages := make([]domain.Message, 0, len(docs))
	for _, doc := range docs {
		messages = append(messages, toMessage(doc))
	}
	return messages, nil
}

func (r *MongoMessageRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.client.Disconnect(ctx)
}

func objectIDs(a, b domain.ParticipantID) (primitive.ObjectID, primitive.ObjectID, error) {
	first, err := primitive.ObjectIDFromHex(a.String())
	if err != nil {
		return primitive.NilObjectID, primitive.NilObjectID, errors.Validation(errors.ErrInvalidParticipantID)
	}
	second, err := primitive.ObjectIDFromHex(b.String())
	if err != nil {
		return primitive.NilObjectID, primitive.NilObjectID, errors.Validation(errors.ErrInvalidParticipantID)
	}
	return first, second, nil
}

func toMessage(doc mongoMessage) domain.Message {
	return domain.Message{
		ID:           doc.ID.Hex(),
		Sender:       domain.ParticipantID(doc.Sender.Hex()),
		Receiver:     domain.ParticipantID(doc.Receiver.Hex()),
		ReceiverType: domain.ReceiverType(doc.ReceiverType),
		Content:      doc.Message,
		CreatedAt:    doc.CreatedAt.UTC(),
		Seq:          uint64(doc.Seq),
	}
}
