package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// SessionCounter reports how many sessions are currently bound.
type SessionCounter interface {
	Count() int
}

// ProcessSample is one reading of the relay's own footprint.
type ProcessSample struct {
	CPUPercent    float64
	MemoryPercent float32
	Sessions      int
	At            time.Time
}

// ProcessMonitorWorker logs CPU, RAM and the bound session count every interval.
type ProcessMonitorWorker struct {
	log      *slog.Logger
	sessions SessionCounter
	interval time.Duration
	samples  chan<- ProcessSample
}

// NewProcessMonitorWorker builds the monitor. samples may be nil; when set it
// receives every reading, dropped if nobody is listening.
func NewProcessMonitorWorker(log *slog.Logger, sessions SessionCounter, interval time.Duration,
	samples chan<- ProcessSample) *ProcessMonitorWorker {
	return &ProcessMonitorWorker{log: log, sessions: sessions, interval: interval, samples: samples}
}

func (w *ProcessMonitorWorker) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping process monitoring")
			return nil
		case <-ticker.C:
			sample, ok := w.sample(p)
			if !ok {
				continue
			}
			w.log.Info("Relay health", "cpu_percent", sample.CPUPercent,
				"ram_percent", sample.MemoryPercent, "sessions", sample.Sessions)
			if w.samples == nil {
				continue
			}
			select {
			case w.samples <- sample:
			default:
				w.log.Debug("Process sample lost")
			}
		}
	}
}

func (w *ProcessMonitorWorker) sample(p *process.Process) (ProcessSample, bool) {
	cpu, err := p.CPUPercent()
	if err != nil {
		w.log.Error("Error while finding process cpu usage", "err", err)
		return ProcessSample{}, false
	}
	ram, err := p.MemoryPercent()
	if err != nil {
		w.log.Error("Error while finding process ram usage", "err", err)
		return ProcessSample{}, false
	}
	return ProcessSample{CPUPercent: cpu, MemoryPercent: ram, Sessions: w.sessions.Count(), At: time.Now().UTC()}, true
}
