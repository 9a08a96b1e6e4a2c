package ledger

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/manpreetbhatti/sketchroom/internal/db"
)

// Store is the persistence the ledger flushes into.
type Store interface {
	RecordEvents(events []db.Event) error
	PruneEventsBefore(t time.Time) (int64, error)
}

type Config struct {
	Interval  time.Duration
	BatchSize int
	QueueSize int
	Retention time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:  5 * time.Second,
		BatchSize: 256,
		QueueSize: 4096,
		Retention: 30 * 24 * time.Hour,
	}
}

// Service collects room activity off the hot path and writes it to the
// database in batches. Record never blocks; when the queue is full the
// event is counted as dropped.
type Service struct {
	store   Store
	config  Config
	queue   chan db.Event
	stop    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
	dropped atomic.Int64
	written atomic.Int64
}

func New(store Store, config Config) *Service {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultConfig().QueueSize
	}
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	return &Service{
		store:  store,
		config: config,
		queue:  make(chan db.Event, config.QueueSize),
		stop:   make(chan struct{}),
	}
}

func (s *Service) Start() {
	s.wg.Add(1)
	go s.run()
	slog.Info("ledger started", "interval", s.config.Interval, "retention", s.config.Retention)
}

// Stop flushes everything queued so far and waits for the writer to exit.
func (s *Service) Stop() {
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
	slog.Info("ledger stopped", "written", s.written.Load(), "dropped", s.dropped.Load())
}

func (s *Service) Record(ev db.Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	select {
	case s.queue <- ev:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (s *Service) Dropped() int64 {
	return s.dropped.Load()
}

func (s *Service) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.prune()

	batch := make([]db.Event, 0, s.config.BatchSize)
	flushes := 0
	for {
		select {
		case <-s.stop:
			s.drain(batch)
			return
		case ev := <-s.queue:
			batch = append(batch, ev)
			if len(batch) >= s.config.BatchSize {
				batch = s.flush(batch)
			}
		case <-ticker.C:
			batch = s.flush(batch)
			flushes++
			if flushes%720 == 0 {
				s.prune()
			}
		}
	}
}

func (s *Service) drain(batch []db.Event) {
	for {
		select {
		case ev := <-s.queue:
			batch = append(batch, ev)
		default:
			s.flush(batch)
			return
		}
	}
}

func (s *Service) flush(batch []db.Event) []db.Event {
	if len(batch) == 0 {
		return batch
	}
	if err := s.store.RecordEvents(batch); err != nil {
		slog.Error("ledger flush failed", "events", len(batch), "error", err)
	} else {
		s.written.Add(int64(len(batch)))
	}
	return batch[:0]
}

func (s *Service) prune() {
	if s.config.Retention <= 0 {
		return
	}
	n, err := s.store.PruneEventsBefore(time.Now().Add(-s.config.Retention))
	if err != nil {
		slog.Error("ledger prune failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("ledger pruned", "events", n)
	}
}
