package chathub

import (
	"context"
	"dealchat/backend/internal/config"
	"dealchat/backend/internal/models"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// MessageAppender durably stores one message.
type MessageAppender interface {
	Append(ctx context.Context, msg models.ChatMessage) error
}

// PersisterConfig holds persistence worker pool configuration.
type PersisterConfig struct {
	Workers   int
	QueueSize int
	// Timeout bounds a single Append call.
	Timeout time.Duration
}

// DefaultPersisterConfig returns the default persistence configuration.
func DefaultPersisterConfig() PersisterConfig {
	return PersisterConfig{
		Workers:   config.DefaultPersistWorkers,
		QueueSize: config.DefaultPersistQueue,
		Timeout:   config.DefaultPersistTimeout,
	}
}

// PersistStats reports persistence outcomes.
type PersistStats struct {
	Persisted uint64 `json:"persisted"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
	Queued    int    `json:"queued"`
}

// Persister writes relayed messages to durable storage in the background.
// Delivery never waits on it; failures are logged and counted.
type Persister struct {
	store  MessageAppender
	config PersisterConfig
	queue  chan models.ChatMessage
	wg     sync.WaitGroup

	mu      sync.RWMutex
	running bool
	stopped bool

	persisted, failed, dropped atomic.Uint64
}

func NewPersister(store MessageAppender, cfg PersisterConfig) *Persister {
	def := DefaultPersisterConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Persister{
		store:  store,
		config: cfg,
		queue:  make(chan models.ChatMessage, cfg.QueueSize),
	}
}

// Start launches the workers. Calling Start twice is a no-op.
func (p *Persister) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running || p.stopped {
		return
	}
	p.running = true

	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.work()
		}()
	}
	log.Info().Str("module", "persister").Int("workers", p.config.Workers).Msg("persistence workers started")
}

func (p *Persister) work() {
	for msg := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.config.Timeout)
		err := p.store.Append(ctx, msg)
		cancel()
		if err != nil {
			p.failed.Add(1)
			log.Error().Str("module", "persister").
				Str("room_id", msg.RoomID).
				Str("message_id", msg.ID).
				Err(err).
				Msg("message not persisted")
			continue
		}
		p.persisted.Add(1)
	}
}

// Enqueue schedules msg for persistence without blocking. It reports false
// when the message had to be dropped.
func (p *Persister) Enqueue(msg models.ChatMessage) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		p.dropped.Add(1)
		log.Error().Str("module", "persister").Str("room_id", msg.RoomID).Str("message_id", msg.ID).
			Err(models.ErrStoreUnavailable).Msg("persister stopped, message dropped")
		return false
	}
	select {
	case p.queue <- msg:
		return true
	default:
		p.dropped.Add(1)
		log.Error().Str("module", "persister").Str("room_id", msg.RoomID).Str("message_id", msg.ID).
			Err(models.ErrStoreUnavailable).Msg("persistence queue full, message dropped")
		return false
	}
}

// Stop closes the queue and waits for queued messages to drain or ctx to end.
func (p *Persister) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Str("module", "persister").Msg("persistence queue drained")
		return nil
	case <-ctx.Done():
		log.Warn().Str("module", "persister").Int("pending", len(p.queue)).Msg("timeout waiting for persistence queue to drain")
		return ctx.Err()
	}
}

func (p *Persister) Stats() PersistStats {
	return PersistStats{
		Persisted: p.persisted.Load(),
		Failed:    p.failed.Load(),
		Dropped:   p.dropped.Load(),
		Queued:    len(p.queue),
	}
}
