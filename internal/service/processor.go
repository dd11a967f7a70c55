package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/studiobell/dispatch/internal/audit"
	"github.com/studiobell/dispatch/internal/model"
	"github.com/studiobell/dispatch/internal/ratelimit"
	"github.com/studiobell/dispatch/internal/repo"
)

// SendClient is the delivery adapter boundary: it performs the actual send
// over the messaging channel. Errors should be *model.DeliveryError so the
// processor can tell transient from permanent failures; anything else is
// treated as transient.
type SendClient interface {
	Send(ctx context.Context, recipient, text string) error
}

// ProcessorConfig tunes a Processor. Zero values get defaults.
type ProcessorConfig struct {
	// SendTimeout bounds a single adapter call so a hung adapter cannot
	// starve a worker. Default 10s.
	SendTimeout time.Duration
	// StaleAfter is how long an entry may sit in processing before the
	// sweep reclaims it. Default 5m.
	StaleAfter time.Duration
	// Workers is how many concurrent drain goroutines a Tick runs. Default 1.
	Workers int
	Audit   audit.Sink
	Logger  *slog.Logger
	Now     func() time.Time
}

// Processor drives queue entries from pending to a terminal or retry state.
type Processor struct {
	store   repo.QueueRepository
	limiter ratelimit.Limiter
	client  SendClient
	cfg     ProcessorConfig
}

func NewProcessor(store repo.QueueRepository, limiter ratelimit.Limiter, client SendClient, cfg ProcessorConfig) (*Processor, error) {
	if store == nil {
		return nil, errors.New("store must not be nil")
	}
	if limiter == nil {
		return nil, errors.New("limiter must not be nil")
	}
	if client == nil {
		return nil, errors.New("client must not be nil")
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 5 * time.Minute
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Audit == nil {
		cfg.Audit = audit.NopSink{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Processor{store: store, limiter: limiter, client: client, cfg: cfg}, nil
}

// RunCycle claims and resolves a single entry. Returns false when the queue
// had nothing eligible.
func (p *Processor) RunCycle(ctx context.Context) (bool, error) {
	entry, err := p.store.ClaimNext(ctx)
	if err != nil {
		return false, fmt.Errorf("claim: %w", err)
	}
	if entry == nil {
		return false, nil
	}

	allowed, retryAfter, err := p.limiter.TryAcquire(ctx, entry.Recipient)
	if err != nil {
		// Limiter outage: put the entry back untouched and retry shortly.
		p.release(ctx, entry, 5*time.Second)
		return true, fmt.Errorf("rate limiter: %w", err)
	}
	if !allowed {
		p.release(ctx, entry, retryAfter)
		p.audit(ctx, audit.ActionDeferred, entry, retryAfter.String())
		return true, nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, p.cfg.SendTimeout)
	sendErr := p.client.Send(sendCtx, entry.Recipient, entry.Text)
	cancel()

	if sendErr == nil {
		if err := p.store.RecordSuccess(ctx, entry.ID); err != nil {
			return true, p.reconcile(ctx, entry, err)
		}
		p.audit(ctx, audit.ActionSent, entry, "")
		return true, nil
	}

	if model.IsPermanentDelivery(sendErr) {
		if err := p.store.RecordPermanentFailure(ctx, entry.ID, sendErr.Error()); err != nil {
			return true, p.reconcile(ctx, entry, err)
		}
		p.audit(ctx, audit.ActionFailed, entry, sendErr.Error())
		return true, nil
	}

	retryAt := p.cfg.Now().Add(RetryDelay(entry.Attempts + 1))
	if err := p.store.RecordFailure(ctx, entry.ID, sendErr.Error(), retryAt); err != nil {
		return true, p.reconcile(ctx, entry, err)
	}
	if entry.Attempts+1 >= entry.MaxAttempts {
		p.audit(ctx, audit.ActionFailed, entry, sendErr.Error())
	} else {
		p.audit(ctx, audit.ActionRetryScheduled, entry, sendErr.Error())
	}
	return true, nil
}

// Drain keeps claiming until the store runs dry or the context ends.
func (p *Processor) Drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		processed, err := p.RunCycle(ctx)
		if err != nil {
			p.cfg.Logger.Error("processor cycle failed", "err", err)
			return
		}
		if !processed {
			return
		}
	}
}

// SweepStale reclaims entries stuck in processing longer than StaleAfter.
func (p *Processor) SweepStale(ctx context.Context) {
	n, err := p.store.ReclaimStale(ctx, p.cfg.StaleAfter)
	if err != nil {
		p.cfg.Logger.Error("stale sweep failed", "err", err)
		return
	}
	if n > 0 {
		p.cfg.Logger.Warn("reclaimed stale claims", "count", n)
		p.cfg.Audit.Record(ctx, audit.Event{Action: audit.ActionReclaimed, Detail: fmt.Sprintf("%d entries", n)})
	}
}

// Tick is one scheduler cycle: sweep stale claims, then drain with the
// configured number of concurrent workers. Workers only share the store,
// whose conditional updates keep claims exclusive.
func (p *Processor) Tick(ctx context.Context) {
	p.SweepStale(ctx)

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Drain(ctx)
		}()
	}
	wg.Wait()
}

// release reverts a claim without counting an attempt.
func (p *Processor) release(ctx context.Context, entry *model.QueueEntry, after time.Duration) {
	if err := p.store.Defer(ctx, entry.ID, p.cfg.Now().Add(after)); err != nil {
		if !errors.Is(err, model.ErrAlreadyResolved) {
			p.cfg.Logger.Error("defer failed", "entry_id", entry.ID, "err", err)
		}
	}
}

// reconcile handles outcome writes that found the entry no longer claimed:
// a cancel (or stale reclaim) won the race and its state stands.
func (p *Processor) reconcile(ctx context.Context, entry *model.QueueEntry, err error) error {
	if errors.Is(err, model.ErrAlreadyResolved) {
		p.audit(ctx, audit.ActionCancelled, entry, "resolved mid-flight")
		return nil
	}
	return fmt.Errorf("record outcome for %s: %w", entry.ID, err)
}

func (p *Processor) audit(ctx context.Context, action string, entry *model.QueueEntry, detail string) {
	p.cfg.Audit.Record(ctx, audit.Event{
		Action:      action,
		EntryID:     entry.ID,
		Recipient:   entry.Recipient,
		MessageType: entry.MessageType,
		Detail:      detail,
	})
}
