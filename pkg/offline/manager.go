package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Applier applies one captured operation against the live backend. It must
// treat item.OpID as an idempotency key: applying the same OpID twice must
// have the effect of applying it once.
type Applier interface {
	Apply(ctx context.Context, item *QueueItem) error
}

// FlushReport summarizes one completed flush pass.
type FlushReport struct {
	Flushed     int `json:"flushed"`
	Quarantined int `json:"quarantined"`
	Remaining   int `json:"remaining"`
}

// Manager captures operations while connectivity is down and replays them in
// capture order when it returns. Flushing is single-flight: overlapping
// connectivity signals fold into the running pass.
type Manager struct {
	store       Store
	applier     Applier
	maxAttempts int
	onFlush     func(FlushReport)
	logger      *zap.Logger

	// Lifecycle context for background flushes. Connectivity signals arrive
	// on request-scoped contexts; a flush must outlive the request that
	// triggered it.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	online   bool
	flushing bool
}

// NewManager creates a sync manager. maxAttempts bounds per-item retries
// before quarantine; onFlush may be nil.
func NewManager(store Store, applier Applier, maxAttempts int, onFlush func(FlushReport), logger *zap.Logger) *Manager {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:       store,
		applier:     applier,
		maxAttempts: maxAttempts,
		onFlush:     onFlush,
		logger:      logger.Named("sync-manager"),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Close stops background flushing. A running pass stops after the in-flight
// item; queued operations stay durable for the next start.
func (m *Manager) Close() {
	m.cancel()
}

// Online reports the last connectivity signal.
func (m *Manager) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline records a connectivity change. A transition to online starts a
// flush in the background; a transition to offline makes a running flush
// stop after the in-flight item. The flush runs on the manager's own
// lifecycle context so it survives the caller returning.
func (m *Manager) SetOnline(online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	m.mu.Unlock()

	if changed {
		m.logger.Info("connectivity changed", zap.Bool("online", online))
	}
	if online {
		go m.Flush(m.ctx)
	}
}

// Capture records one operation. While offline, or while a backlog is still
// draining, the operation is queued so it cannot overtake earlier captures;
// otherwise it applies immediately.
func (m *Manager) Capture(ctx context.Context, kind string, payload any) (queued bool, err error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("encode operation payload: %w", err)
	}

	item := &QueueItem{
		OpID:       uuid.NewString(),
		Kind:       kind,
		Payload:    string(body),
		CapturedAt: time.Now(),
	}

	if m.applyDirect(ctx) {
		if err := m.applier.Apply(ctx, item); err != nil {
			return false, err
		}
		return false, nil
	}

	if err := m.store.Enqueue(item); err != nil {
		return false, err
	}
	m.logger.Debug("operation queued",
		zap.String("op_id", item.OpID),
		zap.String("kind", kind))
	return true, nil
}

// applyDirect reports whether a fresh capture may bypass the queue: online
// and nothing queued ahead of it.
func (m *Manager) applyDirect(ctx context.Context) bool {
	m.mu.Lock()
	online := m.online
	m.mu.Unlock()
	if !online {
		return false
	}

	pending, err := m.store.PendingCount()
	if err != nil {
		m.logger.Warn("failed to count pending operations", zap.Error(err))
		return false
	}
	return pending == 0
}

// Flush drains the queue in capture order. Only one pass runs at a time; a
// second caller returns immediately with an empty report. A failing item is
// retried on later passes until it exhausts maxAttempts, then quarantined so
// the items behind it can proceed.
func (m *Manager) Flush(ctx context.Context) FlushReport {
	m.mu.Lock()
	if m.flushing || !m.online {
		m.mu.Unlock()
		return FlushReport{}
	}
	m.flushing = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.flushing = false
		m.mu.Unlock()
	}()

	var report FlushReport
	for {
		if ctx.Err() != nil || !m.Online() {
			break
		}

		items, err := m.store.Pending()
		if err != nil {
			m.logger.Error("failed to read pending operations", zap.Error(err))
			break
		}
		if len(items) == 0 {
			break
		}

		stalled := false
		for _, item := range items {
			if ctx.Err() != nil || !m.Online() {
				stalled = true
				break
			}
			outcome := m.flushOne(ctx, item)
			if outcome == flushRetry {
				// Keep order: everything behind this item waits for the
				// next pass.
				stalled = true
				break
			}
			if outcome == flushApplied {
				report.Flushed++
			} else {
				report.Quarantined++
			}
		}
		if stalled {
			break
		}
	}

	if remaining, err := m.store.PendingCount(); err == nil {
		report.Remaining = int(remaining)
	}

	if report.Flushed > 0 || report.Quarantined > 0 {
		m.logger.Info("flush pass complete",
			zap.Int("flushed", report.Flushed),
			zap.Int("quarantined", report.Quarantined),
			zap.Int("remaining", report.Remaining))
	}
	if m.onFlush != nil && report.Flushed > 0 {
		m.onFlush(report)
	}
	return report
}

type flushOutcome int

const (
	flushApplied flushOutcome = iota
	flushRetry
	flushQuarantined
)

func (m *Manager) flushOne(ctx context.Context, item *QueueItem) flushOutcome {
	err := m.applier.Apply(ctx, item)
	if err == nil {
		if rmErr := m.store.Remove(item.ID); rmErr != nil {
			m.logger.Error("applied operation could not be removed from queue",
				zap.String("op_id", item.OpID),
				zap.Error(rmErr))
		}
		return flushApplied
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// The pass was interrupted, not the item failing. It keeps its
		// attempt budget and retries on the next pass.
		m.logger.Debug("apply interrupted, will retry",
			zap.String("op_id", item.OpID))
		return flushRetry
	}

	item.Attempts++
	if item.Attempts >= m.maxAttempts {
		m.logger.Warn("operation quarantined after repeated failures",
			zap.String("op_id", item.OpID),
			zap.String("kind", item.Kind),
			zap.Int("attempts", item.Attempts),
			zap.Error(err))
		if qErr := m.store.Quarantine(item.ID, err.Error()); qErr != nil {
			m.logger.Error("failed to quarantine operation", zap.Error(qErr))
		}
		return flushQuarantined
	}

	m.logger.Debug("operation failed, will retry",
		zap.String("op_id", item.OpID),
		zap.Int("attempts", item.Attempts),
		zap.Error(err))
	if mErr := m.store.MarkFailure(item.ID, item.Attempts, err.Error()); mErr != nil {
		m.logger.Error("failed to record operation failure", zap.Error(mErr))
	}
	return flushRetry
}

// Quarantined exposes parked operations for manual review.
func (m *Manager) Quarantined() ([]*QueueItem, error) {
	return m.store.Quarantined()
}
