package offline

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// QueueItem is one captured operation waiting for connectivity. Items are
// applied in capture order; OpID is the idempotency key the remote side
// claims so a replay after a mid-flush disconnect cannot double-apply.
type QueueItem struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	OpID        string    `gorm:"uniqueIndex;size:64" json:"op_id"`
	Kind        string    `gorm:"size:64;not null" json:"kind"`
	Payload     string    `json:"payload"`
	Attempts    int       `json:"attempts"`
	Quarantined bool      `gorm:"index" json:"quarantined"`
	LastError   string    `json:"last_error,omitempty"`
	CapturedAt  time.Time `json:"captured_at"`
}

// Store is the durable queue backing the sync manager. Implementations must
// preserve capture order for Pending.
type Store interface {
	Enqueue(item *QueueItem) error
	// Pending returns non-quarantined items in capture order.
	Pending() ([]*QueueItem, error)
	PendingCount() (int64, error)
	MarkFailure(id uint, attempts int, lastError string) error
	Quarantine(id uint, lastError string) error
	Remove(id uint) error
	// Quarantined returns items parked after exhausting their retries.
	Quarantined() ([]*QueueItem, error)
}

type gormStore struct {
	db *gorm.DB
}

// NewStore opens (or creates) the durable queue at path. Use ":memory:" for
// an ephemeral store in tests.
func NewStore(path string) (Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open offline queue at %s: %w", path, err)
	}
	if err := db.AutoMigrate(&QueueItem{}); err != nil {
		return nil, fmt.Errorf("migrate offline queue: %w", err)
	}
	return &gormStore{db: db}, nil
}

var _ Store = (*gormStore)(nil)

func (s *gormStore) Enqueue(item *QueueItem) error {
	if item.CapturedAt.IsZero() {
		item.CapturedAt = time.Now()
	}
	if err := s.db.Create(item).Error; err != nil {
		return fmt.Errorf("enqueue operation: %w", err)
	}
	return nil
}

func (s *gormStore) Pending() ([]*QueueItem, error) {
	var items []*QueueItem
	err := s.db.Where("quarantined = ?", false).Order("id").Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("list pending operations: %w", err)
	}
	return items, nil
}

func (s *gormStore) PendingCount() (int64, error) {
	var count int64
	err := s.db.Model(&QueueItem{}).Where("quarantined = ?", false).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count pending operations: %w", err)
	}
	return count, nil
}

func (s *gormStore) MarkFailure(id uint, attempts int, lastError string) error {
	err := s.db.Model(&QueueItem{}).Where("id = ?", id).
		Updates(map[string]any{"attempts": attempts, "last_error": lastError}).Error
	if err != nil {
		return fmt.Errorf("record operation failure: %w", err)
	}
	return nil
}

func (s *gormStore) Quarantine(id uint, lastError string) error {
	err := s.db.Model(&QueueItem{}).Where("id = ?", id).
		Updates(map[string]any{"quarantined": true, "last_error": lastError}).Error
	if err != nil {
		return fmt.Errorf("quarantine operation: %w", err)
	}
	return nil
}

func (s *gormStore) Remove(id uint) error {
	if err := s.db.Delete(&QueueItem{}, id).Error; err != nil {
		return fmt.Errorf("remove applied operation: %w", err)
	}
	return nil
}

func (s *gormStore) Quarantined() ([]*QueueItem, error) {
	var items []*QueueItem
	err := s.db.Where("quarantined = ?", true).Order("id").Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("list quarantined operations: %w", err)
	}
	return items, nil
}
