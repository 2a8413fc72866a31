package journal

import (
	"context"
	"sync"

	"github.com/yanun0323/errors"
	"gorm.io/gorm"

	"scalper/internal/schema"
	"scalper/pkg/conn"
	"scalper/pkg/exception"
)

// Store writes journal entries synchronously.
type Store interface {
	Write(ctx context.Context, e Entry) error
	Close() error
}

// Recorder accepts entries without blocking the caller.
type Recorder interface {
	Record(e Entry) error
}

// GormStore persists entries to PostgreSQL.
type GormStore struct {
	client *conn.Client
}

// NewGormStore connects and migrates the journal tables.
func NewGormStore(dsn string) (*GormStore, error) {
	client, err := conn.New(conn.Option{ConnString: dsn})
	if err != nil {
		return nil, errors.Wrap(err, "connect journal db")
	}
	if err := client.DB().AutoMigrate(Models()...); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "migrate journal tables")
	}
	return &GormStore{client: client}, nil
}

// Write inserts or updates the row described by e.
func (s *GormStore) Write(ctx context.Context, e Entry) error {
	db := s.client.DB().WithContext(ctx)
	switch {
	case e.Signal != nil:
		return db.Create(e.Signal).Error
	case e.Trade != nil:
		return db.Create(e.Trade).Error
	case e.Exit != nil:
		return db.Create(e.Exit).Error
	case e.Risk != nil:
		return db.Create(e.Risk).Error
	case e.Close != nil:
		return closeTrade(db, e.Close)
	default:
		return errors.Wrap(exception.ErrInvalidArgument, "empty journal entry").With("type", e.Type.String())
	}
}

func closeTrade(db *gorm.DB, c *TradeClose) error {
	res := db.Model(&TradeRecord{}).Where("ticket = ?", c.Ticket).Updates(map[string]any{
		"status":      StatusClosed,
		"final_stage": c.FinalStage,
		"pnl":         c.PnL,
		"closed_at":   c.ClosedAt,
	})
	if res.Error != nil {
		return errors.Wrap(res.Error, "close trade").With("ticket", c.Ticket)
	}
	return nil
}

// Close releases the connection pool.
func (s *GormStore) Close() error {
	return s.client.Close()
}

// MemoryStore keeps entries in memory. It is used when no database is configured.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
	trades  map[uint64]*TradeRecord
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{trades: make(map[uint64]*TradeRecord)}
}

// Write appends e and tracks trade status.
func (s *MemoryStore) Write(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	switch {
	case e.Trade != nil:
		t := *e.Trade
		s.trades[t.Ticket] = &t
	case e.Close != nil:
		if t, ok := s.trades[e.Close.Ticket]; ok {
			closedAt := e.Close.ClosedAt
			t.Status = StatusClosed
			t.FinalStage = e.Close.FinalStage
			t.PnL = e.Close.PnL
			t.ClosedAt = &closedAt
		}
	}
	return nil
}

// Record writes e synchronously.
func (s *MemoryStore) Record(e Entry) error {
	return s.Write(context.Background(), e)
}

// Entries returns a copy of every entry written.
func (s *MemoryStore) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Count returns the number of entries of type t.
func (s *MemoryStore) Count(t schema.EventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if e.Type == t {
			n++
		}
	}
	return n
}

// Trade returns the tracked trade for ticket.
func (s *MemoryStore) Trade(ticket uint64) (TradeRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trades[ticket]
	if !ok {
		return TradeRecord{}, false
	}
	return *t, true
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
