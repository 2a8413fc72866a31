package journal

import (
	"time"

	"scalper/internal/schema"
)

// SignalRecord is one received signal and its admission outcome.
type SignalRecord struct {
	ID           uint   `gorm:"primaryKey"`
	SignalID     string `gorm:"size:64;index"`
	Symbol       string `gorm:"size:32;index"`
	Action       string `gorm:"size:8"`
	Confidence   float64
	Reason       string
	Accepted     bool
	RejectReason string    `gorm:"size:64"`
	ReceivedAt   time.Time `gorm:"index"`
	CreatedAt    time.Time
}

func (SignalRecord) TableName() string { return "signal_history" }

// TradeRecord is one position from open to close.
type TradeRecord struct {
	ID         uint   `gorm:"primaryKey"`
	Ticket     uint64 `gorm:"uniqueIndex"`
	SignalID   string `gorm:"size:64"`
	Symbol     string `gorm:"size:32;index"`
	Side       string `gorm:"size:8"`
	Lots       float64
	EntryPrice float64
	StopLoss   float64
	TP1        float64
	TP2        float64
	TP3        float64
	Tag        string    `gorm:"size:64"`
	Status     string    `gorm:"size:16;index"`
	FinalStage string    `gorm:"size:8"`
	PnL        float64   `gorm:"column:pnl"`
	OpenedAt   time.Time `gorm:"index"`
	ClosedAt   *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (TradeRecord) TableName() string { return "trade_history" }

// Trade statuses.
const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

// ExitRecord is a partial close or a stop relocation.
type ExitRecord struct {
	ID       uint   `gorm:"primaryKey"`
	Ticket   uint64 `gorm:"index"`
	Kind     string `gorm:"size:16"`
	Tag      string `gorm:"size:16"`
	Lots     float64
	Price    float64
	StopFrom float64
	StopTo   float64
	At       time.Time
}

func (ExitRecord) TableName() string { return "exit_history" }

// RiskEventRecord is a breaker engagement or a daily reset.
type RiskEventRecord struct {
	ID              uint   `gorm:"primaryKey"`
	Kind            string `gorm:"size:16"`
	Symbol          string `gorm:"size:32"`
	DayStartBalance float64
	PnL             float64 `gorm:"column:pnl"`
	Threshold       float64
	At              time.Time `gorm:"index"`
}

func (RiskEventRecord) TableName() string { return "risk_events" }

// TradeClose finalizes a trade record.
type TradeClose struct {
	Ticket     uint64
	FinalStage string
	PnL        float64
	ClosedAt   time.Time
}

// Entry is the unit queued to a store. Exactly one payload is set, matching Type.
type Entry struct {
	Type   schema.EventType `json:"type"`
	Signal *SignalRecord    `json:"signal,omitempty"`
	Trade  *TradeRecord     `json:"trade,omitempty"`
	Exit   *ExitRecord      `json:"exit,omitempty"`
	Close  *TradeClose      `json:"close,omitempty"`
	Risk   *RiskEventRecord `json:"risk,omitempty"`
}

// Models lists every table for migrations.
func Models() []any {
	return []any{&SignalRecord{}, &TradeRecord{}, &ExitRecord{}, &RiskEventRecord{}}
}
