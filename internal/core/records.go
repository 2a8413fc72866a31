package core

import (
	"time"

	"scalper/internal/journal"
	"scalper/internal/lifecycle"
	"scalper/internal/risk"
	"scalper/internal/schema"
	"scalper/internal/state"
)

func signalEntry(sig schema.Signal, decision risk.Decision) journal.Entry {
	rec := &journal.SignalRecord{
		SignalID:   sig.ID,
		Symbol:     sig.Symbol,
		Action:     sig.Action.String(),
		Confidence: sig.Confidence,
		Reason:     sig.Reason,
		Accepted:   decision.Accepted(),
		ReceivedAt: sig.ReceivedAt,
	}
	if !decision.Accepted() {
		rec.RejectReason = decision.Reason.String()
	}
	return journal.Entry{Type: schema.EventSignal, Signal: rec}
}

func openEntry(pos schema.Position, signalID string) journal.Entry {
	return journal.Entry{Type: schema.EventPositionOpen, Trade: &journal.TradeRecord{
		Ticket:     pos.Ticket,
		SignalID:   signalID,
		Symbol:     pos.Symbol,
		Side:       pos.Side.String(),
		Lots:       pos.Lots,
		EntryPrice: pos.CostBasis(),
		StopLoss:   pos.StopLoss,
		TP1:        pos.TakeProfits[0],
		TP2:        pos.TakeProfits[1],
		TP3:        pos.TakeProfits[2],
		Tag:        pos.Tag,
		Status:     journal.StatusOpen,
		FinalStage: pos.Stage.String(),
		OpenedAt:   pos.OpenedAt,
	}}
}

func exitEntry(exit lifecycle.Exit, at time.Time) journal.Entry {
	return journal.Entry{Type: schema.EventPartialExit, Exit: &journal.ExitRecord{
		Ticket: exit.Ticket,
		Kind:   "partial",
		Tag:    exit.Tag,
		Lots:   exit.Lots,
		Price:  exit.Price,
		At:     at,
	}}
}

func stopEntry(move lifecycle.StopMove, at time.Time) journal.Entry {
	return journal.Entry{Type: schema.EventStopMove, Exit: &journal.ExitRecord{
		Ticket:   move.Ticket,
		Kind:     move.Kind,
		StopFrom: move.From,
		StopTo:   move.To,
		At:       at,
	}}
}

func closeEntry(pos schema.Position, pnl float64, at time.Time) journal.Entry {
	return journal.Entry{Type: schema.EventPositionClose, Close: &journal.TradeClose{
		Ticket:     pos.Ticket,
		FinalStage: pos.Stage.String(),
		PnL:        pnl,
		ClosedAt:   at,
	}}
}

func breakerEntry(t schema.EventType, symbol string, st *state.EngineState, threshold float64, at time.Time) journal.Entry {
	kind := "reset"
	pnl := st.Daily.PnL(st.Worth())
	if t == schema.EventBreakerHalt {
		kind = "halt"
		pnl = st.HaltedPnL
	}
	return journal.Entry{Type: t, Risk: &journal.RiskEventRecord{
		Kind:            kind,
		Symbol:          symbol,
		DayStartBalance: st.Daily.DayStartBalance,
		PnL:             pnl,
		Threshold:       threshold,
		At:              at,
	}}
}
