package codec

import (
	"bytes"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"scalper/internal/schema"
	"scalper/pkg/exception"
)

// Message types carried on the signal channel.
const (
	TypeSignal            = "signal"
	TypeHeartbeat         = "heartbeat"
	TypeHeartbeatResponse = "heartbeat_response"
	TypeResponse          = "response"
)

// Kind is the decoded category of an inbound frame.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindSignal
	KindHeartbeatReply
)

// Message is a decoded inbound frame. Only the field matching Kind is set.
type Message struct {
	Kind   Kind
	Signal schema.Signal
	Reply  schema.HeartbeatReply
}

// DecodeError reports a schema violation in an inbound frame.
type DecodeError struct {
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return "decode: " + e.Err.Error()
	}
	return "decode " + e.Field + ": " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

type wireMessage struct {
	Type string `json:"type"`

	SignalID   string           `json:"signal_id"`
	Symbol     *string          `json:"symbol"`
	Action     *string          `json:"action"`
	Confidence *decimal.Decimal `json:"confidence"`
	Reason     string           `json:"reason"`

	Status          string  `json:"status"`
	ServerTime      int64   `json:"server_time"`
	ClientTimestamp int64   `json:"client_timestamp"`
	AvgLatencyMs    float64 `json:"avg_latency_ms"`
}

var one = decimal.NewFromInt(1)

// Decode parses an inbound frame. Frames without a type are treated as signals.
// Schema violations are returned as *DecodeError.
func Decode(payload []byte, receivedAt time.Time) (Message, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return Message{}, &DecodeError{Err: exception.ErrSignalEmptyPayload}
	}
	var w wireMessage
	if err := sonic.ConfigDefault.Unmarshal(payload, &w); err != nil {
		return Message{}, &DecodeError{Err: exception.ErrSignalMalformed}
	}

	switch strings.ToLower(w.Type) {
	case "", TypeSignal:
		sig, err := w.signal(receivedAt)
		if err != nil {
			return Message{}, err
		}
		return Message{Kind: KindSignal, Signal: sig}, nil
	case TypeHeartbeatResponse, TypeResponse:
		return Message{
			Kind: KindHeartbeatReply,
			Reply: schema.HeartbeatReply{
				Status:          w.Status,
				ServerTime:      w.ServerTime,
				ClientTimestamp: w.ClientTimestamp,
				AvgLatencyMs:    w.AvgLatencyMs,
			},
		}, nil
	default:
		return Message{}, &DecodeError{Field: "type", Err: exception.ErrSignalUnknownType}
	}
}

func (w wireMessage) signal(receivedAt time.Time) (schema.Signal, error) {
	if w.Symbol == nil || strings.TrimSpace(*w.Symbol) == "" {
		return schema.Signal{}, &DecodeError{Field: "symbol", Err: exception.ErrSignalMissingField}
	}
	if w.Action == nil {
		return schema.Signal{}, &DecodeError{Field: "action", Err: exception.ErrSignalMissingField}
	}
	if w.Confidence == nil {
		return schema.Signal{}, &DecodeError{Field: "confidence", Err: exception.ErrSignalMissingField}
	}

	action, ok := schema.ParseAction(*w.Action)
	if !ok {
		if strings.EqualFold(strings.TrimSpace(*w.Action), "HOLD") {
			return schema.Signal{}, &DecodeError{Field: "action", Err: exception.ErrSignalHold}
		}
		return schema.Signal{}, &DecodeError{Field: "action", Err: exception.ErrSignalInvalidAction}
	}

	conf := *w.Confidence
	if conf.IsNegative() || conf.GreaterThan(one) {
		return schema.Signal{}, &DecodeError{Field: "confidence", Err: exception.ErrSignalInvalidConfidence}
	}

	id := w.SignalID
	if id == "" {
		id = uuid.NewString()
	}
	return schema.Signal{
		ID:         id,
		Symbol:     strings.TrimSpace(*w.Symbol),
		Action:     action,
		Confidence: conf.InexactFloat64(),
		Reason:     w.Reason,
		ReceivedAt: receivedAt,
	}, nil
}
