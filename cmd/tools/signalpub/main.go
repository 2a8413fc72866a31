// signalpub serves a Unix socket and publishes synthetic signals to every
// connected engine. Heartbeats from engines are answered so latency checks
// work end to end without the real signal service.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/yanun0323/logs"

	"scalper/internal/codec"
	"scalper/pkg/uds"
)

type signalFrame struct {
	Type       string  `json:"type"`
	SignalID   string  `json:"signal_id"`
	Symbol     string  `json:"symbol"`
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

type heartbeatFrame struct {
	Type            string `json:"type"`
	ClientTimestamp int64  `json:"client_timestamp"`
}

type heartbeatReply struct {
	Type            string  `json:"type"`
	Status          string  `json:"status"`
	ServerTime      int64   `json:"server_time"`
	ClientTimestamp int64   `json:"client_timestamp"`
	AvgLatencyMs    float64 `json:"avg_latency_ms"`
}

func main() {
	path := flag.String("socket", "/tmp/scalper-signals.sock", "Unix socket path to serve")
	symbol := flag.String("symbol", "EURUSD", "Signal symbol")
	action := flag.String("action", "alternate", "BUY, SELL, HOLD or alternate")
	confidence := flag.Float64("confidence", 0.8, "Signal confidence")
	interval := flag.Duration("interval", 5*time.Second, "Publish interval")
	count := flag.Int("count", 0, "Signals to publish (0=unlimited)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := uds.NewServer(*path)
	if err != nil {
		logs.Errorf("create server: %+v", err)
		os.Exit(1)
	}
	if err := srv.Listen(); err != nil {
		logs.Errorf("listen %s: %+v", *path, err)
		os.Exit(1)
	}

	var hub *uds.Hub
	hub = uds.NewHub(srv, func(line []byte) {
		reply, ok := answer(line)
		if !ok {
			return
		}
		hub.Broadcast(reply)
	})
	go func() {
		if err := hub.ServeContext(ctx); err != nil && ctx.Err() == nil {
			logs.Errorf("serve: %+v", err)
			stop()
		}
	}()
	defer hub.Close()

	logs.Infof("publishing to %s every %s", *path, *interval)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	sent := 0
	for *count == 0 || sent < *count {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame := signalFrame{
			Type:       codec.TypeSignal,
			SignalID:   uuid.NewString(),
			Symbol:     *symbol,
			Action:     pick(*action, sent),
			Confidence: *confidence,
			Reason:     "signalpub",
		}
		payload, err := sonic.ConfigFastest.Marshal(frame)
		if err != nil {
			logs.Errorf("marshal signal: %+v", err)
			continue
		}
		n := hub.Broadcast(payload)
		sent++
		logs.Infof("signal %d %s %s -> %d clients", sent, frame.Action, frame.SignalID, n)
	}
}

func pick(action string, n int) string {
	if action != "alternate" {
		return action
	}
	if n%2 == 0 {
		return "BUY"
	}
	return "SELL"
}

// answer builds a heartbeat reply for heartbeat frames. Other frames are logged and ignored.
func answer(line []byte) ([]byte, bool) {
	var hb heartbeatFrame
	if err := sonic.ConfigDefault.Unmarshal(line, &hb); err != nil {
		logs.Warnf("bad frame: %s", line)
		return nil, false
	}
	if hb.Type != codec.TypeHeartbeat {
		logs.Debugf("ignored frame type %q", hb.Type)
		return nil, false
	}
	logs.Infof("heartbeat %s", line)

	now := time.Now()
	reply, err := sonic.ConfigFastest.Marshal(heartbeatReply{
		Type:            codec.TypeHeartbeatResponse,
		Status:          "ok",
		ServerTime:      now.Unix(),
		ClientTimestamp: hb.ClientTimestamp,
		AvgLatencyMs:    float64(now.UnixNano()-hb.ClientTimestamp) / float64(time.Millisecond) / 2,
	})
	if err != nil {
		logs.Errorf("marshal reply: %+v", err)
		return nil, false
	}
	return reply, true
}
