package orchestrator

import (
	"context"
	"log/slog"
)

// Event is a progress notification for one run.
type Event struct {
	Event   string `json:"event"`
	RunID   string `json:"run_id"`
	Payload any    `json:"payload,omitempty"`
}

const (
	EventRunStatus  = "run_status"
	EventTaskStatus = "task_status"
	EventTaskOutput = "task_output"
)

// Observer receives run events synchronously, in order.
type Observer interface {
	Notify(ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev Event)

func (f ObserverFunc) Notify(ev Event) { f(ev) }

// LogObserver writes events to a structured logger at debug level, except
// failures which go out as warnings.
type LogObserver struct {
	Logger *slog.Logger
}

func (o LogObserver) Notify(ev Event) {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelDebug
	if p, ok := ev.Payload.(map[string]any); ok {
		if _, failed := p["error"]; failed {
			level = slog.LevelWarn
		}
	}
	logger.Log(context.Background(), level, ev.Event, "run", ev.RunID, "payload", ev.Payload)
}
