package dispatch

import (
	"context"

	"github.com/mattjoyce/labelgw/internal/events"
	"github.com/mattjoyce/labelgw/internal/executor"
	"github.com/mattjoyce/labelgw/internal/journal"
	"github.com/mattjoyce/labelgw/internal/protocol"
)

//go:generate mockgen -destination=mocks/mock_dispatch.go -package=mocks github.com/mattjoyce/labelgw/internal/dispatch Runner,Journal

// Runner executes one print in isolation. *executor.Executor implements it.
type Runner interface {
	Run(req *protocol.Request) executor.Outcome
}

// Journal records the lifecycle of print jobs. *journal.Journal implements it.
type Journal interface {
	Record(ctx context.Context, req journal.RecordRequest) error
	Complete(ctx context.Context, id string, c journal.Completion) error
}

// Publisher fans print events out to listeners. *events.Hub implements it.
type Publisher interface {
	Publish(eventType string, data any) events.Event
}
