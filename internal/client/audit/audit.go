// Package audit provides lock.AuditSink implementations: structured log
// lines, JSON objects in an S3-compatible bucket, and a fan-out of both.
package audit

import (
	"context"
	"time"

	"github.com/dmitrijs2005/applock/internal/lock"
	"github.com/dmitrijs2005/applock/internal/logging"
	"github.com/google/uuid"
)

// Event is the serialised form of an audit record.
type Event struct {
	ID        string            `json:"id"`
	Principal string            `json:"principal"`
	Name      string            `json:"event"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	At        time.Time         `json:"at"`
}

func newEvent(principal, name string, md map[string]string, at time.Time) Event {
	return Event{
		ID:        uuid.NewString(),
		Principal: principal,
		Name:      name,
		Metadata:  md,
		At:        at.UTC(),
	}
}

// LogSink writes each event as an info line.
type LogSink struct {
	logger logging.Logger
}

func NewLogSink(l logging.Logger) *LogSink {
	return &LogSink{logger: l.With("module", "audit")}
}

func (s *LogSink) Record(ctx context.Context, principal, event string, md map[string]string) {
	args := make([]any, 0, 4+2*len(md))
	args = append(args, "event", event, "principal", principal)
	for k, v := range md {
		args = append(args, k, v)
	}
	s.logger.Info(ctx, "audit", args...)
}

// Multi forwards every event to each sink in order.
type Multi []lock.AuditSink

func (m Multi) Record(ctx context.Context, principal, event string, md map[string]string) {
	for _, s := range m {
		s.Record(ctx, principal, event, md)
	}
}
