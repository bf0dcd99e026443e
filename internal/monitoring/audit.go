// Package monitoring records query audit events.
package monitoring

import (
	"context"
	"time"

	"github.com/paperlens-ai/paperlens/internal/observability"
	"github.com/paperlens-ai/paperlens/internal/storage"
)

// Query statuses recorded in the audit log.
const (
	QueryStatusOK        = "ok"
	QueryStatusNoResults = "no_results"
	QueryStatusDegraded  = "degraded"
	QueryStatusError     = "error"
)

// QueryLogStore is the slice of storage the auditor needs.
type QueryLogStore interface {
	SaveQueryLog(ctx context.Context, entry *storage.QueryLog) error
	ListQueryLogs(ctx context.Context, limit int) ([]storage.QueryLog, error)
}

// QueryEvent is one question/answer exchange to audit.
type QueryEvent struct {
	Question     string
	Answer       string
	DocumentIDs  []string
	MatchedIDs   []string
	Similarities []float64
	Latency      time.Duration
	Status       string
}

// QueryAuditor persists query events. Auditing is best effort: a failed
// write is logged and never fails the query itself.
type QueryAuditor struct {
	store QueryLogStore
	log   *observability.Logger
}

// NewQueryAuditor creates a QueryAuditor.
func NewQueryAuditor(store QueryLogStore, log *observability.Logger) *QueryAuditor {
	return &QueryAuditor{store: store, log: log}
}

// Record writes one audit entry.
func (a *QueryAuditor) Record(ctx context.Context, evt QueryEvent) {
	status := evt.Status
	if status == "" {
		status = QueryStatusOK
	}

	entry := &storage.QueryLog{
		Question:     evt.Question,
		Answer:       evt.Answer,
		DocumentIDs:  evt.DocumentIDs,
		MatchedIDs:   evt.MatchedIDs,
		Similarities: evt.Similarities,
		LatencyMS:    evt.Latency.Milliseconds(),
		Status:       status,
	}

	if err := a.store.SaveQueryLog(ctx, entry); err != nil {
		a.log.Warn().Err(err).Msg("Failed to write query audit log")
	}
}

// Recent returns the newest audit entries.
func (a *QueryAuditor) Recent(ctx context.Context, limit int) ([]storage.QueryLog, error) {
	return a.store.ListQueryLogs(ctx, limit)
}
