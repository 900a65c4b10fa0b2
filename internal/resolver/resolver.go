// Package resolver looks up display names of the resources a session is
// scoped to (the selected agent and asset) without ever blocking for long.
package resolver

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/docconnector/internal/logging"
	"github.com/fruitsalade/docconnector/internal/metrics"
	"github.com/fruitsalade/docconnector/internal/protocol"
)

// DefaultTimeout bounds a single resolution.
const DefaultTimeout = 2 * time.Second

// Outcome describes how a resolution ended. Every outcome other than
// Resolved yields an empty name.
type Outcome string

const (
	Resolved Outcome = "resolved"
	NotFound Outcome = "not_found"
	TimedOut Outcome = "timed_out"
	Failed   Outcome = "failed"
)

// ResourceDataClient queries resource data. It is a scoped resource: the
// resolver opens one per lookup and always closes it.
type ResourceDataClient interface {
	Query(ctx context.Context, queries []protocol.ResourceQuery) ([]protocol.ResourceRecord, error)
	Close() error
}

// ClientOpener opens resource data clients.
type ClientOpener interface {
	NewResourceDataClient() ResourceDataClient
}

// Resolver maps a resource selector to its display name.
type Resolver struct {
	opener  ClientOpener
	timeout time.Duration
}

// New creates a resolver. A non-positive timeout means DefaultTimeout.
func New(opener ClientOpener, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Resolver{opener: opener, timeout: timeout}
}

// Resolve returns the name of the resource matched by selector. It never
// fails: a timeout, a missing record or a query error all yield "" and the
// outcome says which one happened.
func (r *Resolver) Resolve(ctx context.Context, selector string) (string, Outcome) {
	client := r.opener.NewResourceDataClient()
	defer func() {
		if err := client.Close(); err != nil {
			logging.Warn("close resource data client", zap.String("selector", selector), zap.Error(err))
		}
	}()

	name, err := FirstOf(ctx, r.timeout, func(ctx context.Context) (string, error) {
		records, err := client.Query(ctx, []protocol.ResourceQuery{{
			Selector: selector,
			Fields:   []string{"name"},
		}})
		if err != nil {
			return "", err
		}
		if len(records) == 0 {
			return "", nil
		}
		return records[0].Data.Name, nil
	})

	outcome := Resolved
	switch {
	case errors.Is(err, ErrTimeout):
		outcome = TimedOut
	case err != nil:
		outcome = Failed
		logging.Warn("resource query failed", zap.String("selector", selector), zap.Error(err))
	case name == "":
		outcome = NotFound
	}

	metrics.RecordResolve(selector, string(outcome))
	logging.Debug("resource resolved",
		zap.String("selector", selector),
		zap.String("name", name),
		zap.String("outcome", string(outcome)))
	return name, outcome
}
