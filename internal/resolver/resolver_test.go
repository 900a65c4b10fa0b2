package resolver

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/fruitsalade/docconnector/internal/logging"
	"github.com/fruitsalade/docconnector/internal/protocol"
)

type fakeClient struct {
	query   func(ctx context.Context, queries []protocol.ResourceQuery) ([]protocol.ResourceRecord, error)
	closed  atomic.Int32
	queries [][]protocol.ResourceQuery
}

func (c *fakeClient) Query(ctx context.Context, queries []protocol.ResourceQuery) ([]protocol.ResourceRecord, error) {
	c.queries = append(c.queries, queries)
	return c.query(ctx, queries)
}

func (c *fakeClient) Close() error {
	c.closed.Add(1)
	return nil
}

type fakeOpener struct {
	client *fakeClient
	opened atomic.Int32
}

func (o *fakeOpener) NewResourceDataClient() ResourceDataClient {
	o.opened.Add(1)
	return o.client
}

func records(name string) []protocol.ResourceRecord {
	return []protocol.ResourceRecord{{Data: protocol.ResourceData{Name: name}}}
}

func TestResolveNeverAnsweringQueryTimesOut(t *testing.T) {
	logging.Replace(zaptest.NewLogger(t))

	cancelled := make(chan struct{})
	client := &fakeClient{query: func(ctx context.Context, _ []protocol.ResourceQuery) ([]protocol.ResourceRecord, error) {
		<-ctx.Done()
		close(cancelled)
		return nil, ctx.Err()
	}}
	opener := &fakeOpener{client: client}
	r := New(opener, 50*time.Millisecond)

	start := time.Now()
	name, outcome := r.Resolve(context.Background(), protocol.SelectorAgent)
	elapsed := time.Since(start)

	if name != "" {
		t.Errorf("expected empty name, got %q", name)
	}
	if outcome != TimedOut {
		t.Errorf("expected TimedOut, got %s", outcome)
	}
	if elapsed > time.Second {
		t.Errorf("resolve took %v, expected about 50ms", elapsed)
	}
	if n := client.closed.Load(); n != 1 {
		t.Errorf("expected client closed exactly once, got %d", n)
	}

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Error("outstanding query was not cancelled after timeout")
	}
}

func TestResolveReturnsNameWithoutWaitingForTimeout(t *testing.T) {
	logging.Replace(zaptest.NewLogger(t))

	client := &fakeClient{query: func(context.Context, []protocol.ResourceQuery) ([]protocol.ResourceRecord, error) {
		return records("X"), nil
	}}
	r := New(&fakeOpener{client: client}, 5*time.Second)

	start := time.Now()
	name, outcome := r.Resolve(context.Background(), protocol.SelectorAsset)

	if name != "X" || outcome != Resolved {
		t.Fatalf("expected (X, resolved), got (%q, %s)", name, outcome)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("resolve waited %v, should not wait for the timeout", elapsed)
	}
	if client.closed.Load() != 1 {
		t.Errorf("expected client closed once, got %d", client.closed.Load())
	}

	q := client.queries[0][0]
	if q.Selector != protocol.SelectorAsset || len(q.Fields) != 1 || q.Fields[0] != "name" {
		t.Errorf("unexpected query: %+v", q)
	}
}

func TestResolveNoMatch(t *testing.T) {
	logging.Replace(zaptest.NewLogger(t))

	for _, recs := range [][]protocol.ResourceRecord{nil, records("")} {
		client := &fakeClient{query: func(context.Context, []protocol.ResourceQuery) ([]protocol.ResourceRecord, error) {
			return recs, nil
		}}
		r := New(&fakeOpener{client: client}, time.Second)

		name, outcome := r.Resolve(context.Background(), protocol.SelectorAgent)
		if name != "" || outcome != NotFound {
			t.Errorf("records %v: expected (\"\", not_found), got (%q, %s)", recs, name, outcome)
		}
	}
}

func TestResolveQueryError(t *testing.T) {
	logging.Replace(zaptest.NewLogger(t))

	client := &fakeClient{query: func(context.Context, []protocol.ResourceQuery) ([]protocol.ResourceRecord, error) {
		return nil, errors.New("backend unavailable")
	}}
	r := New(&fakeOpener{client: client}, time.Second)

	name, outcome := r.Resolve(context.Background(), protocol.SelectorAgent)
	if name != "" || outcome != Failed {
		t.Errorf("expected (\"\", failed), got (%q, %s)", name, outcome)
	}
	if client.closed.Load() != 1 {
		t.Errorf("expected client closed once, got %d", client.closed.Load())
	}
}

func TestFirstOfParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := FirstOf(ctx, time.Second, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
