package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/api/store"
)

func seed(t *testing.T, w *Writer, sessions, viewsPerSession, orders int) {
	t.Helper()
	ctx := context.Background()
	for s := 0; s < sessions; s++ {
		sid := fmt.Sprintf("s%d", s)
		for v := 0; v < viewsPerSession; v++ {
			_, err := w.RecordPageView(ctx, PageViewInput{SessionID: sid, Path: "/"})
			require.NoError(t, err)
		}
	}
	for o := 0; o < orders; o++ {
		_, err := w.RecordPurchase(ctx, purchase(fmt.Sprintf("o%d", o), "s0", 1))
		require.NoError(t, err)
	}
}

func TestPurgeAllReportsCounts(t *testing.T) {
	mem := store.NewMemoryStore()
	mirror := &recordingSink{}
	seed(t, NewWriter(mem, WithMirror(mirror)), 3, 4, 2)
	require.Len(t, mirror.events, 14)

	res, err := NewPurger(mem, 5, mirror, nil).PurgeAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.SessionsDeleted)
	assert.Equal(t, 14, res.PageViewsDeleted)

	sessions, events := mem.Counts()
	assert.Zero(t, sessions)
	assert.Zero(t, events)
	assert.Empty(t, mirror.events)
}

func TestPurgeAllEmptyStore(t *testing.T) {
	res, err := NewPurger(store.NewMemoryStore(), 0, nil, nil).PurgeAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.SessionsDeleted)
	assert.Zero(t, res.PageViewsDeleted)
}

// countingDeleter fails the event batch after a number of successful calls.
type countingDeleter struct {
	*store.MemoryStore
	failAfter int
	calls     int
	limits    []int
}

func (c *countingDeleter) DeleteEventBatch(ctx context.Context, limit int) (int, error) {
	c.calls++
	c.limits = append(c.limits, limit)
	if c.failAfter >= 0 && c.calls > c.failAfter {
		return 0, errors.New("lock timeout")
	}
	return c.MemoryStore.DeleteEventBatch(ctx, limit)
}

func TestPurgeAllPartialFailure(t *testing.T) {
	mem := store.NewMemoryStore()
	seed(t, NewWriter(mem), 2, 5, 0)
	d := &countingDeleter{MemoryStore: mem, failAfter: 1}

	res, err := NewPurger(d, 4, nil, nil).PurgeAll(context.Background())
	var perr *PurgeError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 2, perr.Partial.SessionsDeleted)
	assert.Equal(t, 4, perr.Partial.PageViewsDeleted)
	assert.Equal(t, perr.Partial, res)

	_, events := mem.Counts()
	assert.Equal(t, 6, events)
}

func TestPurgeAllUsesBatchSize(t *testing.T) {
	mem := store.NewMemoryStore()
	seed(t, NewWriter(mem), 1, 7, 0)
	d := &countingDeleter{MemoryStore: mem, failAfter: -1}

	res, err := NewPurger(d, 3, nil, nil).PurgeAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, res.PageViewsDeleted)
	assert.Equal(t, []int{3, 3, 3, 3}, d.limits)
}

type blockingDeleter struct {
	*store.MemoryStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingDeleter) DeleteSessionBatch(ctx context.Context, limit int) (int, error) {
	b.once.Do(func() {
		close(b.entered)
		<-b.release
	})
	return b.MemoryStore.DeleteSessionBatch(ctx, limit)
}

func TestPurgeAllRejectsConcurrentRun(t *testing.T) {
	d := &blockingDeleter{
		MemoryStore: store.NewMemoryStore(),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	p := NewPurger(d, 10, nil, nil)

	done := make(chan error, 1)
	go func() {
		_, err := p.PurgeAll(context.Background())
		done <- err
	}()
	<-d.entered

	_, err := p.PurgeAll(context.Background())
	assert.ErrorIs(t, err, ErrPurgeInProgress)

	close(d.release)
	assert.NoError(t, <-done)
}

func TestPurgeAllMirrorFailure(t *testing.T) {
	mem := store.NewMemoryStore()
	seed(t, NewWriter(mem), 1, 1, 0)
	mirror := &recordingSink{err: errors.New("clickhouse down")}

	_, err := NewPurger(mem, 10, mirror, nil).PurgeAll(context.Background())
	var perr *PurgeError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 1, perr.Partial.SessionsDeleted)
	assert.Equal(t, 1, perr.Partial.PageViewsDeleted)
}

func TestPurgedOrderCanBeRecordedAgain(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	guard := NewMemoryGuard(24 * time.Hour)
	w := NewWriter(mem, WithGuard(guard))

	res, err := w.RecordPurchase(ctx, purchase("o1", "s1", 20))
	require.NoError(t, err)
	require.Equal(t, OutcomeRecorded, res.Outcome)

	purged, err := NewPurger(mem, 10, nil, guard).PurgeAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, purged.SessionsDeleted)
	assert.Equal(t, 1, purged.PageViewsDeleted)

	res, err = w.RecordPurchase(ctx, purchase("o1", "s1", 20))
	require.NoError(t, err)
	assert.Equal(t, OutcomeRecorded, res.Outcome)

	sessions, events := mem.Counts()
	assert.Equal(t, 1, sessions)
	assert.Equal(t, 1, events)
}

type failingResetGuard struct{ *MemoryGuard }

func (g failingResetGuard) Reset(ctx context.Context) error { return errors.New("redis: i/o timeout") }

func TestPurgeAllGuardResetFailure(t *testing.T) {
	mem := store.NewMemoryStore()
	seed(t, NewWriter(mem), 1, 2, 0)

	res, err := NewPurger(mem, 10, nil, failingResetGuard{NewMemoryGuard(time.Minute)}).PurgeAll(context.Background())
	var perr *PurgeError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 1, perr.Partial.SessionsDeleted)
	assert.Equal(t, 2, perr.Partial.PageViewsDeleted)
	assert.Equal(t, perr.Partial, res)
}
