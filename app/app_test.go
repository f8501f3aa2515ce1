package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/api/config"
	"storefront/api/tracking"
)

func memoryConfig() *config.Config {
	return &config.Config{
		StoreBackend:   config.BackendMemory,
		DedupTTL:       time.Hour,
		PurgeBatchSize: 10,
	}
}

func TestNewMemoryApp(t *testing.T) {
	a, err := New(context.Background(), memoryConfig())
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Users)
	assert.Nil(t, a.Reports)
	require.NotNil(t, a.Writer)
	require.NoError(t, a.Ping(context.Background(), time.Second))

	ctx := context.Background()
	res, err := a.Writer.RecordPageView(ctx, tracking.PageViewInput{SessionID: "s1", Path: "/"})
	require.NoError(t, err)
	assert.Equal(t, tracking.OutcomeRecorded, res.Outcome)

	purged, err := a.Purger.PurgeAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, purged.SessionsDeleted)
	assert.Equal(t, 1, purged.PageViewsDeleted)
}

func TestCloseRunsInReverse(t *testing.T) {
	var order []int
	a := &App{}
	a.onClose(func() { order = append(order, 1) })
	a.onClose(func() { order = append(order, 2) })
	a.Close()
	a.Close()
	assert.Equal(t, []int{2, 1}, order)
}
