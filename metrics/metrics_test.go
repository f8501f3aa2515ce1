package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordPurge(t *testing.T) {
	sessions := PurgeDeleted.WithLabelValues("sessions")
	events := PurgeDeleted.WithLabelValues("events")
	beforeS, beforeE := testutil.ToFloat64(sessions), testutil.ToFloat64(events)

	RecordPurge(3, 11, 250*time.Millisecond)

	assert.Equal(t, beforeS+3, testutil.ToFloat64(sessions))
	assert.Equal(t, beforeE+11, testutil.ToFloat64(events))
}

func TestRecordEvent(t *testing.T) {
	c := EventsRecorded.WithLabelValues("page_view", "recorded")
	before := testutil.ToFloat64(c)
	RecordEvent("page_view", "recorded")
	assert.Equal(t, before+1, testutil.ToFloat64(c))
}
