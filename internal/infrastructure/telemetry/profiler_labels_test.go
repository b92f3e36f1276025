package telemetry

import (
	"context"
	"runtime/pprof"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithProfilingLabels_AttachesLabelsInsideFn(t *testing.T) {
	var called bool
	WithProfilingLabels(context.Background(), JobLabels("expiry_scan", nil), func(c context.Context) {
		called = true
		v, ok := pprof.Label(c, "job")
		require.True(t, ok)
		assert.Equal(t, "expiry_scan", v)
	})
	require.True(t, called)
}

func TestWithProfilingLabels_LabelsDoNotLeakOutside(t *testing.T) {
	ctx := context.Background()
	WithProfilingLabels(ctx, OperationLabels("allocate", nil), func(context.Context) {})

	_, ok := pprof.Label(ctx, "operation")
	assert.False(t, ok)
}

func TestWithProfilingLabels_EmptyRunsUnlabeled(t *testing.T) {
	var called bool
	WithProfilingLabels(context.Background(), nil, func(c context.Context) {
		called = true
		_, ok := pprof.Label(c, "job")
		assert.False(t, ok)
	})
	require.True(t, called)
}

func TestWithProfilingLabels_FullyFilteredRunsUnlabeled(t *testing.T) {
	labels := map[string]string{"product_id": "7b46a8e5-12a0-47e2-8f0c-3a751f32cf89"}

	var called bool
	WithProfilingLabels(context.Background(), labels, func(c context.Context) {
		called = true
		_, ok := pprof.Label(c, "product_id")
		assert.False(t, ok, "per-record identifiers never become labels")
	})
	require.True(t, called)
}

func TestLabelConstructors(t *testing.T) {
	assert.Equal(t, map[string]string{"job": "daily_summary"}, JobLabels("daily_summary", nil))
	assert.Equal(t, map[string]string{"operation": "allocate"}, OperationLabels("allocate", nil))
	assert.Equal(t, map[string]string{"region": "store_valuation"}, RegionLabels("store_valuation", nil))

	merged := JobLabels("expiry_scan", map[string]string{"trigger": "cron"})
	assert.Equal(t, map[string]string{"job": "expiry_scan", "trigger": "cron"}, merged)
}

func TestSanitizeLabels(t *testing.T) {
	t.Run("drops high cardinality keys", func(t *testing.T) {
		pairs := sanitizeLabels(map[string]string{
			"operation":    "allocate",
			"product_id":   "7b46a8e5-12a0-47e2-8f0c-3a751f32cf89",
			"batch_number": "BN-2026-0042",
		})
		assert.Equal(t, []string{"operation", "allocate"}, pairs)
	})

	t.Run("drops empty keys and values", func(t *testing.T) {
		pairs := sanitizeLabels(map[string]string{
			"":       "value",
			"region": "",
		})
		assert.Empty(t, pairs)
	})

	t.Run("truncates oversized values", func(t *testing.T) {
		pairs := sanitizeLabels(map[string]string{
			"operation": strings.Repeat("x", 300),
		})
		require.Len(t, pairs, 2)
		assert.Len(t, pairs[1], maxLabelValueLength)
	})

	t.Run("orders pairs by key", func(t *testing.T) {
		pairs := sanitizeLabels(map[string]string{
			"region":    "cache",
			"job":       "rewarm",
			"operation": "load",
		})
		assert.Equal(t, []string{"job", "rewarm", "operation", "load", "region", "cache"}, pairs)
	})

	t.Run("normalizes keys", func(t *testing.T) {
		pairs := sanitizeLabels(map[string]string{"Movement Type": "PURCHASE"})
		assert.Equal(t, []string{"movement_type", "PURCHASE"}, pairs)
	})

	t.Run("drops keys that sanitize to nothing", func(t *testing.T) {
		assert.Empty(t, sanitizeLabels(map[string]string{"!!!": "value"}))
	})

	t.Run("nil map", func(t *testing.T) {
		assert.Nil(t, sanitizeLabels(nil))
	})
}

func TestSanitizeLabelKey(t *testing.T) {
	cases := map[string]string{
		"Job Name":   "job_name",
		"db-query":   "db_query",
		"UPPER":      "upper",
		"label!@#":   "label",
		"ok_already": "ok_already",
		"v2_reads":   "v2_reads",
	}
	for in, want := range cases {
		assert.Equal(t, want, sanitizeLabelKey(in), "key: %q", in)
	}
}
