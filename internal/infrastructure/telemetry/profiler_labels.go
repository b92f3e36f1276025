package telemetry

import (
	"context"
	"maps"
	"slices"
	"strings"

	"github.com/grafana/pyroscope-go"
)

// Label keys the profiling sites agree on, so the Pyroscope UI can slice
// flame graphs by job, operation or code region.
const (
	labelKeyJob       = "job"
	labelKeyOperation = "operation"
	labelKeyRegion    = "region"
)

// maxLabelValueLength caps label values before they reach Pyroscope.
const maxLabelValueLength = 128

// highCardinalityLabels lists keys that must never become profile labels.
// Per-record identifiers would give every profile its own label set and
// blow up Pyroscope's memory.
var highCardinalityLabels = map[string]bool{
	"product_id":   true,
	"batch_id":     true,
	"batch_number": true,
	"movement_id":  true,
	"reference_id": true,
	"request_id":   true,
	"trace_id":     true,
	"span_id":      true,
}

// WithProfilingLabels runs fn with the labels attached to every profile
// sample taken inside it. Labels are sanitized first; when none survive,
// fn runs unlabeled.
//
//	telemetry.WithProfilingLabels(ctx, telemetry.OperationLabels("allocate", nil),
//		func(c context.Context) {
//			// hot path
//		})
func WithProfilingLabels(ctx context.Context, labels map[string]string, fn func(context.Context)) {
	pairs := sanitizeLabels(labels)
	if len(pairs) == 0 {
		fn(ctx)
		return
	}
	pyroscope.TagWrapper(ctx, pyroscope.Labels(pairs...), fn)
}

// JobLabels builds the label set for a maintenance job run.
func JobLabels(job string, extra map[string]string) map[string]string {
	labels := make(map[string]string, len(extra)+1)
	labels[labelKeyJob] = job
	maps.Copy(labels, extra)
	return labels
}

// OperationLabels builds the label set for a named service operation.
func OperationLabels(operation string, extra map[string]string) map[string]string {
	labels := make(map[string]string, len(extra)+1)
	labels[labelKeyOperation] = operation
	maps.Copy(labels, extra)
	return labels
}

// RegionLabels builds the label set for a code region, such as a cache
// rebuild or a bulk computation.
func RegionLabels(region string, extra map[string]string) map[string]string {
	labels := make(map[string]string, len(extra)+1)
	labels[labelKeyRegion] = region
	maps.Copy(labels, extra)
	return labels
}

// sanitizeLabels turns a label map into the flat key-value slice pyroscope
// takes. High-cardinality keys and empty entries are dropped, values are
// truncated, and keys are ordered so the pair list is deterministic.
func sanitizeLabels(labels map[string]string) []string {
	if len(labels) == 0 {
		return nil
	}

	pairs := make([]string, 0, len(labels)*2)
	for _, key := range slices.Sorted(maps.Keys(labels)) {
		value := labels[key]
		if key == "" || value == "" {
			continue
		}
		// Dropped silently; logging would spam the hot paths that carry
		// these labels.
		if highCardinalityLabels[key] {
			continue
		}
		if len(value) > maxLabelValueLength {
			value = value[:maxLabelValueLength]
		}
		if key = sanitizeLabelKey(key); key == "" {
			continue
		}
		pairs = append(pairs, key, value)
	}
	return pairs
}

// sanitizeLabelKey coerces a key into snake_case ascii.
func sanitizeLabelKey(key string) string {
	key = strings.ToLower(key)
	key = strings.ReplaceAll(key, " ", "_")
	key = strings.ReplaceAll(key, "-", "_")

	out := make([]byte, 0, len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_' {
			out = append(out, c)
		}
	}
	return string(out)
}
