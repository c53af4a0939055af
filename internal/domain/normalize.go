package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// CoerceMetric converts a raw support-metric value to a float64. The upstream
// pipeline is known to emit numerics as strings for some legacy rows; callers
// on the query path use the ok flag to exclude such rows from threshold
// predicates instead of failing the whole query.
func CoerceMetric(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// NormalizeSupport enforces numeric support metrics at the ingestion
// boundary. Unlike the query path, ingestion rejects rows whose metrics
// cannot be read as numbers rather than silently dropping them later.
func NormalizeSupport(raw map[string]interface{}) (SupportMetrics, error) {
	var m SupportMetrics

	depth, ok := CoerceMetric(raw["depth"])
	if !ok {
		return m, &ValidationError{Field: "support.depth", Message: "must be numeric", Value: raw["depth"]}
	}
	altReads, ok := CoerceMetric(raw["alt_reads"])
	if !ok {
		return m, &ValidationError{Field: "support.alt_reads", Message: "must be numeric", Value: raw["alt_reads"]}
	}
	freq, ok := CoerceMetric(raw["frequency"])
	if !ok {
		return m, &ValidationError{Field: "support.frequency", Message: "must be numeric", Value: raw["frequency"]}
	}

	m.Depth = int(depth)
	m.AltReads = int(altReads)
	m.Frequency = freq
	return m, nil
}

// ValidateFinding checks the identity preconditions: a gene symbol plus at
// least one of protein change, coding change or the full genomic triple.
func ValidateFinding(f *Finding) error {
	if strings.TrimSpace(f.GeneSymbol) == "" {
		return fmt.Errorf("%w: gene symbol is required", ErrInvalidFinding)
	}
	if strings.TrimSpace(f.HGVSp) != "" || strings.TrimSpace(f.HGVSc) != "" {
		return nil
	}
	if f.Chromosome == "" || f.Reference == "" || f.Alternative == "" {
		return fmt.Errorf("%w: genomic coordinates required when HGVS notation is absent", ErrInvalidFinding)
	}
	return nil
}
