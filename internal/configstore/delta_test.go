package configstore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sample-interp-server/internal/domain"
)

func TestComputeDelta(t *testing.T) {
	prev := map[string]interface{}{
		"name":  "analyst",
		"level": float64(2),
		"stale": true,
	}
	next := map[string]interface{}{
		"name":  "analyst",
		"level": float64(3),
		"fresh": "yes",
	}

	delta := ComputeDelta(prev, next)
	assert.Equal(t, map[string]interface{}{"level": float64(3), "fresh": "yes"}, delta.Set)
	assert.Equal(t, []string{"stale"}, delta.Unset)
}

func TestComputeDeltaFromEmptyBaselineIsFullDocument(t *testing.T) {
	next := map[string]interface{}{"a": "1", "b": "2"}
	delta := ComputeDelta(map[string]interface{}{}, next)
	assert.Equal(t, next, delta.Set)
	assert.Empty(t, delta.Unset)
}

func TestApplyDeltaDoesNotMutateInput(t *testing.T) {
	doc := map[string]interface{}{"keep": "old", "drop": "x"}
	out := ApplyDelta(doc, domain.ConfigDelta{
		Set:   map[string]interface{}{"keep": "new"},
		Unset: []string{"drop"},
	})

	assert.Equal(t, map[string]interface{}{"keep": "new"}, out)
	assert.Equal(t, map[string]interface{}{"keep": "old", "drop": "x"}, doc)
}

func TestApplyDeltasReplaysForward(t *testing.T) {
	deltas := []domain.ConfigDelta{
		{Set: map[string]interface{}{"a": "1"}},
		{Set: map[string]interface{}{"b": "2"}},
		{Set: map[string]interface{}{"a": "3"}, Unset: []string{"b"}},
	}

	assert.Equal(t, map[string]interface{}{"a": "1"}, ApplyDeltas(nil, deltas[:1]))
	assert.Equal(t, map[string]interface{}{"a": "1", "b": "2"}, ApplyDeltas(nil, deltas[:2]))
	assert.Equal(t, map[string]interface{}{"a": "3"}, ApplyDeltas(nil, deltas))
}

func TestDeltaRoundTrip(t *testing.T) {
	versions := []map[string]interface{}{
		{"genes": "BRAF,KRAS", "active": true},
		{"genes": "BRAF,KRAS,NRAS", "active": true},
		{"genes": "BRAF", "active": false, "note": "trimmed"},
	}

	var deltas []domain.ConfigDelta
	prev := map[string]interface{}{}
	for _, v := range versions {
		deltas = append(deltas, ComputeDelta(prev, v))
		prev = v
	}

	for i, want := range versions {
		assert.Equal(t, want, ApplyDeltas(nil, deltas[:i+1]), "replay to version %d", i+1)
	}
}
