package configstore

import (
	"reflect"
	"sort"

	"github.com/sample-interp-server/internal/domain"
)

// ComputeDelta computes the change set between two document versions. Keys
// present in next with a different value land in Set; keys removed from prev
// land in Unset, sorted for stable serialization.
func ComputeDelta(prev, next map[string]interface{}) domain.ConfigDelta {
	delta := domain.ConfigDelta{}

	for key, value := range next {
		old, ok := prev[key]
		if !ok || !reflect.DeepEqual(old, value) {
			if delta.Set == nil {
				delta.Set = make(map[string]interface{})
			}
			delta.Set[key] = value
		}
	}

	for key := range prev {
		if _, ok := next[key]; !ok {
			delta.Unset = append(delta.Unset, key)
		}
	}
	sort.Strings(delta.Unset)

	return delta
}

// ApplyDelta applies one delta to a document, returning a new map. The input
// is never mutated.
func ApplyDelta(doc map[string]interface{}, delta domain.ConfigDelta) map[string]interface{} {
	next := make(map[string]interface{}, len(doc)+len(delta.Set))
	for key, value := range doc {
		next[key] = value
	}
	for key, value := range delta.Set {
		next[key] = value
	}
	for _, key := range delta.Unset {
		delete(next, key)
	}
	return next
}

// ApplyDeltas replays deltas forward from a baseline. Rewind is a read-time
// projection built on this pure function; it never touches storage.
func ApplyDeltas(baseline map[string]interface{}, deltas []domain.ConfigDelta) map[string]interface{} {
	doc := baseline
	if doc == nil {
		doc = map[string]interface{}{}
	}
	for _, delta := range deltas {
		doc = ApplyDelta(doc, delta)
	}
	return doc
}
