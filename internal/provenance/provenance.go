// Package provenance tracks where every reported fact came from.
//
// Each value the pipeline emits is recorded as a Finding carrying the
// component that produced it and a human-readable description of how it
// was derived. A Finding without both is rejected at construction, never
// at render time; that is the mechanism that keeps untraceable findings
// out of persisted output. The citation renderer later resolves findings
// into inline values plus deduplicated footnotes.
package provenance

import (
	"errors"
	"fmt"
)

// Finding is one recorded fact with its provenance.
type Finding struct {
	Key    string
	Value  any
	Source string // identifier of the producing component
	Method string // how the value was derived
}

// MissingProvenanceError reports a Record call without a source or
// method. This is a programming error at the call site, not a runtime
// condition.
type MissingProvenanceError struct {
	Key     string
	Missing string // "source" or "method"
}

func (e *MissingProvenanceError) Error() string {
	return fmt.Sprintf("finding %q rejected: empty %s", e.Key, e.Missing)
}

// IsMissingProvenance reports whether err is (or wraps) a
// MissingProvenanceError.
func IsMissingProvenance(err error) bool {
	var mpe *MissingProvenanceError
	return errors.As(err, &mpe)
}

// Store is the in-memory findings map for one pipeline run, ordered by
// discovery. Findings are append-only once written. A Store is
// constructed fresh per run and is not shared across runs, so no locking
// discipline is needed.
type Store struct {
	findings map[string]Finding
	order    []string
}

// NewStore creates an empty findings store.
func NewStore() *Store {
	return &Store{findings: make(map[string]Finding)}
}

// Record appends a finding. It fails with MissingProvenanceError when
// source or method is empty, and with a plain error on a duplicate key;
// in both cases the store is left unchanged.
func (s *Store) Record(key string, value any, source, method string) error {
	if key == "" {
		return fmt.Errorf("finding key must not be empty")
	}
	if source == "" {
		return &MissingProvenanceError{Key: key, Missing: "source"}
	}
	if method == "" {
		return &MissingProvenanceError{Key: key, Missing: "method"}
	}
	if _, exists := s.findings[key]; exists {
		return fmt.Errorf("finding %q already recorded: findings are append-only", key)
	}
	s.findings[key] = Finding{Key: key, Value: value, Source: source, Method: method}
	s.order = append(s.order, key)
	return nil
}

// Get returns the finding for key and whether it exists.
func (s *Store) Get(key string) (Finding, bool) {
	f, ok := s.findings[key]
	return f, ok
}

// Findings returns all findings in discovery order.
func (s *Store) Findings() []Finding {
	out := make([]Finding, len(s.order))
	for i, key := range s.order {
		out[i] = s.findings[key]
	}
	return out
}

// Len returns the number of recorded findings.
func (s *Store) Len() int {
	return len(s.order)
}

// FormatValue renders a finding value for inline substitution and
// persisted documents.
func FormatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
