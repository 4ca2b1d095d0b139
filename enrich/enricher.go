// Package enrich defines the enrichment extension point: the Enricher
// capability that augments a record's fields, and the Registry through which
// the record pipeline looks enrichers up by capability key.
//
// Concrete enrichers live in the enricher/ packages; this package only holds
// the contract, the default copy-on-write Library, and the Apply loop used by
// the record-enricher processor.
package enrich

import "github.com/c360studio/semenrich/field"

// Enricher augments fields based on an anchor field and a list of needs.
//
// Enrich returns true when the enricher recognized the request and attempted
// it; a lookup miss still counts as engaged. It returns false when the request
// is not applicable (wrong anchor shape, no recognized need) and in that case
// must leave fields untouched. Needs the enricher does not understand are
// ignored.
//
// Implementations must be safe for concurrent use. Shared state such as a
// loaded model is read through an atomic snapshot, never mutated in place.
// An impossible internal state is reported with Fatal, not with false.
type Enricher interface {
	Enrich(fields *field.List, target field.DataField, needs []string) bool
}

// Registry resolves a capability key to an Enricher.
//
// Get is an exact, case-sensitive lookup. A miss returns (nil, false) and
// callers skip that capability. A returned Enricher stays valid after the
// entry is replaced.
type Registry interface {
	Get(key string) (Enricher, bool)
}

// Func adapts an ordinary function to the Enricher interface.
type Func func(fields *field.List, target field.DataField, needs []string) bool

// Enrich calls f.
func (f Func) Enrich(fields *field.List, target field.DataField, needs []string) bool {
	return f(fields, target, needs)
}

// OutputName is the name of the field an enricher derives from target for
// need.
func OutputName(target, need string) string {
	return target + "_" + need
}
