// Package lookup provides a dictionary enricher keyed by the anchor value.
package lookup

import (
	"fmt"
	"strconv"

	"github.com/c360studio/semenrich/enrich"
	"github.com/c360studio/semenrich/field"
	"github.com/c360studio/semenrich/model"
)

// Type is the enricher type name used in configuration.
const Type = "lookup"

// Enricher resolves a chars or digit anchor against the entries and glob
// patterns of a model. Exact entries win over patterns; patterns are tried in
// file order.
type Enricher struct {
	store *model.Store
}

var _ enrich.Enricher = (*Enricher)(nil)

// New creates an enricher reading from store.
func New(store *model.Store) (*Enricher, error) {
	if store == nil {
		return nil, fmt.Errorf("lookup: model store is required")
	}
	return &Enricher{store: store}, nil
}

// Model returns the name of the model the enricher reads.
func (e *Enricher) Model() string {
	return e.store.Name()
}

// Enrich implements enrich.Enricher.
func (e *Enricher) Enrich(fields *field.List, target field.DataField, needs []string) bool {
	key, ok := anchorKey(target)
	if !ok {
		return false
	}

	a := e.store.Snapshot()
	if a == nil {
		return false
	}
	if a.Name != e.store.Name() {
		enrich.Fatal(fmt.Errorf("store %s holds artifact %s", e.store.Name(), a.Name))
	}

	wanted := a.Recognized(needs)
	if len(wanted) == 0 {
		return false
	}

	values, found := a.LookupKey(key)
	if !found {
		return true
	}
	for _, need := range wanted {
		if v, ok := values[need]; ok {
			fields.Upsert(field.NewChars(enrich.OutputName(target.Name, need), v))
		}
	}
	return true
}

func anchorKey(f field.DataField) (string, bool) {
	if s, ok := f.Chars(); ok {
		return s, s != ""
	}
	if d, ok := f.Digit(); ok {
		return strconv.FormatInt(d, 10), true
	}
	return "", false
}
