// Package ipgeo provides an enricher that maps an address anchor to the
// attributes of the most specific network in a CIDR model.
package ipgeo

import (
	"fmt"

	"github.com/c360studio/semenrich/enrich"
	"github.com/c360studio/semenrich/field"
	"github.com/c360studio/semenrich/model"
)

// Type is the enricher type name used in configuration.
const Type = "ipgeo"

// Enricher resolves an ip anchor against a network model.
//
// For every recognized need it writes a chars field named <target>_<need>.
// The anchor must be an ip field or a chars field holding an address.
type Enricher struct {
	store *model.Store
}

var _ enrich.Enricher = (*Enricher)(nil)

// New creates an enricher reading from store.
func New(store *model.Store) (*Enricher, error) {
	if store == nil {
		return nil, fmt.Errorf("ipgeo: model store is required")
	}
	return &Enricher{store: store}, nil
}

// Model returns the name of the model the enricher reads.
func (e *Enricher) Model() string {
	return e.store.Name()
}

// Enrich implements enrich.Enricher.
//
// It declines while the model has not been loaded so that a fallback
// capability can still engage.
func (e *Enricher) Enrich(fields *field.List, target field.DataField, needs []string) bool {
	addr, ok := target.IP()
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

	values, found := a.LookupIP(addr)
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
