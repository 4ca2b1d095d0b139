package lookup

import (
	"testing"

	"github.com/c360studio/semenrich/field"
	"github.com/c360studio/semenrich/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hostsModel = `
name: hosts
version: v3
entries:
  - key: edge-01
    values: {site: fra1, tier: edge}
  - key: "7001"
    values: {site: ams2, tier: storage}
patterns:
  - pattern: "edge-*"
    values: {site: unknown, tier: edge}
  - pattern: "db-**"
    values: {tier: storage}
`

func newEnricher(t *testing.T) *Enricher {
	t.Helper()
	s := model.NewStore(model.StoreConfig{Name: "hosts"}, nil)
	a, err := model.ParseArtifact("hosts", []byte(hostsModel))
	require.NoError(t, err)
	s.Install(a)

	e, err := New(s)
	require.NoError(t, err)
	return e
}

func TestEnrich(t *testing.T) {
	e := newEnricher(t)
	assert.Equal(t, "hosts", e.Model())

	tests := []struct {
		name    string
		target  field.DataField
		needs   []string
		engaged bool
		added   map[string]string
	}{
		{
			name:    "exact entry wins over pattern",
			target:  field.NewChars("host", "edge-01"),
			needs:   []string{"site", "tier"},
			engaged: true,
			added:   map[string]string{"host_site": "fra1", "host_tier": "edge"},
		},
		{
			name:    "pattern match",
			target:  field.NewChars("host", "edge-42"),
			needs:   []string{"site"},
			engaged: true,
			added:   map[string]string{"host_site": "unknown"},
		},
		{
			name:    "pattern without the need",
			target:  field.NewChars("host", "db-main"),
			needs:   []string{"site"},
			engaged: true,
		},
		{
			name:    "digit anchor",
			target:  field.NewDigit("port", 7001),
			needs:   []string{"site"},
			engaged: true,
			added:   map[string]string{"port_site": "ams2"},
		},
		{
			name:    "miss is engaged",
			target:  field.NewChars("host", "web-01"),
			needs:   []string{"tier"},
			engaged: true,
		},
		{
			name:   "no recognized need",
			target: field.NewChars("host", "edge-01"),
			needs:  []string{"country"},
		},
		{
			name:   "empty anchor",
			target: field.NewChars("host", ""),
			needs:  []string{"tier"},
		},
		{
			name:   "wrong anchor kind",
			target: field.NewBool("host", true),
			needs:  []string{"tier"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := field.List{tt.target}
			before := fields.Clone()

			assert.Equal(t, tt.engaged, e.Enrich(&fields, tt.target, tt.needs))

			if len(tt.added) == 0 {
				assert.Equal(t, before, fields)
				return
			}
			for name, want := range tt.added {
				got, ok := fields.Get(name)
				require.True(t, ok, name)
				assert.Equal(t, want, got.Value)
			}
		})
	}
}

func TestEnrich_ModelNotLoaded(t *testing.T) {
	e, err := New(model.NewStore(model.StoreConfig{Name: "hosts"}, nil))
	require.NoError(t, err)

	target := field.NewChars("host", "edge-01")
	fields := field.List{target}
	assert.False(t, e.Enrich(&fields, target, []string{"site"}))
}
