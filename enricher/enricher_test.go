package enricher

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/c360studio/semenrich/config"
	"github.com/c360studio/semenrich/enrich"
	"github.com/c360studio/semenrich/enricher/ipgeo"
	"github.com/c360studio/semenrich/enricher/lookup"
	"github.com/c360studio/semenrich/field"
	"github.com/c360studio/semenrich/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const geoModel = `
name: geo
networks:
  - cidr: 192.0.2.0/24
    values: {country: NL}
`

const hostsModel = `
name: hosts
entries:
  - key: edge-01
    values: {site: fra1}
`

func testModels(t *testing.T) *model.Registry {
	t.Helper()
	dir := t.TempDir()
	geoPath := filepath.Join(dir, "geo.yaml")
	hostsPath := filepath.Join(dir, "hosts.yaml")
	require.NoError(t, os.WriteFile(geoPath, []byte(geoModel), 0o644))
	require.NoError(t, os.WriteFile(hostsPath, []byte(hostsModel), 0o644))

	r, err := model.NewRegistryFromConfig([]model.StoreConfig{
		{Name: "geo", Path: geoPath},
		{Name: "hosts", Path: hostsPath},
	})
	require.NoError(t, err)
	return r
}

func TestBuild(t *testing.T) {
	models := testModels(t)

	e, err := Build(config.EnricherConfig{Key: "geo", Type: "ipgeo", Model: "geo"}, models)
	require.NoError(t, err)
	assert.IsType(t, &ipgeo.Enricher{}, e)

	e, err = Build(config.EnricherConfig{Key: "hosts", Type: "lookup", Model: "hosts"}, models)
	require.NoError(t, err)
	assert.IsType(t, &lookup.Enricher{}, e)

	_, err = Build(config.EnricherConfig{Key: "x", Type: "regex", Model: "geo"}, models)
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = Build(config.EnricherConfig{Key: "x", Type: "ipgeo", Model: "asn"}, models)
	assert.ErrorIs(t, err, model.ErrUnknownModel)
}

func TestPopulate(t *testing.T) {
	models := testModels(t)
	require.NoError(t, models.LoadAll(t.Context()))

	lib := enrich.NewLibrary()
	cfgs := []config.EnricherConfig{
		{Key: "geo", Type: "ipgeo", Model: "geo"},
		{Key: "hosts", Type: "lookup", Model: "hosts"},
	}
	require.NoError(t, Populate(lib, cfgs, models, nil))
	assert.Equal(t, []string{"geo", "hosts"}, lib.Keys())

	old, _ := lib.Get("geo")
	require.NoError(t, Populate(lib, cfgs[:1], models, nil))
	current, _ := lib.Get("geo")
	assert.NotSame(t, old, current, "populate replaces existing entries")
	assert.Equal(t, 2, lib.Len())

	fields := field.List{field.NewIP("src", netip.MustParseAddr("192.0.2.7"))}
	plan := enrich.Plan{{Target: "src", Capabilities: []string{"geo"}, Needs: []string{"country"}}}
	report, err := enrich.Apply(lib, &fields, plan)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Applied())
	got, ok := fields.Get("src_country")
	require.True(t, ok)
	assert.Equal(t, "NL", got.Value)
}

func TestPopulate_AllOrNothing(t *testing.T) {
	models := testModels(t)
	lib := enrich.NewLibrary()

	err := Populate(lib, []config.EnricherConfig{
		{Key: "geo", Type: "ipgeo", Model: "geo"},
		{Key: "bad", Type: "regex", Model: "geo"},
	}, models, nil)
	require.Error(t, err)
	assert.Zero(t, lib.Len())
}

func TestTypes(t *testing.T) {
	assert.ElementsMatch(t, []string{"ipgeo", "lookup"}, Types())
}
