package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/c360studio/semenrich/config"
	"github.com/c360studio/semenrich/ctrl"
	"github.com/c360studio/semenrich/enrich"
	"github.com/c360studio/semenrich/enricher"
	"github.com/c360studio/semenrich/field"
	"github.com/c360studio/semenrich/model"
	controldispatcher "github.com/c360studio/semenrich/processor/control-dispatcher"
	recordenricher "github.com/c360studio/semenrich/processor/record-enricher"
	"github.com/c360studio/semstreams/component"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const geoArtifact = `
name: geo
version: "1"
networks:
  - cidr: 192.0.2.0/24
    values: {country: NL, region: eu-west}
`

// writeProject lays out a config file with one geo model next to it.
func writeProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "models"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "models", "geo.yaml"), []byte(geoArtifact), 0o644))

	cfg := `
instance: test
models:
  - name: geo
    path: models/geo.yaml
enrichers:
  - key: geo
    type: ipgeo
    model: geo
pipeline:
  - target: src
    capabilities: [geo]
    needs: [country]
`
	path := filepath.Join(dir, "semenrich.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func TestRootCmd_Commands(t *testing.T) {
	root := rootCmd()

	names := make([]string, 0)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"run", "send", "enrich", "version"}, names)

	send, _, err := root.Find([]string{"send", "load-model"})
	require.NoError(t, err)
	assert.NotNil(t, send.Flags().Lookup("target"))
}

func TestVersionCommand(t *testing.T) {
	root := rootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "semenrich version "+Version)
}

func TestEnrichCommand(t *testing.T) {
	configPath := writeProject(t)

	record := `{"id":"r-1","fields":[{"name":"src","kind":"ip","value":"192.0.2.10"},{"name":"user","kind":"chars","value":"alice"}]}`
	recordPath := filepath.Join(t.TempDir(), "record.json")
	require.NoError(t, os.WriteFile(recordPath, []byte(record), 0o644))

	root := rootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"enrich", "--config", configPath, "--log-level", "error", "--record", recordPath})
	require.NoError(t, root.Execute())

	var got recordenricher.EnrichedRecord
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "r-1", got.ID)
	assert.Equal(t, "test", got.Instance)
	assert.Equal(t, []string{"src", "user", "src_country"}, got.Fields.Names())
	assert.Equal(t, 1, got.Report.Applied())
}

func TestEnrichCommand_Stdin(t *testing.T) {
	configPath := writeProject(t)

	root := rootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetIn(strings.NewReader(`{"id":"r-2","fields":[{"name":"src","kind":"chars","value":"198.51.100.1"}]}`))
	root.SetArgs([]string{"enrich", "-c", configPath, "--log-level", "error"})
	require.NoError(t, root.Execute())

	var got recordenricher.EnrichedRecord
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, []string{"src"}, got.Fields.Names(), "a lookup miss adds nothing")
	assert.Equal(t, "geo", got.Report.Steps[0].AppliedBy)
}

func TestEnrichCommand_BadRecord(t *testing.T) {
	configPath := writeProject(t)

	root := rootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(`{"fields":[]}`))
	root.SetArgs([]string{"enrich", "-c", configPath, "--log-level", "error"})
	assert.Error(t, root.Execute())
}

func TestBuildEngineAndComponents(t *testing.T) {
	enrich.ResetGlobal()
	model.ResetGlobal()
	t.Cleanup(func() {
		enrich.ResetGlobal()
		model.ResetGlobal()
	})

	cfg, err := config.NewLoader(slog.Default()).LoadPath(writeProject(t))
	require.NoError(t, err)

	models, lib, err := buildEngine(context.Background(), cfg, slog.Default())
	require.NoError(t, err)
	assert.Same(t, models, model.Global())
	assert.Same(t, lib, enrich.Global())
	assert.Equal(t, []string{"geo"}, lib.Keys())

	store, ok := models.Get("geo")
	require.True(t, ok)
	assert.Equal(t, uint64(1), store.Generation())

	components, err := buildComponents(cfg, component.Dependencies{Logger: slog.Default()})
	require.NoError(t, err)
	require.Len(t, components, 2)

	dispatcher, ok := components[0].(*controldispatcher.Component)
	require.True(t, ok)
	assert.True(t, dispatcher.Dispatcher().Handles(ctrl.LoadModel))

	records, ok := components[1].(*recordenricher.Component)
	require.True(t, ok)
	assert.Equal(t, "records_in", records.InputPorts()[0].Name)
}

func TestBuildEngine_RegistryAlreadyInitialized(t *testing.T) {
	model.ResetGlobal()
	enrich.ResetGlobal()
	t.Cleanup(func() {
		model.ResetGlobal()
		enrich.ResetGlobal()
	})

	model.InitGlobal(model.NewRegistry())
	cfg, err := config.NewLoader(slog.Default()).LoadPath(writeProject(t))
	require.NoError(t, err)

	_, _, err = buildEngine(context.Background(), cfg, slog.Default())
	assert.Error(t, err)
}

func TestStreamsConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Instance = "edge-a"

	streams := streamsConfig(cfg).Streams
	require.Contains(t, streams, ctrl.StreamName)
	require.Contains(t, streams, "RECORDS")
	assert.Contains(t, streams[ctrl.StreamName].Subjects, ctrl.CommandSubjects)
	assert.Contains(t, streams["RECORDS"].Subjects, "records.enriched.>")
}

func TestWrapNATSError(t *testing.T) {
	err := wrapNATSError(errors.New("dial tcp: connection refused"), "nats://x:4222")
	assert.Contains(t, err.Error(), "NATS is not running at nats://x:4222")

	err = wrapNATSError(errors.New("authorization violation"), "nats://x:4222")
	assert.NotContains(t, err.Error(), "NATS is not running")
}

func TestNewLoadModelCommand(t *testing.T) {
	cmd := newLoadModelCommand("geo")
	require.NoError(t, cmd.Validate())
	assert.Equal(t, ctrl.LoadModel, cmd.Type)
	assert.Equal(t, "geo", cmd.Target)
}

func TestSampleConfig(t *testing.T) {
	cfg, err := config.NewLoader(slog.Default()).LoadPath(filepath.Join("..", "..", "configs", "semenrich.yaml"))
	require.NoError(t, err)

	models, err := model.NewRegistryFromConfig(cfg.Models)
	require.NoError(t, err)
	require.NoError(t, models.LoadAll(context.Background()))

	lib := enrich.NewLibrary()
	require.NoError(t, enricher.Populate(lib, cfg.Enrichers, models, nil))

	rec := &recordenricher.Record{
		ID: "sample",
		Fields: field.List{
			field.NewChars("src_ip", "10.20.1.1"),
			field.NewChars("host", "db-7"),
		},
	}
	got, err := recordenricher.EnrichRecord(lib, cfg.Pipeline, rec)
	require.NoError(t, err)

	assert.Equal(t, []string{"src_ip", "host", "src_ip_country", "src_ip_region", "host_site", "host_owner"}, got.Fields.Names())
	country, _ := got.Fields.Get("src_ip_country")
	assert.Equal(t, "NL", country.Value)
	owner, _ := got.Fields.Get("host_owner")
	assert.Equal(t, "dba", owner.Value)
	assert.False(t, got.Report.Steps[1].Anchored, "dst_ip is absent")
}
