package model

import (
	"context"
	"errors"
	"log/slog"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/c360studio/semenrich/ctrl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeArtifact(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name+".yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func geoWithCountry(country string) string {
	return strings.ReplaceAll(geoArtifact, "country: DE", "country: "+country)
}

func TestStore_LoadAndSnapshot(t *testing.T) {
	path := writeArtifact(t, t.TempDir(), "geo", geoArtifact)
	s := NewStore(StoreConfig{Name: "geo", Path: path}, slog.Default())

	assert.Nil(t, s.Snapshot())
	assert.Zero(t, s.Generation())

	require.NoError(t, s.Load(context.Background()))

	a := s.Snapshot()
	require.NotNil(t, a)
	assert.Equal(t, uint64(1), a.Generation)
	assert.Equal(t, uint64(1), s.Generation())
	assert.False(t, a.LoadedAt.IsZero())

	h := s.Health()
	assert.True(t, h.Available)
	assert.Zero(t, h.FailureCount)
}

func TestStore_FailedReloadKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	path := writeArtifact(t, dir, "geo", geoArtifact)
	s := NewStore(StoreConfig{Name: "geo", Path: path}, nil)
	require.NoError(t, s.Load(context.Background()))
	before := s.Snapshot()

	writeArtifact(t, dir, "geo", "name: geo\nnetworks:\n  - cidr: nope\n")
	err := s.Load(context.Background())
	require.Error(t, err)

	assert.Same(t, before, s.Snapshot())
	assert.Equal(t, uint64(1), s.Generation())

	h := s.Health()
	assert.True(t, h.Available)
	assert.Equal(t, 1, h.FailureCount)
	assert.NotEmpty(t, h.LastError)
}

func TestStore_LoadErrors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		cfg  StoreConfig
	}{
		{"no path", StoreConfig{Name: "geo"}},
		{"missing file", StoreConfig{Name: "geo", Path: filepath.Join(dir, "absent.yaml")}},
		{"name mismatch", StoreConfig{Name: "asn", Path: writeArtifact(t, dir, "geo", geoArtifact)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore(tt.cfg, nil)
			assert.Error(t, s.Load(context.Background()))
			assert.Nil(t, s.Snapshot())
			assert.False(t, s.Health().Available)
		})
	}
}

func TestStore_LoadCancelled(t *testing.T) {
	path := writeArtifact(t, t.TempDir(), "geo", geoArtifact)
	s := NewStore(StoreConfig{Name: "geo", Path: path}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Load(ctx), context.Canceled)
	assert.Nil(t, s.Snapshot())
}

// Readers that take one snapshot per lookup must see a single consistent
// artifact while a writer keeps swapping between two versions.
func TestStore_ConcurrentSwap(t *testing.T) {
	oldA, err := ParseArtifact("geo", []byte(geoWithCountry("DE")))
	require.NoError(t, err)
	newA, err := ParseArtifact("geo", []byte(geoWithCountry("FR")))
	require.NoError(t, err)

	s := NewStore(StoreConfig{Name: "geo"}, nil)
	s.Install(oldA)

	addr := netip.MustParseAddr("10.20.0.9")
	stop := make(chan struct{})
	var wg sync.WaitGroup
	var mu sync.Mutex
	var torn []string

	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				a := s.Snapshot()
				values, ok := a.LookupIP(addr)
				want := "DE"
				if a.Version == "2026.10.1" && a.Digest == newA.Digest {
					want = "FR"
				}
				if !ok || values["country"] != want {
					mu.Lock()
					torn = append(torn, values["country"])
					mu.Unlock()
				}
			}
		}()
	}

	for i := 0; i < 500; i++ {
		next, err := ParseArtifact("geo", []byte(geoWithCountry([]string{"DE", "FR"}[i%2])))
		require.NoError(t, err)
		s.Install(next)
	}
	close(stop)
	wg.Wait()

	assert.Empty(t, torn)
	assert.Equal(t, uint64(501), s.Generation())
}

// Reinstalling an artifact that readers already hold publishes a new value;
// the held one keeps its generation.
func TestStore_ReinstallHeldSnapshot(t *testing.T) {
	a, err := ParseArtifact("geo", []byte(geoWithCountry("DE")))
	require.NoError(t, err)

	s := NewStore(StoreConfig{Name: "geo"}, nil)
	installed := s.Install(a)
	assert.Zero(t, a.Generation, "the caller's artifact is not modified")
	assert.Equal(t, uint64(1), installed.Generation)

	held := s.Snapshot()
	require.Same(t, installed, held)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	var changed atomic.Int64
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if held.Generation != 1 || held.LoadedAt.IsZero() {
					changed.Add(1)
				}
				_ = s.Snapshot().Generation
			}
		}()
	}

	loadedAt := held.LoadedAt
	for i := 0; i < 1000; i++ {
		s.Install(held)
	}
	close(stop)
	wg.Wait()

	assert.Zero(t, changed.Load())
	assert.Equal(t, uint64(1), held.Generation)
	assert.Equal(t, loadedAt, held.LoadedAt)
	assert.Equal(t, uint64(1001), s.Generation())
	assert.Equal(t, uint64(1001), s.Snapshot().Generation)
	assert.NotSame(t, held, s.Snapshot())
}

// Two reloads racing on the same file both complete and leave the last
// read installed.
func TestStore_ConcurrentLoads(t *testing.T) {
	path := writeArtifact(t, t.TempDir(), "geo", geoArtifact)
	s := NewStore(StoreConfig{Name: "geo", Path: path}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Load(context.Background()))
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(8), s.Generation())
	assert.Equal(t, uint64(8), s.Snapshot().Generation)
}

func TestRegistry_ReloadAndHandle(t *testing.T) {
	dir := t.TempDir()
	geoPath := writeArtifact(t, dir, "geo", geoArtifact)
	hostsPath := writeArtifact(t, dir, "hosts", hostsArtifact)

	r, err := NewRegistryFromConfig([]StoreConfig{
		{Name: "geo", Path: geoPath},
		{Name: "hosts", Path: hostsPath},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"geo", "hosts"}, r.Names())

	require.NoError(t, r.LoadAll(context.Background()))

	geo, ok := r.Get("geo")
	require.True(t, ok)
	assert.Equal(t, uint64(1), geo.Generation())

	// Targeted command reloads only that model.
	require.NoError(t, r.Handle(context.Background(), ctrl.NewCommand(ctrl.LoadModel, "geo")))
	hosts, _ := r.Get("hosts")
	assert.Equal(t, uint64(2), geo.Generation())
	assert.Equal(t, uint64(1), hosts.Generation())

	// Untargeted command reloads everything.
	require.NoError(t, r.Handle(context.Background(), ctrl.NewCommand(ctrl.LoadModel, "")))
	assert.Equal(t, uint64(3), geo.Generation())
	assert.Equal(t, uint64(2), hosts.Generation())

	err = r.Handle(context.Background(), ctrl.NewCommand(ctrl.LoadModel, "asn"))
	assert.ErrorIs(t, err, ErrUnknownModel)

	health := r.Health()
	assert.True(t, health["geo"].Available)
}

func TestRegistry_LoadAllJoinsErrors(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRegistryFromConfig([]StoreConfig{
		{Name: "geo", Path: writeArtifact(t, dir, "geo", geoArtifact)},
		{Name: "broken", Path: filepath.Join(dir, "missing.yaml")},
	})
	require.NoError(t, err)

	err = r.LoadAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")

	geo, _ := r.Get("geo")
	assert.NotNil(t, geo.Snapshot(), "healthy models load even when another fails")
}

func TestRegistry_RegisterErrors(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewStore(StoreConfig{Name: "geo"}, nil)))
	assert.True(t, errors.Is(r.Register(NewStore(StoreConfig{Name: "geo"}, nil)), ErrDuplicateModel))
	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(NewStore(StoreConfig{}, nil)))

	_, err := NewRegistryFromConfig([]StoreConfig{{Name: "x"}})
	assert.Error(t, err, "path is required")
}

func TestStore_Watch(t *testing.T) {
	dir := t.TempDir()
	path := writeArtifact(t, dir, "geo", geoArtifact)
	s := NewStore(StoreConfig{Name: "geo", Path: path, Watch: true, Debounce: 20 * time.Millisecond}, nil)
	require.NoError(t, s.Load(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Watch(ctx))

	writeArtifact(t, dir, "geo", geoWithCountry("FR"))

	require.Eventually(t, func() bool {
		return s.Generation() >= 2
	}, 5*time.Second, 20*time.Millisecond)

	values, ok := s.Snapshot().LookupIP(netip.MustParseAddr("10.20.0.1"))
	require.True(t, ok)
	assert.Equal(t, "FR", values["country"])
}

func TestGlobal(t *testing.T) {
	ResetGlobal()
	defer ResetGlobal()

	custom := NewRegistry()
	InitGlobal(custom)
	assert.Same(t, custom, Global())

	ResetGlobal()
	assert.NotSame(t, custom, Global())
}
