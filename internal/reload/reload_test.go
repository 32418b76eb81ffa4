package reload

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tinytelemetry/photon/configs"
	"github.com/tinytelemetry/photon/internal/model"
	"github.com/tinytelemetry/photon/internal/registry"
)

const extraMetric = "\n[ssd_mapped_copy]\nmetric_type = ScaledUnitsMetric\nfield = ssd_mapped\nscale = binary_bytes\n"

const cyclicMetric = "\n[broken]\nrequired_metrics = broken  type: list\n"

type recordingCatalog struct {
	mu           sync.Mutex
	fingerprints []string
}

func (c *recordingCatalog) ReplaceRegistry(_ context.Context, reg model.RegistryReader) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fingerprints = append(c.fingerprints, reg.Fingerprint())
	return nil
}

func (c *recordingCatalog) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.fingerprints)
}

type fixture struct {
	fieldPath  string
	metricPath string
	tablePath  string
	holder     *Holder
	catalog    *recordingCatalog
	watcher    *Watcher
}

func newFixture(t *testing.T, debounce time.Duration) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		fieldPath:  filepath.Join(dir, configs.FieldIndexName),
		metricPath: filepath.Join(dir, configs.MetricIndexName),
		tablePath:  filepath.Join(dir, configs.TableIndexName),
		catalog:    &recordingCatalog{},
	}
	f.write(t, f.fieldPath, string(configs.FieldIndex))
	f.write(t, f.metricPath, string(configs.MetricIndex))
	f.write(t, f.tablePath, string(configs.TableIndex))

	paths := registry.Paths{FieldIndex: f.fieldPath, MetricIndex: f.metricPath, TableIndex: f.tablePath}
	load := func(ctx context.Context) (*registry.Registry, error) {
		return registry.Load(ctx, paths)
	}
	reg, err := load(context.Background())
	if err != nil {
		t.Fatalf("initial load: %v", err)
	}
	f.holder = NewHolder(reg)

	f.watcher, err = NewWatcher(f.holder, []string{f.fieldPath, f.metricPath, f.tablePath}, load, WatcherConfig{
		Debounce: debounce,
		Catalog:  f.catalog,
	})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	return f
}

func (f *fixture) write(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestHolder(t *testing.T) {
	a, err := registry.Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	b, err := registry.Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}

	h := NewHolder(a)
	if h.Current() != a {
		t.Fatal("Current did not return the initial registry")
	}
	if old := h.Swap(b); old != a {
		t.Error("Swap did not return the replaced registry")
	}
	if h.Current() != b {
		t.Error("Current did not return the swapped registry")
	}
}

func TestReload_SwapsValidChange(t *testing.T) {
	f := newFixture(t, time.Second)
	before := f.holder.Current()

	f.write(t, f.metricPath, string(configs.MetricIndex)+extraMetric)
	if err := f.watcher.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	after := f.holder.Current()
	if after == before || after.Fingerprint() == before.Fingerprint() {
		t.Fatal("registry was not swapped")
	}
	if _, err := after.ResolveMetric("ssd_mapped_copy"); err != nil {
		t.Errorf("new metric missing after reload: %v", err)
	}
	if got := f.catalog.count(); got != 1 {
		t.Errorf("catalog refreshed %d times, want 1", got)
	}
	if s := f.watcher.Stats(); s.Reloads != 1 || s.Failures != 0 {
		t.Errorf("stats = %+v, want one reload", s)
	}
}

func TestReload_KeepsPreviousOnFailure(t *testing.T) {
	f := newFixture(t, time.Second)
	before := f.holder.Current()

	f.write(t, f.metricPath, string(configs.MetricIndex)+cyclicMetric)
	err := f.watcher.Reload(context.Background())
	var cycle *registry.CyclicDependencyError
	if !errors.As(err, &cycle) {
		t.Fatalf("Reload error = %v, want CyclicDependencyError", err)
	}

	if f.holder.Current() != before {
		t.Error("a failed reload replaced the registry")
	}
	if got := f.catalog.count(); got != 0 {
		t.Errorf("catalog refreshed %d times after a failed reload, want 0", got)
	}
	s := f.watcher.Stats()
	if s.Failures != 1 || s.LastError == "" {
		t.Errorf("stats = %+v, want one failure with an error", s)
	}
}

func TestReload_RejectsDanglingTableColumn(t *testing.T) {
	f := newFixture(t, time.Second)
	before := f.holder.Current()

	f.write(t, f.tablePath, string(configs.TableIndex)+"\n[ghosts]\ncolumns = ssd_capacity, |, no_such_metric\n")
	err := f.watcher.Reload(context.Background())
	var dangling *registry.DanglingReferenceError
	if !errors.As(err, &dangling) || dangling.Table != "ghosts" {
		t.Fatalf("Reload error = %v, want DanglingReferenceError for table ghosts", err)
	}
	if f.holder.Current() != before {
		t.Error("a failed reload replaced the registry")
	}

	f.write(t, f.tablePath, string(configs.TableIndex)+"\n[ghosts]\ncolumns = ssd_capacity, |, pct_used\n")
	if err := f.watcher.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if _, err := f.holder.Current().ResolveTable("ghosts"); err != nil {
		t.Errorf("new table missing after reload: %v", err)
	}
}

func TestReload_UnchangedIsNoop(t *testing.T) {
	f := newFixture(t, time.Second)
	before := f.holder.Current()

	if err := f.watcher.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if f.holder.Current() != before {
		t.Error("an identical reload replaced the registry")
	}
	if s := f.watcher.Stats(); s.Unchanged != 1 || s.Reloads != 0 {
		t.Errorf("stats = %+v, want one unchanged", s)
	}
}

func TestRun_ReloadsOnFileChange(t *testing.T) {
	f := newFixture(t, 30*time.Millisecond)
	before := f.holder.Current().Fingerprint()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.watcher.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run: %v", err)
		}
	})

	// Give the watcher a moment to register its directories.
	time.Sleep(100 * time.Millisecond)

	f.write(t, f.metricPath, string(configs.MetricIndex)+cyclicMetric)
	waitFor(t, "failed reload", func() bool { return f.watcher.Stats().Failures > 0 })
	if f.holder.Current().Fingerprint() != before {
		t.Fatal("broken edit replaced the registry")
	}

	f.write(t, f.metricPath, string(configs.MetricIndex)+extraMetric)
	waitFor(t, "registry swap", func() bool { return f.holder.Current().Fingerprint() != before })
	if _, err := f.holder.Current().ResolveMetric("ssd_mapped_copy"); err != nil {
		t.Errorf("new metric missing after reload: %v", err)
	}
}

func TestRun_IgnoresOtherFiles(t *testing.T) {
	f := newFixture(t, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.watcher.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	f.write(t, filepath.Join(filepath.Dir(f.metricPath), "notes.txt"), "unrelated")
	time.Sleep(200 * time.Millisecond)

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s := f.watcher.Stats(); s.Events != 0 {
		t.Errorf("stats = %+v, want no events for unrelated files", s)
	}
}
