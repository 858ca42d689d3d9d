package devtools

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testManifest = `{
	"name": "punchy",
	"requires": "v0.2.0",
	"features": {"net-debug": true, "telemetry": false},
	"ignore": ["**/*.swp"],
	"buildTimeoutSeconds": 30,
	"client": {
		"root": "web",
		"build": {"dev": ["true"], "prod": ["true", "true"]},
		"watchPaths": ["src", "assets"],
		"outDir": "build"
	},
	"server": {
		"root": ".",
		"build": {"dev": ["true"], "prod": ["true"]},
		"run": "sleep 30",
		"watchPaths": ["src"],
		"out": "server-bin"
	}
}`

func newTestBuilder(t *testing.T, manifest string) *Builder {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "punchy.v1.json"), []byte(manifest), 0600); err != nil {
		t.Fatal(err)
	}
	b, err := NewBuilder(dir)
	if err != nil {
		t.Fatal(err)
	}
	b.Stdout = io.Discard
	b.Stderr = io.Discard
	return b
}

func TestManifestLoads(t *testing.T) {
	b := newTestBuilder(t, testManifest)
	m, err := b.Manifest()
	if err != nil {
		t.Fatal(err)
	}
	if m.Name != "punchy" {
		t.Errorf("name = %q", m.Name)
	}
	if got := m.WatchPaths(Client); len(got) != 2 {
		t.Errorf("client watch paths = %v", got)
	}
	if got := m.WatchPaths(ServerRun); len(got) != 1 || got[0] != "src" {
		t.Errorf("server-run watch paths = %v", got)
	}
	if m.timeout() != 30*time.Second {
		t.Errorf("timeout = %s", m.timeout())
	}
	dir, cmds := m.buildCommands(Client, Prod)
	if dir != "web" || len(cmds) != 2 {
		t.Errorf("client prod commands = %q %v", dir, cmds)
	}
}

func TestManifestLegacyFallback(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "punchy.json"), []byte(testManifest), 0600); err != nil {
		t.Fatal(err)
	}
	b, err := NewBuilder(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Manifest(); err != nil {
		t.Fatalf("legacy manifest not loaded: %v", err)
	}
}

func TestManifestMissing(t *testing.T) {
	b, err := NewBuilder(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Manifest(); err == nil {
		t.Fatal("expected an error with no manifest present")
	}
}

func TestCheckRequires(t *testing.T) {
	cases := []struct {
		requires string
		version  string
		wantErr  bool
	}{
		{"", "v0.1.0", false},
		{"v0.2.0", "v0.4.2", false},
		{"v0.4.2", "v0.4.2", false},
		{"v9.0.0", "v0.4.2", true},
		{"0.2", "v0.4.2", true},
	}
	for _, c := range cases {
		m := &ManifestV1{Requires: c.requires}
		err := m.CheckRequires(c.version)
		if (err != nil) != c.wantErr {
			t.Errorf("CheckRequires(%q) with version %q: err = %v", c.requires, c.version, err)
		}
	}
}

func TestBundleDir(t *testing.T) {
	m := &ManifestV1{Client: ClientConfig{Root: "web", OutputDirectory: "build"}}
	if got := m.BundleDir("/proj"); got != "/proj/web/build" {
		t.Errorf("BundleDir = %q", got)
	}
	m.Client.ServeDirectory = "public"
	if got := m.BundleDir("/proj"); !strings.HasSuffix(got, "web/public") {
		t.Errorf("BundleDir with serveDir = %q", got)
	}
}
