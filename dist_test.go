package devtools

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestDistPackagesWebBundle(t *testing.T) {
	b := newTestBuilder(t, `{
		"name": "punchy",
		"client": {
			"root": "web",
			"build": {"dev": ["true"], "prod": ["mkdir -p build", "cp ../seed.wasm build/game.wasm"]},
			"watchPaths": ["src"],
			"outDir": "build"
		},
		"server": {
			"root": ".",
			"build": {"dev": ["true"], "prod": ["true"]},
			"watchPaths": ["src"],
			"out": "server-bin"
		}
	}`)
	if err := os.MkdirAll(filepath.Join(b.Root(), "web"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(b.Root(), "seed.wasm"), []byte("wasm"), 0600); err != nil {
		t.Fatal(err)
	}

	out, err := Dist(context.Background(), b, NewSelection(true, true, false, false))
	if err != nil {
		t.Fatal(err)
	}
	if out == "" {
		t.Fatal("no bundle path returned")
	}

	zr, err := zip.OpenReader(out)
	if err != nil {
		t.Fatal(err)
	}
	defer zr.Close()
	found := false
	for _, f := range zr.File {
		if f.Name == "game.wasm" {
			found = true
		}
	}
	if !found {
		t.Fatalf("game.wasm missing from bundle, entries: %v", zr.File)
	}
}

func TestDistWithoutClientSkipsBundle(t *testing.T) {
	b := newTestBuilder(t, testManifest)
	out, err := Dist(context.Background(), b, NewSelection(false, true, false, false))
	if err != nil {
		t.Fatal(err)
	}
	if out != "" {
		t.Fatalf("unexpected bundle %q for a server-only dist", out)
	}
	if _, err := os.Stat(filepath.Join(b.Root(), "dist")); !os.IsNotExist(err) {
		t.Error("dist directory created without a client target")
	}
}
