package devtools

import (
	"archive/zip"
	"context"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/gookit/color"
)

// Dist produces release artifacts: clean, run the production command set for
// each selected target, then zip the web bundle for store upload. Returns
// the zip path, or "" when the client target was not selected.
func Dist(ctx context.Context, b *Builder, sel TargetSelection) (string, error) {
	m, err := b.Manifest()
	if err != nil {
		return "", err
	}
	if err := b.Clean(); err != nil {
		return "", err
	}
	for _, t := range sel.Targets() {
		color.Printf("<cyan>[%s]</> production build\n", t)
		if _, err := b.Build(ctx, t, Prod); err != nil {
			return "", err
		}
	}
	if !sel.Has(Client) {
		return "", nil
	}

	name := m.Name
	if name == "" {
		name = "punchy"
	}
	out := path.Join(b.Root(), "dist", name+"-web.zip")
	if err := os.MkdirAll(path.Dir(out), 0755); err != nil {
		return "", err
	}
	if err := zipDir(m.BundleDir(b.Root()), out); err != nil {
		return "", err
	}
	color.Printf("<green>dist</> bundle written to %s\n", out)
	return out, nil
}

func zipDir(dir, out string) error {
	f, err := os.Create(out) // #nosec G304
	if err != nil {
		return err
	}
	zw := zip.NewWriter(f)
	err = filepath.Walk(dir, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		w, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		src, err := os.Open(p) // #nosec G304
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(w, src)
		return err
	})
	if err != nil {
		zw.Close()
		f.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
