package devtools

import (
	"fmt"
	"path"
	"time"

	"golang.org/x/mod/semver"
)

type Commands struct {
	Dev        []string `json:"dev"`
	Production []string `json:"prod"`
}

type ClientConfig struct {
	Root            string   `json:"root"`
	BuildCommands   Commands `json:"build"`
	WatchPaths      []string `json:"watchPaths"`
	OutputDirectory string   `json:"outDir"`
	ServeDirectory  string   `json:"serveDir,omitempty"`
}

type ServerConfig struct {
	Root          string   `json:"root"`
	BuildCommands Commands `json:"build"`
	RunCommand    string   `json:"run,omitempty"`
	WatchPaths    []string `json:"watchPaths"`
	OutputFile    string   `json:"out"`
}

// ManifestV1 is the punchy.v1.json project manifest. Build commands are
// opaque external invocations; feature flags are passed to them through the
// environment (see Builder).
type ManifestV1 struct {
	Name           string          `json:"name"`
	Requires       string          `json:"requires,omitempty"`
	Features       map[string]bool `json:"features,omitempty"`
	Ignore         []string        `json:"ignore,omitempty"`
	TimeoutSeconds int             `json:"buildTimeoutSeconds,omitempty"`
	Client         ClientConfig    `json:"client"`
	Server         ServerConfig    `json:"server"`
}

// CheckRequires rejects manifests that need a newer devtool than version.
func (m *ManifestV1) CheckRequires(version string) error {
	if m.Requires == "" {
		return nil
	}
	if !semver.IsValid(m.Requires) {
		return fmt.Errorf("manifest requires %q is not a valid semver version", m.Requires)
	}
	if semver.Compare(version, m.Requires) < 0 {
		return fmt.Errorf("punchy-dev %s is older than the %s this project requires", version, m.Requires)
	}
	return nil
}

func (m *ManifestV1) WatchPaths(t Target) []string {
	if t == Client {
		return m.Client.WatchPaths
	}
	return m.Server.WatchPaths
}

// BundleDir is where the built web bundle lives, resolved against root.
func (m *ManifestV1) BundleDir(root string) string {
	dir := m.Client.ServeDirectory
	if dir == "" {
		dir = m.Client.OutputDirectory
	}
	return path.Join(root, m.Client.Root, dir)
}

func (m *ManifestV1) buildCommands(t Target, mode BuildMode) (string, []string) {
	var (
		root string
		c    Commands
	)
	switch t {
	case Client:
		root, c = m.Client.Root, m.Client.BuildCommands
	default:
		root, c = m.Server.Root, m.Server.BuildCommands
	}
	if mode == Prod {
		return root, c.Production
	}
	return root, c.Dev
}

func (m *ManifestV1) timeout() time.Duration {
	return time.Duration(m.TimeoutSeconds) * time.Second
}
