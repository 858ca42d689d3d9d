package devtools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/gookit/color"
	"github.com/stoewer/go-strcase"
	"github.com/tidwall/gjson"
	"golang.org/x/exp/maps"
)

type BuildMode int

const (
	Prod BuildMode = iota
	Dev
)

// SpawnError means a build command could not be started at all. This is an
// environment problem, not a code problem, and is treated as fatal.
type SpawnError struct {
	Cmd string
	Err error
}

func (e *SpawnError) Error() string { return fmt.Sprintf("spawn %q: %v", e.Cmd, e.Err) }
func (e *SpawnError) Unwrap() error { return e.Err }

// ExitError means the build tool ran and reported failure. Recoverable: the
// watch loop keeps going so the next save can retry.
type ExitError struct {
	Cmd    string
	Code   int
	Stdout []byte
	Stderr []byte
}

func (e *ExitError) Error() string { return fmt.Sprintf("%q exited with status %d", e.Cmd, e.Code) }

type TimeoutError struct {
	Cmd   string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%q did not finish within %s", e.Cmd, e.After)
}

// Result describes one completed build attempt.
type Result struct {
	Target   Target
	Duration time.Duration
	Stdout   []byte
	Stderr   []byte
}

// Builder resolves targets to their manifest command lists and runs them.
// The external tool's output is streamed to Stdout/Stderr and captured for
// error reporting.
type Builder struct {
	root     string
	features []string

	Stdout io.Writer
	Stderr io.Writer
}

func NewBuilder(root string, features ...string) (*Builder, error) {
	return &Builder{
		root:     root,
		features: features,
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
	}, nil
}

func (b *Builder) Root() string { return b.root }

// Manifest loads punchy.v1.json, falling back to the legacy punchy.json.
func (b *Builder) Manifest() (*ManifestV1, error) {
	f, err := os.Open(path.Join(b.root, "punchy.v1.json"))
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		f, err = os.Open(path.Join(b.root, "punchy.json"))
		if err != nil {
			return nil, err
		}
	}
	defer f.Close()
	manifest := &ManifestV1{}
	if err := json.NewDecoder(f).Decode(manifest); err != nil {
		return nil, err
	}
	return manifest, nil
}

// Build runs the target's command list to completion, one command at a time.
// The returned Result carries captured output even when err is non-nil.
func (b *Builder) Build(ctx context.Context, t Target, mode BuildMode) (*Result, error) {
	m, err := b.Manifest()
	if err != nil {
		return nil, err
	}
	dir, cmds := m.buildCommands(t, mode)
	if len(cmds) == 0 {
		return nil, fmt.Errorf("no build commands configured for %s", t)
	}
	env := b.buildEnv(m)
	start := time.Now()
	res := &Result{Target: t}
	for _, cmdStr := range cmds {
		stdout, stderr, err := b.runCmd(ctx, path.Join(b.root, dir), cmdStr, env, m.timeout())
		res.Stdout = append(res.Stdout, stdout...)
		res.Stderr = append(res.Stderr, stderr...)
		if err != nil {
			res.Duration = time.Since(start)
			return res, err
		}
	}
	res.Duration = time.Since(start)
	return res, nil
}

func (b *Builder) runCmd(ctx context.Context, dir, cmdStr string, env []string, timeout time.Duration) ([]byte, []byte, error) {
	args := strings.Fields(cmdStr)
	if len(args) == 0 {
		return nil, nil, &SpawnError{Cmd: cmdStr, Err: errors.New("empty command")}
	}
	color.Printf("Running <gray>%s</>\n", cmdStr)
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, args[0], args[1:]...) // #nosec G204
	outbuf := &bytes.Buffer{}
	errbuf := &bytes.Buffer{}
	cmd.Stdout = io.MultiWriter(b.Stdout, outbuf)
	cmd.Stderr = io.MultiWriter(b.Stderr, errbuf)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), env...)

	start := time.Now()
	err := cmd.Run()
	if err == nil {
		color.Printf("<gray>%s</> finished in %s\n", cmdStr, time.Since(start).Round(time.Millisecond))
		return outbuf.Bytes(), errbuf.Bytes(), nil
	}
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		err = &TimeoutError{Cmd: cmdStr, After: timeout}
	case errors.Is(ctx.Err(), context.Canceled):
		err = ctx.Err()
	default:
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			err = &ExitError{Cmd: cmdStr, Code: ee.ExitCode(), Stdout: outbuf.Bytes(), Stderr: errbuf.Bytes()}
		} else {
			err = &SpawnError{Cmd: cmdStr, Err: err}
		}
	}
	return outbuf.Bytes(), errbuf.Bytes(), err
}

// buildEnv folds the enabled feature flags into the environment the build
// commands see: PUNCHY_FEATURE_<NAME>=1 per flag plus a PUNCHY_FEATURES list.
func (b *Builder) buildEnv(m *ManifestV1) []string {
	feats := map[string]bool{}
	for name, on := range m.Features {
		if on {
			feats[name] = true
		}
	}
	for _, f := range b.features {
		feats[f] = true
	}
	names := maps.Keys(feats)
	sort.Strings(names)
	env := make([]string, 0, len(names)+1)
	for _, n := range names {
		env = append(env, "PUNCHY_FEATURE_"+strcase.UpperSnakeCase(n)+"=1")
	}
	if len(names) > 0 {
		env = append(env, "PUNCHY_FEATURES="+strings.Join(names, ","))
	}
	return env
}

// TargetDir reports cargo's artifact directory for the project, falling back
// to the conventional target/ when cargo metadata is unavailable.
func (b *Builder) TargetDir() string {
	cmd := exec.Command("cargo", "metadata", "--format-version", "1", "--no-deps")
	cmd.Dir = b.root
	out, err := cmd.Output()
	if err != nil {
		return path.Join(b.root, "target")
	}
	if dir := gjson.GetBytes(out, "target_directory").String(); dir != "" {
		return dir
	}
	return path.Join(b.root, "target")
}

// Clean removes the client output directory contents and the server output
// file. Cargo's own target directory is left alone.
func (b *Builder) Clean() error {
	m, err := b.Manifest()
	if err != nil {
		return err
	}
	if err := b.cleanClient(m); err != nil {
		return err
	}
	return b.cleanServer(m)
}

func (b *Builder) cleanClient(m *ManifestV1) error {
	outDir := path.Join(b.root, m.Client.Root, m.Client.OutputDirectory)
	if _, err := os.Stat(outDir); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	files, err := os.ReadDir(outDir)
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := os.RemoveAll(path.Join(outDir, f.Name())); err != nil {
			return fmt.Errorf("remove client output: %w", err)
		}
	}
	return nil
}

func (b *Builder) cleanServer(m *ManifestV1) error {
	outPath := path.Join(b.root, m.Server.Root, m.Server.OutputFile)
	if _, err := os.Stat(outPath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return os.RemoveAll(outPath)
}

// Start launches the long-running server command. Unlike Build it does not
// wait; the returned handle tracks the process until exit or Stop.
func (b *Builder) Start(ctx context.Context) (*RunHandle, error) {
	m, err := b.Manifest()
	if err != nil {
		return nil, err
	}
	cmdStr := m.Server.RunCommand
	args := strings.Fields(cmdStr)
	if len(args) == 0 {
		return nil, &SpawnError{Cmd: cmdStr, Err: errors.New("no run command configured")}
	}
	color.Printf("Starting <gray>%s</>\n", cmdStr)
	cmd := exec.Command(args[0], args[1:]...) // #nosec G204
	cmd.Stdout = b.Stdout
	cmd.Stderr = b.Stderr
	cmd.Dir = path.Join(b.root, m.Server.Root)
	cmd.Env = append(os.Environ(), b.buildEnv(m)...)
	// Own process group so Stop reaches children of `cargo run` too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return nil, &SpawnError{Cmd: cmdStr, Err: err}
	}
	h := &RunHandle{cmdStr: cmdStr, cmd: cmd, done: make(chan struct{})}
	go func() {
		h.err = cmd.Wait()
		close(h.done)
	}()
	return h, nil
}

// RunHandle tracks a long-running server process.
type RunHandle struct {
	cmdStr string
	cmd    *exec.Cmd
	done   chan struct{}
	err    error
}

func (h *RunHandle) Done() <-chan struct{} { return h.done }

// Err reports how the process exited. Blocks until it has.
func (h *RunHandle) Err() error {
	<-h.done
	if h.err == nil {
		return nil
	}
	var ee *exec.ExitError
	if errors.As(h.err, &ee) {
		return &ExitError{Cmd: h.cmdStr, Code: ee.ExitCode()}
	}
	return h.err
}

// Stop terminates the process group, escalating to SIGKILL after grace.
func (h *RunHandle) Stop(grace time.Duration) {
	select {
	case <-h.done:
		return
	default:
	}
	_ = syscall.Kill(-h.cmd.Process.Pid, syscall.SIGTERM)
	select {
	case <-h.done:
	case <-time.After(grace):
		_ = syscall.Kill(-h.cmd.Process.Pid, syscall.SIGKILL)
		<-h.done
	}
}
