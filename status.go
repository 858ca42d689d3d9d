package devtools

import (
	"os"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/tidwall/sjson"
	"golang.org/x/exp/maps"
)

const statusDirName = ".punchy-dev"

// StatusFile mirrors the coordinator's per-target state to disk so the dev
// server (and anything else watching the project) can read it.
type StatusFile struct {
	path string

	mu   sync.Mutex
	last map[Target]string
}

func NewStatusFile(root string) (*StatusFile, error) {
	dir := path.Join(root, statusDirName)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	return &StatusFile{
		path: path.Join(dir, "status.json"),
		last: map[Target]string{},
	}, nil
}

func (s *StatusFile) Path() string { return s.path }

// Update rewrites the target's entry in place, leaving other targets' fields
// untouched.
func (s *StatusFile) Update(t Target, state string, res *Result, buildErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[t] = state

	data, err := os.ReadFile(s.path)
	if err != nil {
		data = []byte("{}")
	}
	key := "targets." + t.String()
	data, _ = sjson.SetBytes(data, key+".state", state)
	data, _ = sjson.SetBytes(data, key+".updatedAt", time.Now().Format(time.RFC3339))
	if res != nil {
		data, _ = sjson.SetBytes(data, key+".durationMs", res.Duration.Milliseconds())
	}
	if buildErr != nil {
		data, _ = sjson.SetBytes(data, key+".error", buildErr.Error())
	} else {
		data, _ = sjson.DeleteBytes(data, key+".error")
	}
	_ = os.WriteFile(s.path, data, 0600)
}

// States is a stable target=state snapshot, for logging.
func (s *StatusFile) States() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := maps.Keys(s.last)
	sort.Slice(ts, func(i, j int) bool { return ts[i] < ts[j] })
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.String()+"="+s.last[t])
	}
	return out
}
