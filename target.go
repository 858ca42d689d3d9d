package devtools

// Target is a selectable build configuration.
type Target int

const (
	Client Target = iota
	Server
	ServerRun
)

func (t Target) String() string {
	switch t {
	case Client:
		return "client"
	case Server:
		return "server"
	case ServerRun:
		return "server-run"
	}
	return "unknown"
}

// TargetSelection is built once from the CLI flags and never mutated
// afterwards.
type TargetSelection struct {
	targets  []Target
	features []string
}

// NewSelection maps the flag set to targets. The run flag only modifies the
// server target; on its own it selects nothing.
func NewSelection(client, server, run, clientSideOnly bool) TargetSelection {
	var s TargetSelection
	if client {
		s.targets = append(s.targets, Client)
	}
	if server {
		if run {
			s.targets = append(s.targets, ServerRun)
		} else {
			s.targets = append(s.targets, Server)
		}
	}
	if clientSideOnly {
		s.features = append(s.features, "client-side-only")
	}
	return s
}

func (s TargetSelection) Targets() []Target { return s.targets }

// Features are flag names folded into every build command that runs.
func (s TargetSelection) Features() []string { return s.features }

func (s TargetSelection) Empty() bool { return len(s.targets) == 0 }

func (s TargetSelection) Has(t Target) bool {
	for _, st := range s.targets {
		if st == t {
			return true
		}
	}
	return false
}
