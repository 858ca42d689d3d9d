package devtools

import (
	"reflect"
	"testing"
)

func TestNewSelection(t *testing.T) {
	cases := []struct {
		name                         string
		client, server, run, cso     bool
		wantTargets                  []Target
		wantFeatures                 []string
	}{
		{name: "no flags"},
		{name: "client", client: true, wantTargets: []Target{Client}},
		{name: "server", server: true, wantTargets: []Target{Server}},
		{name: "server run", server: true, run: true, wantTargets: []Target{ServerRun}},
		{name: "run alone selects nothing", run: true},
		{name: "both", client: true, server: true, wantTargets: []Target{Client, Server}},
		{
			name: "client side only feature", client: true, cso: true,
			wantTargets: []Target{Client}, wantFeatures: []string{"client-side-only"},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			sel := NewSelection(c.client, c.server, c.run, c.cso)
			if !reflect.DeepEqual(sel.Targets(), c.wantTargets) {
				t.Errorf("targets = %v, want %v", sel.Targets(), c.wantTargets)
			}
			if !reflect.DeepEqual(sel.Features(), c.wantFeatures) {
				t.Errorf("features = %v, want %v", sel.Features(), c.wantFeatures)
			}
			if sel.Empty() != (len(c.wantTargets) == 0) {
				t.Errorf("Empty() = %v with targets %v", sel.Empty(), sel.Targets())
			}
		})
	}
}

func TestSelectionHas(t *testing.T) {
	sel := NewSelection(true, true, true, false)
	if !sel.Has(Client) || !sel.Has(ServerRun) {
		t.Errorf("expected client and server-run in %v", sel.Targets())
	}
	if sel.Has(Server) {
		t.Errorf("plain server should not be selected when run is set")
	}
}
