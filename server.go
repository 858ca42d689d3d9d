package devtools

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

//go:embed reload.js
var reloadJS []byte

// DevServer serves the built web bundle during development and pushes reload /
// build-error events to connected pages over SSE.
type DevServer struct {
	root     string
	manifest *ManifestV1
	port     int
	status   *StatusFile

	lock    sync.Mutex
	senders map[int]chan any
	nextID  int
}

func NewServer(root string, manifest *ManifestV1, port int, status *StatusFile) (*DevServer, error) {
	return &DevServer{
		root:     root,
		manifest: manifest,
		port:     port,
		status:   status,
		senders:  map[int]chan any{},
	}, nil
}

type reloadEvent struct {
	Type   string `json:"type"`
	Target string `json:"target"`
}

type buildErrorEvent struct {
	Type   string `json:"type"`
	Target string `json:"target"`
	Out    string `json:"out"`
	Err    string `json:"err"`
}

type pingEvent struct {
	Type string `json:"type"`
}

func (s *DevServer) Serve(ctx context.Context) error {
	srv := &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 200 * time.Millisecond,
		Addr:              fmt.Sprintf(":%d", s.port),
	}
	go s.pingLoop(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *DevServer) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.broadcast(pingEvent{Type: "ping"})
		}
	}
}

func (s *DevServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)

	r.Get("/events", s.events)

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		data, err := os.ReadFile(s.status.Path())
		if err != nil {
			data = []byte("{}")
		}
		w.Header().Add("Content-type", "application/json")
		w.Header().Add("Cache-control", "no-store")
		if _, err := w.Write(data); err != nil {
			fmt.Printf("error: %#v\n", err)
		}
	})

	r.Get("/reload.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Content-type", "application/javascript")
		if _, err := w.Write(reloadJS); err != nil {
			fmt.Printf("error: %#v\n", err)
		}
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		s.serveBundleFile(w, "index.html", "text/html")
	})

	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		assetPath := filepath.FromSlash(filepath.Clean(chi.URLParam(r, "*")))
		ct := mime.TypeByExtension(filepath.Ext(assetPath))
		if filepath.Ext(assetPath) == ".wasm" {
			ct = "application/wasm"
		}
		s.serveBundleFile(w, assetPath, ct)
	})

	return r
}

func (s *DevServer) serveBundleFile(w http.ResponseWriter, name, contentType string) {
	// #nosec G304
	f, err := os.ReadFile(path.Join(s.manifest.BundleDir(s.root), name))
	if err != nil {
		if os.IsNotExist(err) {
			w.WriteHeader(404)
			return
		}
		fmt.Printf("error: %#v\n", err)
		w.WriteHeader(500)
		return
	}
	w.Header().Add("Content-type", contentType)
	w.Header().Add("Cache-control", "no-store")
	if _, err := w.Write(f); err != nil {
		fmt.Printf("error: %#v\n", err)
	}
}

func (s *DevServer) events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported!", http.StatusInternalServerError)
		return
	}

	s.lock.Lock()
	currentID := s.nextID
	c := make(chan any, 10)
	s.senders[currentID] = c
	s.nextID++
	s.lock.Unlock()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	encoder := json.NewEncoder(w)
	defer func() {
		s.lock.Lock()
		defer s.lock.Unlock()
		delete(s.senders, currentID)
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-c:
			if _, err := w.Write([]byte("data: ")); err != nil {
				return
			}
			if err := encoder.Encode(ev); err != nil {
				return
			}
			if _, err := w.Write([]byte("\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// Reload tells connected pages the target was rebuilt.
func (s *DevServer) Reload(t Target) {
	s.broadcast(&reloadEvent{Type: "reload", Target: t.String()})
}

// BuildError pushes the captured tool output so the page can show it.
func (s *DevServer) BuildError(t Target, stdout, stderr string) {
	s.broadcast(&buildErrorEvent{Type: "buildError", Target: t.String(), Out: stdout, Err: stderr})
}

func (s *DevServer) broadcast(ev any) {
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, sender := range s.senders {
		select {
		case sender <- ev:
		default:
			// Slow subscriber, drop rather than stall the build loop.
		}
	}
}
