package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/erikgeiser/promptkit/confirmation"
	devtools "github.com/odecay/punchy-devtools"
	"golang.org/x/term"
)

func main() {
	client := flag.Bool("client", false, "build the wasm client")
	server := flag.Bool("server", false, "build the native server")
	run := flag.Bool("run", false, "with -server, run the server and restart it on change")
	clientSideOnly := flag.Bool("client-side-only", false, "enable the client-side-only feature flag")
	clean := flag.Bool("clean", false, "remove build outputs before building")
	dist := flag.Bool("dist", false, "produce production builds and a web bundle zip")
	yes := flag.Bool("yes", false, "skip confirmation prompts")
	showVersion := flag.Bool("version", false, "print version and exit")
	root := flag.String("root", ".", "project root")
	port := flag.Int("port", 4000, "port for the dev server")
	debounceMS := flag.Int("debounce", 250, "quiet window in milliseconds before a rebuild")
	flag.Parse()

	if *showVersion {
		fmt.Printf("punchy-dev %s\n", devtools.Version)
		return
	}

	sel := devtools.NewSelection(*client, *server, *run, *clientSideOnly)
	if sel.Empty() {
		// No targets selected, nothing to do.
		return
	}

	projectRoot, err := filepath.Abs(*root)
	if err != nil {
		log.Fatal(err)
	}
	builder, err := devtools.NewBuilder(projectRoot, sel.Features()...)
	if err != nil {
		log.Fatal(err)
	}
	manifest, err := builder.Manifest()
	if err != nil {
		log.Fatal(err)
	}
	if err := manifest.CheckRequires(devtools.Version); err != nil {
		log.Fatal(err)
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	if *clean {
		if !*yes && !confirmClean() {
			return
		}
		if err := builder.Clean(); err != nil {
			log.Fatal(err)
		}
	}

	if *dist {
		if _, err := devtools.Dist(ctx, builder, sel); err != nil {
			log.Fatal(err)
		}
		return
	}

	status, err := devtools.NewStatusFile(projectRoot)
	if err != nil {
		log.Fatal(err)
	}
	coord := devtools.NewCoordinator(builder, sel)
	coord.Status = status

	if sel.Has(devtools.Client) {
		srv, err := devtools.NewServer(projectRoot, manifest, *port, status)
		if err != nil {
			log.Fatal(err)
		}
		coord.Notifier = srv
		go func() {
			if err := srv.Serve(ctx); err != nil {
				log.Println("dev server:", err)
			}
		}()
		fmt.Printf("Serving web bundle on port %d at project root %s\n", *port, projectRoot)
	}

	deb := devtools.NewDebouncer(time.Duration(*debounceMS)*time.Millisecond, coord.Trigger)
	watchErrs := make(chan error, 1)
	go func() {
		werr := builder.Watch(ctx, sel, deb)
		if werr != nil {
			// No further triggers can ever arrive; tear the run down.
			log.Println(werr)
			cancel()
		}
		watchErrs <- werr
	}()

	err = coord.Run(ctx)
	cancel()
	werr := <-watchErrs
	if sigCtx.Err() != nil {
		os.Exit(130)
	}
	if err == nil {
		err = werr
	}
	if err != nil {
		log.Fatal(err)
	}
}

func confirmClean() bool {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return true
	}
	input := confirmation.New("Remove existing build outputs?", confirmation.Yes)
	ok, err := input.RunPrompt()
	if err != nil {
		return false
	}
	return ok
}
