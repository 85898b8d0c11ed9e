// Command rsyncd-handshake runs an rsync daemon that accepts
// connections, drives each through the module-selection/auth/argument
// handshake, and logs the resulting transfer configuration. It does
// not implement the file-list exchange or delta transfer that would
// normally follow a successful handshake.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	rsynclog "github.com/gokrazy/rsync-handshake/internal/log"
	"github.com/gokrazy/rsync-handshake/internal/modules"
	"github.com/gokrazy/rsync-handshake/rsyncd"
)

func main() {
	var (
		listenAddr = flag.String("listen", ":8730", "address to listen on")
		configPath = flag.String("config", "", "path to a rsyncd.toml module configuration file")
		landlock   = flag.Bool("landlock", true, "restrict filesystem access to module roots (Linux only, best-effort)")
	)
	flag.Parse()

	if *configPath == "" {
		log.Fatal("-config is required")
	}

	registry, err := modules.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := rsynclog.New(os.Stderr)

	srv, err := rsyncd.NewServer(registryModules(registry), rsyncd.WithLogger(logger))
	if err != nil {
		log.Fatalf("starting server: %v", err)
	}

	if *landlock {
		if err := srv.RestrictToModules(); err != nil {
			logger.Printf("landlock restriction not applied: %v", err)
		}
	}

	ln, err := net.Listen("tcp", *listenAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	logger.Printf("listening on %s", ln.Addr())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Serve(ctx, ln); err != nil {
		log.Fatalf("serve: %v", err)
	}
}

// registryModules flattens a *modules.Registry back into the slice
// rsyncd.NewServer expects (NewServer builds its own Registry from
// it). Modules come out sorted by name, as Registry.Names returns them.
func registryModules(r *modules.Registry) []modules.Module {
	var out []modules.Module
	for _, name := range r.Names() {
		m, err := r.Get(name)
		if err != nil {
			continue
		}
		out = append(out, *m)
	}
	return out
}
