// Command plugind runs the single-threaded, edge-triggered HTTP server
// described by this module: one reactor goroutine, one coroutine per
// accepted connection, and a fixed libnetwork-style plugin route table
// (spec.md §1, §6).
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fly-zero/docker-network-plugin-demo/internal/config"
	"github.com/fly-zero/docker-network-plugin-demo/internal/listener"
	"github.com/fly-zero/docker-network-plugin-demo/internal/logging"
	"github.com/fly-zero/docker-network-plugin-demo/internal/plugin"
	"github.com/fly-zero/docker-network-plugin-demo/internal/reactor"
	"github.com/fly-zero/docker-network-plugin-demo/internal/route"
)

func main() {
	configPath := flag.String("config", "", "path to a plugin.json config file; defaults are used if empty")
	flag.Parse()

	log := logging.Default()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Errorf("config: %v", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if level, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		log.Warnf("config: invalid log_level %q, keeping default: %v", cfg.LogLevel, err)
	} else {
		log.SetLevel(level)
	}

	if err := run(cfg, *configPath, log); err != nil {
		log.Errorf("plugind: %v", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, configPath string, log *logging.Logger) error {
	r, err := reactor.New()
	if err != nil {
		return err
	}
	defer r.Close()

	tbl := route.New()
	plugin.Register(tbl, cfg)

	live := config.NewLive(cfg)
	lst, err := listener.New(r, tbl, log, live, listener.Config{
		Listen:     cfg.Listen,
		StackBytes: cfg.StackBytes,
	})
	if err != nil {
		return err
	}
	defer lst.Close()

	if err := r.SubscribeIO(lst, reactor.Readable); err != nil {
		return err
	}
	if err := r.SubscribeTick(lst); err != nil {
		return err
	}

	var stopWatch chan struct{}
	if configPath != "" {
		stopWatch = make(chan struct{})
		go func() {
			if err := config.Watch(configPath, live, log, stopWatch); err != nil {
				log.Warnf("config: watch stopped: %v", err)
			}
		}()
		defer close(stopWatch)
	}

	trigger := &shutdownTrigger{listener: lst, reactor: r}
	if err := r.SubscribeTick(trigger); err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Infof("plugind: shutdown requested")
		trigger.requested.Store(true)
	}()
	defer signal.Stop(sig)

	log.Infof("plugind: listening on %s", cfg.Listen)
	if err := r.Run(); err != nil {
		return err
	}
	if err := lst.Err(); err != nil {
		return err
	}
	log.Infof("plugind: stopped")
	return nil
}

// shutdownTrigger is a reactor.TickSubscriber that, once requested is set
// by a signal handler, asks the listener to force every active connection
// to CLOSING, reaps them, and then stops the reactor. Running this from inside OnTick
// keeps the listener's list mutations on the single reactor goroutine
// (spec.md §5 "the listener exclusively owns the active/closing lists;
// mutations occur only on the reactor thread") instead of racing with it
// from the signal-handling goroutine.
type shutdownTrigger struct {
	listener  *listener.Listener
	reactor   *reactor.Reactor
	requested atomic.Bool
	handled   bool
}

func (t *shutdownTrigger) OnTick() {
	if !t.requested.Load() || t.handled {
		return
	}
	t.handled = true
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.listener.Shutdown(ctx); err != nil {
		// ctx's deadline is generous and Shutdown does no blocking I/O of
		// its own, so this only fires if Shutdown's contract changes.
		_ = err
	}
	// The listener's own OnTick already ran earlier in this iteration, and
	// Stop ends the loop after it, so reap what Shutdown queued right here.
	t.listener.OnTick()
	t.reactor.Stop()
}
