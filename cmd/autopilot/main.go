package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/aristath/autopilot/internal/agent"
	"github.com/aristath/autopilot/internal/config"
	"github.com/aristath/autopilot/internal/engine"
	"github.com/aristath/autopilot/internal/events"
	"github.com/aristath/autopilot/internal/prompt"
	"github.com/aristath/autopilot/internal/remote"
	"github.com/aristath/autopilot/internal/session"
	"github.com/aristath/autopilot/internal/tracker"
	"github.com/aristath/autopilot/internal/tui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	headless := flag.Bool("headless", false, "run without the dashboard")
	maxIterations := flag.Int("max-iterations", 0, "override the configured iteration budget")
	forceResume := flag.Bool("force-resume", false, "take over a session held by a dead process")
	flag.Parse()

	command := flag.Arg(0)
	if command == "" {
		command = "run"
	}
	switch command {
	case "init":
		return runInit()
	case "run", "resume":
	default:
		return fmt.Errorf("unknown command %q (expected init, run, or resume)", command)
	}

	// Secrets come from the environment; .env is a convenience for dev setups
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadDefault()
	if err != nil {
		return err
	}
	if *maxIterations > 0 {
		cfg.Engine.MaxIterations = *maxIterations
	}

	pm := agent.NewProcessManager()

	registry := agent.NewRegistry()
	for id, def := range cfg.Agents.Definitions {
		a, err := agent.New(agent.Config{
			ID:                id,
			Type:              def.Type,
			Command:           def.Command,
			Args:              def.Args,
			Model:             def.Model,
			RateLimitPatterns: def.RateLimitPatterns,
		}, pm)
		if err != nil {
			return fmt.Errorf("agent %q: %w", id, err)
		}
		if err := registry.Register(a); err != nil {
			return err
		}
	}
	// Project-local agent definitions extend the configured set
	if err := agent.LoadCatalog(".", registry, pm); err != nil {
		log.Printf("WARNING: loading agent catalog: %v", err)
	}

	trk, err := tracker.New(cfg.Tracker.Kind, cfg.Tracker.Path)
	if err != nil {
		return err
	}

	lock, err := session.AcquireLock(cfg.Session.Path+".lock", *forceResume)
	if err != nil {
		if errors.Is(err, session.ErrSessionLocked) {
			return fmt.Errorf("%w (another autopilot owns this session; use --force-resume if it is dead)", err)
		}
		return err
	}
	defer lock.Release()

	store, err := session.NewSQLiteStore(ctx, cfg.Session.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	var state *engine.EngineState
	switch command {
	case "resume":
		snap, err := store.Load(ctx)
		switch {
		case errors.Is(err, session.ErrNoSession):
			log.Println("no previous session; starting fresh")
		case err != nil:
			return err
		default:
			repaired, err := session.Reconcile(ctx, snap.State, trk)
			if err != nil {
				return fmt.Errorf("reconciling session: %w", err)
			}
			state = &repaired
			log.Printf("resumed session %s at iteration %d", repaired.RunID, repaired.CurrentIteration)
		}
	case "run":
		if err := store.Clear(ctx); err != nil {
			return err
		}
	}

	bus := events.NewEventBus()
	defer bus.Close()

	builder, err := prompt.NewBuilder("", cfg.Engine.CompletionToken)
	if err != nil {
		return err
	}

	ctrl := engine.NewController(engine.Config{
		MaxIterations:   cfg.Engine.MaxIterations,
		FailureStrategy: engine.FailureStrategy(cfg.Engine.FailureStrategy),
		MaxTaskRetries:  cfg.Engine.MaxTaskRetries,
		CompletionToken: cfg.Engine.CompletionToken,
		ExecTimeout:     time.Duration(cfg.Engine.ExecTimeoutMS) * time.Millisecond,
		Backoff: engine.BackoffConfig{
			Base:       time.Duration(cfg.Engine.Backoff.BaseMS) * time.Millisecond,
			Max:        time.Duration(cfg.Engine.Backoff.MaxMS) * time.Millisecond,
			MaxRetries: cfg.Engine.Backoff.MaxRetries,
		},
		Probe: engine.ProbeConfig{
			Enabled: cfg.Engine.Probe.Enabled,
			Timeout: time.Duration(cfg.Engine.Probe.TimeoutMS) * time.Millisecond,
		},
		PrimaryAgent:   cfg.Agents.Primary,
		FallbackAgents: cfg.Agents.Fallbacks,
	}, registry, trk, builder, bus, store, state)

	if cfg.Remote.Enabled {
		srv := remote.NewServer(cfg.Remote.Addr, cfg.Remote.Token, ctrl, bus)
		go func() {
			if err := srv.Run(ctx); err != nil {
				log.Printf("ERROR: remote server: %v", err)
			}
		}()
		log.Printf("remote control listening on %s", cfg.Remote.Addr)
	}

	if err := ctrl.Start(ctx); err != nil {
		return err
	}

	if *headless {
		return runHeadless(ctx, ctrl, bus, pm)
	}
	return runDashboard(ctx, ctrl, bus, pm)
}

// runInit scaffolds a project: writes .autopilot/config.json with defaults
// and a starter task file. Existing files are left alone.
func runInit() error {
	cfg := config.DefaultConfig()
	cfgPath := ".autopilot/config.json"
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := config.Save(cfg, cfgPath); err != nil {
			return err
		}
		log.Printf("wrote %s", cfgPath)
	} else {
		log.Printf("%s already exists, leaving it alone", cfgPath)
	}

	if _, err := os.Stat(cfg.Tracker.Path); os.IsNotExist(err) {
		starter := []tracker.Task{
			{
				ID:          "task-1",
				Title:       "Describe your first task",
				Description: "Replace this with real work. Tasks run in priority order once their dependencies complete.",
				Status:      tracker.StatusOpen,
				Priority:    1,
			},
		}
		if err := tracker.WriteTaskFile(cfg.Tracker.Path, starter); err != nil {
			return err
		}
		log.Printf("wrote %s", cfg.Tracker.Path)
	} else {
		log.Printf("%s already exists, leaving it alone", cfg.Tracker.Path)
	}

	return nil
}

// runHeadless logs bus events until the run finishes or a signal arrives.
func runHeadless(ctx context.Context, ctrl *engine.Controller, bus *events.EventBus, pm *agent.ProcessManager) error {
	sub := bus.SubscribeAll(0)
	done := make(chan struct{})
	go func() {
		ctrl.Wait()
		close(done)
	}()

	for {
		select {
		case ev, ok := <-sub:
			if !ok {
				return nil
			}
			logEvent(ev)
		case <-done:
			return exitStatus(ctrl)
		case <-ctx.Done():
			log.Println("Shutdown signal received, cleaning up...")
			if err := pm.KillAll(); err != nil {
				log.Printf("Error killing subprocesses: %v", err)
			}
			ctrl.Stop()
			return nil
		}
	}
}

// runDashboard runs the Bubble Tea TUI alongside the engine.
func runDashboard(ctx context.Context, ctrl *engine.Controller, bus *events.EventBus, pm *agent.ProcessManager) error {
	p := tea.NewProgram(tui.New(ctrl, bus), tea.WithAltScreen())

	errChan := make(chan error, 1)
	go func() {
		_, err := p.Run()
		errChan <- err
	}()

	select {
	case err := <-errChan:
		// Normal TUI exit (user pressed 'q')
		ctrl.Stop()
		if err != nil {
			return err
		}
		return exitStatus(ctrl)

	case <-ctx.Done():
		log.Println("Shutdown signal received, cleaning up...")
		if err := pm.KillAll(); err != nil {
			log.Printf("Error killing subprocesses: %v", err)
		}
		ctrl.Stop()
		p.Quit()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		select {
		case err := <-errChan:
			if err != nil {
				log.Printf("TUI exit error: %v", err)
			}
		case <-shutdownCtx.Done():
			log.Println("Shutdown timeout exceeded, forcing exit")
		}
		return nil
	}
}

// exitStatus maps the final engine state to the process exit.
func exitStatus(ctrl *engine.Controller) error {
	st := ctrl.State()
	if st.Status == engine.StatusError {
		return fmt.Errorf("run failed after %d iterations", st.CompletedIterations())
	}
	log.Printf("run finished: %s, %d iterations", st.Status, st.CompletedIterations())
	return nil
}

func logEvent(ev events.Event) {
	switch e := ev.(type) {
	case events.AgentOutputEvent:
		fmt.Printf("[%s] %s\n", e.AgentID, e.Line)
	case events.GapEvent:
		log.Printf("WARNING: %d events dropped", e.Dropped)
	default:
		if ev.TaskID() != "" {
			log.Printf("%s task=%s", ev.EventType(), ev.TaskID())
		} else {
			log.Printf("%s", ev.EventType())
		}
	}
}
