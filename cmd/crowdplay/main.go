package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/antoniostano/crowdplay/internal/autosave"
	"github.com/antoniostano/crowdplay/internal/commands"
	"github.com/antoniostano/crowdplay/internal/config"
	"github.com/antoniostano/crowdplay/internal/device"
	"github.com/antoniostano/crowdplay/internal/httpapi"
	"github.com/antoniostano/crowdplay/internal/observability"
	"github.com/antoniostano/crowdplay/internal/orchestrator"
	"github.com/antoniostano/crowdplay/internal/platform"
	"github.com/antoniostano/crowdplay/internal/recorder"
	"github.com/antoniostano/crowdplay/internal/state"
)

func main() {
	if len(os.Args) != 2 {
		log.Fatalf("usage: %s <platform-token>", os.Args[0])
	}
	token := strings.TrimSpace(os.Args[1])
	if token == "" {
		log.Fatalf("platform token must not be empty")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store, err := state.NewStore(ctx, cfg.StateURL)
	if err != nil {
		log.Fatalf("state store init failed: %v", err)
	}
	defer store.Close()

	doc, err := store.Load(ctx)
	if err != nil {
		log.Fatalf("loading state document failed: %v", err)
	}

	// The real platform binding and emulator binding live outside this
	// repository; they receive the token at construction. The shipped mock
	// and pattern console keep the full pipeline runnable locally.
	messenger := newMessenger(token)
	console := device.NewPatternConsole()

	orch := orchestrator.New(cfg, console, messenger, store, doc, metrics)
	saver := autosave.New(orch, messenger, console, cfg.ClickDuration)
	orch.SetScheduler(saver)
	orch.Engine().AddConsumer(saver)

	var handler platform.Handler = commands.NewDispatcher(cfg, orch, saver, messenger)
	messenger.Handler = handler

	if err := messenger.RegisterCommands(ctx, commands.Groups()); err != nil {
		log.Fatalf("registering commands failed: %v", err)
	}

	rec := recorder.New(doc.RecordingDir, orch.Paused)
	orch.Engine().AddConsumer(rec)

	api := httpapi.New(cfg, orch, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	orch.Run(runCtx)

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	if orch.Running() {
		if err := orch.StopGame(ctx); err != nil {
			log.Printf("stopping session: %v", err)
		}
	}

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}

// newMessenger builds the platform adapter. Only the in-memory mock ships in
// this repository; a production deployment swaps in a real binding built on
// the platform's REST transport, authenticated with the token.
func newMessenger(token string) *platform.Mock {
	_ = token
	log.Printf("platform adapter: mock (token accepted)")
	return platform.NewMock()
}
