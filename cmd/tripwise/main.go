// Command tripwise runs the travel-assistant backend: an HTTP server by
// default, or an interactive REPL with -repl.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/tripwise/tripwise/internal/agent"
	"github.com/tripwise/tripwise/internal/cli"
	"github.com/tripwise/tripwise/internal/config"
	"github.com/tripwise/tripwise/internal/httpx"
	"github.com/tripwise/tripwise/internal/ledger"
	"github.com/tripwise/tripwise/internal/llm/openai"
	"github.com/tripwise/tripwise/internal/metrics"
	"github.com/tripwise/tripwise/internal/planner"
	"github.com/tripwise/tripwise/internal/router"
	"github.com/tripwise/tripwise/internal/session"
	"github.com/tripwise/tripwise/internal/tool"
	"github.com/tripwise/tripwise/internal/tool/builtin"
	"github.com/tripwise/tripwise/internal/turn"
	"github.com/tripwise/tripwise/internal/web"
)

func main() {
	replMode := flag.Bool("repl", false, "run the interactive REPL instead of the HTTP server")
	flag.Parse()

	config.LoadEnv()
	cfg := config.FromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[Main] Invalid configuration: %v", err)
	}

	llmCfg, err := openai.NewConfigFromEnv()
	if err != nil {
		log.Fatalf("[Main] LLM configuration: %v", err)
	}
	provider, err := openai.NewClient(llmCfg)
	if err != nil {
		log.Fatalf("[Main] LLM client: %v", err)
	}

	store, err := newStore(cfg)
	if err != nil {
		log.Fatalf("[Main] Session store: %v", err)
	}
	defer store.Close()

	m := metrics.New()

	registry := tool.NewRegistry()
	builtin.RegisterAll(registry, httpx.New(), builtin.CatalogConfig{
		TavilyAPIKey:        cfg.TavilyAPIKey,
		OpenTripMapAPIKey:   cfg.OpenTripMapAPIKey,
		AmadeusClientID:     cfg.AmadeusClientID,
		AmadeusClientSecret: cfg.AmadeusClientSecret,
		VectaraAPIKey:       cfg.VectaraAPIKey,
		VectaraCorpusKey:    cfg.VectaraCorpusKey,
		PolicyTimeout:       cfg.PolicyTimeout,
		DeepResearchEnabled: cfg.DeepResearchEnabled,
	})

	rt := router.New(provider, m, router.Config{
		ComplexityGateEnabled: cfg.DeepResearchEnabled,
		LightweightEnabled:    true,
		ClassifierTimeout:     cfg.ClassifierTimeout,
	})
	pl := planner.New(provider, m)
	actor := agent.New(provider, registry, m)

	driver := turn.NewDriver(store, rt, pl, actor, m, turn.Config{
		TurnTimeout: cfg.TurnTimeout,
		LedgerTTLs: ledger.TTLConfig{
			Success:   cfg.LedgerSuccessTTL,
			HTTPBlock: cfg.LedgerHTTPBlockTTL,
			Schema:    cfg.LedgerSchemaTTL,
			Fail:      cfg.LedgerFailTTL,
		},
	})

	if *replMode {
		if err := cli.New(driver, m, os.Stdin, os.Stdout).Run(context.Background()); err != nil {
			log.Fatalf("[Main] REPL: %v", err)
		}
		return
	}

	server := web.NewServer(":"+cfg.Port, driver, m, store)

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalf("[Main] Server stopped: %v", err)
	case sig := <-sigCh:
		log.Printf("[Main] Received %v, shutting down", sig)
		if err := server.Shutdown(context.Background()); err != nil {
			log.Printf("[Main] Shutdown: %v", err)
		}
	}
}

func newStore(cfg config.Config) (session.Store, error) {
	if cfg.SessionKind == "remote" {
		return session.NewRedisStore(cfg.SessionRemoteURL, cfg.SessionTTL, cfg.SessionTimeout)
	}
	return session.NewMemoryStore(cfg.SessionTTL), nil
}
