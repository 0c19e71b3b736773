package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/time/rate"

	"github.com/dealerdesk/internal/api"
	"github.com/dealerdesk/internal/billing"
	"github.com/dealerdesk/internal/config"
	"github.com/dealerdesk/internal/conversation"
	"github.com/dealerdesk/internal/crm"
	"github.com/dealerdesk/internal/customer"
	"github.com/dealerdesk/internal/database"
	"github.com/dealerdesk/internal/events"
	"github.com/dealerdesk/internal/ledger"
	"github.com/dealerdesk/internal/logging"
	"github.com/dealerdesk/internal/orchestrator"
	"github.com/dealerdesk/internal/retry"
	"github.com/dealerdesk/internal/suggest"
)

// ServeCommand returns the CLI command for starting the API server
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the DealerDesk API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server (overrides config)",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Pretty)

	port := cfg.Server.Port
	if c.Int("port") != 0 {
		port = c.Int("port")
	}

	ctx := context.Background()
	pool, err := database.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	// The sync journal runs on database/sql with its own pool.
	db, err := database.NewDB(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	bus := events.NewBus()

	// Stores
	idem := ledger.NewPostgresLedger(pool)
	conversations := conversation.NewService(conversation.NewPostgresStore(pool), bus)
	customerStore := customer.NewPostgresStore(pool)
	customers := customer.NewService(customerStore, bus)
	assistance := suggest.NewPostgresAssistanceStore(pool)
	states := billing.NewPostgresStateStore(pool)
	journal := crm.NewPostgresAttemptStore(db)

	// AI suggestion engine
	connector, err := suggest.NewConnector(ctx, suggest.ConnectorOptions{
		Provider: suggest.Provider(cfg.AI.Provider),
		APIKey:   cfg.AI.APIKey,
		BaseURL:  cfg.AI.ServerURL,
		ModelConfig: suggest.ModelConfig{
			Model:       cfg.AI.Model,
			Temperature: cfg.AI.Temperature,
			MaxTokens:   cfg.AI.MaxTokens,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create AI connector: %w", err)
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.AI.RateLimit), 1)
	engine := suggest.NewEngine(connector, assistance, retry.SuggestionPolicy(), limiter)

	// Billing webhook processor
	processor := billing.NewProcessor(cfg.Billing.WebhookSecret, idem, states, bus)

	// CRM sync: adapter behind a durable queue, fanned out by the
	// orchestrator
	adapter := crm.NewAdapter(crm.NewHTTPProvider(cfg.CRM.BaseURL, cfg.CRM.Token), idem, journal)

	queueCfg := orchestrator.DefaultQueueConfig()
	if cfg.Sync.Mode == "development" {
		queueCfg = orchestrator.DevelopmentQueueConfig()
	}
	queueCfg.MaxWorkers = cfg.Sync.MaxWorkers
	queueCfg.MaxRetries = cfg.Sync.MaxRetries
	queueCfg.LedgerRetention = time.Duration(cfg.Sync.RetentionDays) * 24 * time.Hour

	queue, err := orchestrator.NewJobQueue(pool, orchestrator.JobQueueDeps{
		Adapter:   adapter,
		Ledger:    idem,
		Attempts:  journal,
		Customers: customerStore,
		States:    states,
	}, queueCfg)
	if err != nil {
		return fmt.Errorf("failed to create job queue: %w", err)
	}
	if err := queue.Start(ctx); err != nil {
		return fmt.Errorf("failed to start job queue: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := queue.Stop(stopCtx); err != nil {
			logging.Component("orchestrator").Error().Err(err).Msg("job queue did not stop cleanly")
		}
	}()

	orchestrator.New(queue).Register(bus)

	feed := api.NewEventFeed(0)
	feed.Register(bus)

	fmt.Printf("Starting DealerDesk API server on port %d...\n", port)
	server := api.NewServer(port, api.Deps{
		Conversations: conversations,
		Customers:     customers,
		Suggestions:   engine,
		Dispositions:  suggest.NewDispositions(assistance),
		Billing:       processor,
		SyncJournal:   journal,
		Feed:          feed,
		JWTSecret:     cfg.Auth.JWTSecret,
	})
	return server.Start()
}
