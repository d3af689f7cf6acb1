package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v3"

	"jira-sync/config"
	"jira-sync/handlers"
	"jira-sync/jira"
	"jira-sync/repository"
	"jira-sync/services"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cmd := &cli.Command{
		Name:   "jira-sync",
		Usage:  "issue tracker integration service",
		Flags:  []cli.Flag{envFileFlag()},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API, webhook queue and sweeper",
				Flags:  []cli.Flag{envFileFlag()},
				Action: serve,
			},
			{
				Name:  "validate",
				Usage: "run the connection handshake against a tracker and print the result",
				Flags: []cli.Flag{
					envFileFlag(),
					&cli.StringFlag{Name: "url", Usage: "tracker URL as a user would paste it", Required: true},
					&cli.StringFlag{Name: "email", Usage: "account email for API token auth"},
					&cli.StringFlag{Name: "api-token", Sources: cli.EnvVars("JIRA_API_TOKEN"), Usage: "API token"},
					&cli.StringFlag{Name: "username", Usage: "username for basic auth"},
					&cli.StringFlag{Name: "password", Sources: cli.EnvVars("JIRA_PASSWORD"), Usage: "password for basic auth"},
					&cli.StringFlag{Name: "access-token", Sources: cli.EnvVars("JIRA_ACCESS_TOKEN"), Usage: "OAuth access token"},
				},
				Action: validate,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func envFileFlag() cli.Flag {
	return &cli.StringFlag{
		Sources: cli.EnvVars("ENV_FILE"),
		Name:    "env-file",
		Value:   ".env",
		Usage:   "optional dotenv file loaded before reading the environment",
	}
}

func serve(ctx context.Context, c *cli.Command) error {
	cfg, err := config.Load(c.String("env-file"))
	if err != nil {
		return err
	}

	db, err := repository.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	integrations := repository.NewIntegrationStore(db)
	mappings := repository.NewMappingStore(db)
	links := repository.NewLinkStore(db)
	events := repository.NewWebhookEventStore(db)

	validator := services.NewConnectionValidator(vendorFor(cfg), cfg.ProbeTimeout, cfg.RequestTimeout)
	clients := services.NewClientFactory(jira.WithTimeout(cfg.RequestTimeout))
	engine := services.NewSyncEngine(integrations, mappings, links, repository.NewEntityStore(db), clients)
	processor := services.NewWebhookProcessor(events, links, engine)
	queue := services.NewTaskQueue(cfg.WebhookWorkers, cfg.WebhookQueueSize)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// running tasks outlive the signal so shutdown can drain them
	queue.Start(context.Background())

	notifier := services.NewFailureNotifier(cfg.SlackBotToken, cfg.SlackAlertChannel)
	go notifier.Watch(ctx, queue.Failures())

	sweeper := services.NewSweeper(events, queue, processor, engine, cfg.StaleEventAfter)
	if err := sweeper.Start(cfg.SweepSchedule); err != nil {
		return err
	}
	defer sweeper.Stop()
	if n, err := sweeper.SweepStaleEvents(ctx); err != nil {
		log.Printf("startup sweep failed: error=%v", err)
	} else if n > 0 {
		log.Printf("startup sweep queued %d events", n)
	}

	r := gin.Default()
	handlers.RegisterRoutes(r, handlers.Dependencies{
		Integrations: integrations,
		Events:       events,
		Validator:    validator,
		Service:      services.NewIntegrationService(validator, integrations, mappings, clients, cfg.PublicBaseURL),
		Engine:       engine,
		Processor:    processor,
		Queue:        queue,
	})

	srv := &http.Server{Addr: cfg.Addr(), Handler: r}
	serveErr := make(chan error, 1)
	go func() {
		log.Printf("listening: addr=%s db=%s", cfg.Addr(), cfg.DBPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: error=%v", err)
	}
	return queue.Stop(shutdownCtx)
}

func validate(ctx context.Context, c *cli.Command) error {
	cfg, err := config.Load(c.String("env-file"))
	if err != nil {
		return err
	}

	validator := services.NewConnectionValidator(vendorFor(cfg), cfg.ProbeTimeout, cfg.RequestTimeout)
	result := validator.TestConnection(ctx, services.ConnectionConfig{
		URL: c.String("url"),
		Credentials: jira.Credentials{
			AccessToken: c.String("access-token"),
			Email:       c.String("email"),
			APIToken:    c.String("api-token"),
			Username:    c.String("username"),
			Password:    c.String("password"),
		},
	})

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	if !result.Success {
		return cli.Exit("", 1)
	}
	return nil
}

func vendorFor(cfg *config.Config) jira.Vendor {
	return jira.Vendor{
		CloudDomains: cfg.CloudDomains(),
		RootDomains:  jira.DefaultVendor.RootDomains,
	}
}
