package cmd

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mentionwatch/internal/api"
	"mentionwatch/internal/config"
	"mentionwatch/worker"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

// apiWorker runs the HTTP server under the worker manager.
type apiWorker struct {
	server *api.Server
	addr   string
}

func (w *apiWorker) Start(ctx context.Context) error {
	return w.server.Run(ctx, w.addr)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the scan scheduler and the rate-limit sweeper",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		gin.SetMode(gin.ReleaseMode)
		server := api.New(api.Config{
			Monitor:  a.monitor,
			Trends:   a.trends,
			Jobs:     a.tracker,
			Health:   a.registry,
			Gatherer: a.promReg,
		})

		ws := []worker.Worker{
			&apiWorker{server: server, addr: cfg.Server.Addr},
			&worker.ScanScheduler{
				Monitor:     a.monitor,
				Tracker:     a.tracker,
				Interval:    config.Duration(cfg.Monitor.PollInterval, time.Minute),
				Concurrency: cfg.Monitor.Concurrency,
			},
			&worker.RateLimitSweeper{
				Limiter:  a.limiter,
				Scraper:  a.scraper,
				Interval: config.Duration(cfg.RateLimit.SweepInterval, 15*time.Minute),
			},
		}
		slog.Info("starting mentionwatch", "addr", cfg.Server.Addr, "platforms", a.registry.Platforms(), "storage", cfg.Storage.Driver)
		mgr := worker.NewManager(ws...)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Signal handling for systemd
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			s := <-sigc
			log.Printf("received signal: %s, shutting down", s)
			cancel()
		}()

		return mgr.Start(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
