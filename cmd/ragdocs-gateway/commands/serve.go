package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/telnet2/ragdocs-gateway/internal/config"
	"github.com/telnet2/ragdocs-gateway/internal/engine"
	"github.com/telnet2/ragdocs-gateway/internal/event"
	"github.com/telnet2/ragdocs-gateway/internal/logging"
	"github.com/telnet2/ragdocs-gateway/internal/metrics"
	"github.com/telnet2/ragdocs-gateway/internal/server"
	"github.com/telnet2/ragdocs-gateway/internal/session"
	"github.com/telnet2/ragdocs-gateway/internal/transport"
)

const shutdownTimeout = 30 * time.Second

var (
	servePort     int
	serveHostname string
	serveDir      string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway",
	Long: `Start the gateway HTTP server.

Clients open a stream on /sse or /ws, receive their session id, and post
JSON-RPC messages for the MCP engine. Sessions idle for longer than the
inactivity threshold are evicted.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", config.DefaultPort, "Port to listen on")
	serveCmd.Flags().StringVar(&serveHostname, "hostname", config.DefaultHost, "Hostname to listen on")
	serveCmd.Flags().StringVar(&serveDir, "directory", "", "Directory to read gateway.json and .env from")
}

func runServe(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(serveDir)
	if err != nil {
		return err
	}

	cfg, err := config.Load(workDir)
	if err != nil {
		return err
	}
	applyServeFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := initLogging(cfg); err != nil {
		logging.Warn().Err(err).Msg("File logging disabled")
	}
	defer logging.Close()

	logging.Info().
		Str("directory", workDir).
		Msg("Starting ragdocs gateway")

	bus := event.NewBus()
	defer bus.Close()

	m := metrics.New()
	detachMetrics := m.Attach(bus)
	defer detachMetrics()

	eng := engine.New(engine.Options{
		Name:         cfg.Engine.Name,
		Version:      cfg.Engine.Version,
		Instructions: cfg.Engine.Instructions,
	})

	registry := session.NewRegistry(eng, session.Options{
		InactivityThreshold: cfg.Session.InactivityThreshold.Std(),
		CleanupInterval:     cfg.Session.CleanupInterval.Std(),
		Transport:           transport.Options{OutboxSize: cfg.Session.OutboxSize},
		Bus:                 bus,
	})
	eng.SetInspector(registry)

	srv := server.New(&server.Config{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		CORSOrigins:       cfg.Server.CORSOrigins,
		ReadTimeout:       cfg.Server.ReadTimeout.Std(),
		HeartbeatInterval: cfg.Server.HeartbeatInterval.Std(),
		DispatchTimeout:   cfg.Session.DispatchTimeout.Std(),
		WSOrigins:         cfg.Server.WSOrigins,
	}, registry, bus, m)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logging.Info().Str("addr", srv.Addr()).Msg("Gateway listening")
		return srv.Start()
	})

	g.Go(func() error {
		return srv.KeepAlive(gctx, cfg.Server.KeepAliveInterval.Std())
	})

	g.Go(func() error {
		<-gctx.Done()
		logging.Info().Msg("Shutting down gateway")

		// Drain sessions first so open streams return and the HTTP server
		// can finish its in-flight requests.
		registry.Shutdown()
		_ = eng.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logging.Info().Msg("Gateway stopped")
	return nil
}

// applyServeFlags lets explicitly set flags win over file and env config.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Server.Port = servePort
	}
	if flags.Changed("hostname") {
		cfg.Server.Host = serveHostname
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if printLogs {
		cfg.Log.Pretty = true
	}
}

func initLogging(cfg *config.Config) error {
	return logging.Init(logging.Config{
		Level:      logging.ParseLevel(cfg.Log.Level),
		Output:     os.Stderr,
		Pretty:     cfg.Log.Pretty,
		TimeFormat: time.RFC3339,
		LogToFile:  cfg.Log.File,
		LogDir:     cfg.Log.Dir,
		Version:    Version,
	})
}
