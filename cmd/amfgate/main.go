// amfgate daemon -- AMF remoting gateway (AMF0/AMF3).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/hgminh-pk/amfgate/internal/acl"
	"github.com/hgminh-pk/amfgate/internal/config"
	gwmetrics "github.com/hgminh-pk/amfgate/internal/metrics"
	"github.com/hgminh-pk/amfgate/internal/remoting"
	"github.com/hgminh-pk/amfgate/internal/server"
	appversion "github.com/hgminh-pk/amfgate/internal/version"
)

// shutdownTimeout is the maximum time to wait for HTTP servers to drain
// active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

// readHeaderTimeout bounds slow-header clients on both listeners.
const readHeaderTimeout = 5 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// 1. Parse flags.
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(appversion.Full("amfgate"))
		return 0
	}

	// 2. Load config.
	cfg, err := config.Load(*configPath)
	if err != nil {
		// Logger is not set up yet; use a temporary stderr logger.
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}

	// 3. Set up logger.
	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLogger(cfg.Log, logLevel)

	logger.Info("amfgate starting",
		slog.String("version", appversion.Version),
		slog.String("http_addr", cfg.HTTP.Addr),
		slog.String("gateway_path", cfg.HTTP.Path),
		slog.String("metrics_addr", cfg.Metrics.Addr),
		slog.Bool("production", cfg.Gateway.Production),
	)

	// 4. Create Prometheus metrics collector.
	reg := prometheus.NewRegistry()
	collector := gwmetrics.NewCollector(reg)

	// 5. Assemble the remoting gateway from configuration.
	gateway, err := buildGateway(cfg, logger, collector)
	if err != nil {
		logger.Error("failed to assemble gateway",
			slog.String("error", err.Error()),
		)
		return 1
	}

	// 6. Run servers.
	if err := runServers(cfg, gateway, reg, logger); err != nil {
		logger.Error("amfgate exited with error",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logger.Info("amfgate stopped")
	return 0
}

// newLogger builds the daemon logger from config.
func newLogger(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// buildGateway wires the ACL, authenticator, class aliases, and the
// built-in diagnostics service into a remoting gateway.
func buildGateway(cfg *config.Config, logger *slog.Logger, collector *gwmetrics.Collector) (*remoting.Gateway, error) {
	opts := []remoting.Option{
		remoting.WithMetrics(collector),
		remoting.WithProduction(cfg.Gateway.Production),
	}

	if len(cfg.ACL.Roles) > 0 || len(cfg.ACL.Rules) > 0 {
		access, err := buildACL(&cfg.ACL)
		if err != nil {
			return nil, fmt.Errorf("build acl: %w", err)
		}
		opts = append(opts, remoting.WithACL(access))
	}

	if len(cfg.Auth.Users) > 0 {
		users := make([]remoting.User, 0, len(cfg.Auth.Users))
		for _, u := range cfg.Auth.Users {
			users = append(users, remoting.User{
				ID:       u.ID,
				Password: u.Password,
				Role:     u.Role,
				Token:    u.Token,
			})
		}
		opts = append(opts, remoting.WithAuthenticator(remoting.NewStaticAuth(users)))
	}

	gateway := remoting.New(logger, opts...)

	for wire, local := range cfg.Gateway.Aliases {
		t, ok := gateway.Registry().TypeByName(local)
		if !ok {
			return nil, fmt.Errorf("alias %q: no registered type named %q", wire, local)
		}
		if err := gateway.Registry().SetMapping(wire, t); err != nil {
			return nil, fmt.Errorf("alias %q: %w", wire, err)
		}
	}

	if err := gateway.RegisterService(&diagnosticsService{}, "Diagnostics"); err != nil {
		return nil, fmt.Errorf("register diagnostics: %w", err)
	}
	collector.SetServices(len(gateway.Services()))

	return gateway, nil
}

// buildACL applies the declared roles, resources, and rules in file
// order.
func buildACL(cfg *config.ACLConfig) (*acl.ACL, error) {
	access := acl.New()
	for _, r := range cfg.Roles {
		if err := access.AddRole(r.ID, r.Parents...); err != nil {
			return nil, err
		}
	}
	for _, r := range cfg.Resources {
		if err := access.AddResource(r.ID, r.Parent); err != nil {
			return nil, err
		}
	}
	for _, r := range cfg.Rules {
		typ := acl.Deny
		if r.Effect == "allow" {
			typ = acl.Allow
		}
		if err := access.SetRule(acl.OpAdd, typ, r.Roles, r.Resources, r.Privileges, nil); err != nil {
			return nil, err
		}
	}
	return access, nil
}

// diagnosticsService is the built-in service every deployment gets:
// an echo for client integration smoke tests and the server time.
type diagnosticsService struct{}

// Echo returns its argument unchanged.
func (diagnosticsService) Echo(v any) any { return v }

// Time returns the server time in RFC 3339 form.
func (diagnosticsService) Time() string { return time.Now().UTC().Format(time.RFC3339) }

// runServers sets up and runs the gateway and metrics HTTP servers
// using an errgroup with signal-aware context for graceful shutdown.
func runServers(cfg *config.Config, gateway *remoting.Gateway, reg *prometheus.Registry, logger *slog.Logger) error {
	gatewaySrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           server.New(gateway, cfg.HTTP.Path, logger),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           metricsMux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("gateway server listening", slog.String("addr", gatewaySrv.Addr))
		if err := gatewaySrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("gateway server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("metrics server listening", slog.String("addr", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	// Notify systemd once both listeners are spawned. The error is
	// ignored outside systemd units.
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down")
		_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := gatewaySrv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown gateway server: %w", err))
		}
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}
