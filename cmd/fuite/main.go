// Command fuite is the paste-site leak monitor daemon.
//
// Usage:
//
//	fuite -config fuite.yaml                  # poll forever
//	fuite -config fuite.yaml -once            # single pass and exit
//	fuite -config fuite.yaml -listen :8099    # with the admin API
//
// SIGHUP reloads the rule and proxy sources without restarting.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/fuite/fuite"
)

func main() {
	configPath := flag.String("config", "", "path to fuite.yaml config file")
	dbPath := flag.String("db", "fuite.db", "path to the incident archive database")
	listen := flag.String("listen", "", "admin API listen address (disabled when empty)")
	adminToken := flag.String("admin-token", "", "bearer token for the admin API")
	once := flag.Bool("once", false, "run a single polling pass and exit")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *dbPath, *listen, *adminToken, *once); err != nil {
		logger.Error("fuite: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, dbPath, listen, adminToken string, once bool) error {
	if configPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := fuite.LoadConfigFile(configPath)
	if err != nil {
		return err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA foreign_keys=ON")

	svc, err := fuite.New(db, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	if once {
		svc.RunOnce(ctx)
		return nil
	}

	svc.Start(ctx)

	// SIGHUP reloads rules and proxies in place. A failed reload keeps the
	// previous generation running.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if err := svc.Reload(ctx); err != nil {
					logger.Error("fuite: reload failed", "error", err)
				}
			}
		}
	}()

	var srv *http.Server
	if listen != "" {
		srv = &http.Server{
			Addr:              listen,
			Handler:           newAdminRouter(svc, adminToken),
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		go func() {
			logger.Info("fuite: admin API listening", "addr", listen)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("fuite: admin API", "error", err)
				os.Exit(1)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("fuite: shutting down")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}
	svc.Wait()
	return nil
}
