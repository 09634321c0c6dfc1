// lexcached is the audio cache and learning analytics daemon.
package main

import (
	"flag"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lexcache/lexcache/internal/handler"
	"github.com/lexcache/lexcache/internal/loader"
	"github.com/lexcache/lexcache/internal/logging"
	"github.com/lexcache/lexcache/internal/metrics"
	"github.com/lexcache/lexcache/internal/retention"
	"github.com/lexcache/lexcache/internal/server"
	"github.com/lexcache/lexcache/internal/store"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// CLI flags
	cfgPath := flag.String("config", "lexcached.yaml", "config file path")
	listen := flag.String("listen", "", "listen address (overrides config)")
	redisAddr := flag.String("redis", "", "redis address (overrides config)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error")
	logJSON := flag.Bool("log-json", false, "log as JSON lines")
	flag.Parse()

	// Load config. A missing default config file means run with defaults.
	cfg, err := loader.LoadOrDefault(*cfgPath)
	if err != nil {
		stdlog.Fatalf("Load config: %v", err)
	}

	// CLI overrides
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *redisAddr != "" {
		cfg.Redis.Addr = *redisAddr
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logJSON {
		cfg.Logging.JSON = true
	}

	logging.Init(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.JSON)
	log := logging.Component("main")
	log.Info("lexcached starting", "version", Version)

	// =========================================================================
	// Backing store
	// =========================================================================

	// A store that is down at boot still starts the daemon; the health
	// monitor flips it ready once the backend answers.
	st := store.New(store.Config{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		OpTimeout:    cfg.Redis.OpTimeout(),
		PingInterval: cfg.Redis.PingInterval(),
	})
	if st.Ready() {
		log.Info("store connected", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)
	} else {
		log.Warn("store unreachable at startup, running degraded", "addr", cfg.Redis.Addr)
	}

	policy, err := retention.New(cfg.Retention)
	if err != nil {
		stdlog.Fatalf("Retention config: %v", err)
	}
	for _, class := range retention.AllClasses() {
		log.Info("retention", "class", class.String(), "days", policy.Days(class))
	}

	// =========================================================================
	// Metrics
	// =========================================================================

	var reg *metrics.Registry
	metricsStop := make(chan struct{})
	if cfg.Metrics.Enabled {
		reg = metrics.NewRegistry(cfg.Metrics.Accuracy)
		go reg.ReportLoop(time.Duration(cfg.Metrics.ReportIntervalSec)*time.Second, metricsStop)
	}

	// =========================================================================
	// Server
	// =========================================================================

	h := handler.New(st, policy, reg)

	srv := server.New(&server.Config{
		Handler:        h,
		Listen:         cfg.Listen,
		MaxMessageSize: cfg.MaxMessageSize,
		SendBufferSize: cfg.Session.SendBufferSize,
		SendTimeoutMs:  cfg.Session.SendTimeoutMs,
		DrainTimeout:   cfg.Shutdown.DrainTimeout(),
	})

	// =========================================================================
	// Signal Handling and Graceful Shutdown
	// =========================================================================

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sig
		log.Info("shutting down", "signal", s.String())

		// Stop accepting new work and drain in-flight requests.
		srv.Shutdown()

		// Final metrics report, then release the store.
		if reg != nil {
			close(metricsStop)
		}
		if err := st.Close(); err != nil {
			log.Warn("store close", "error", err)
		}
	}()

	// =========================================================================
	// Run
	// =========================================================================

	if err := srv.Run(); err != nil {
		stdlog.Fatalf("Server error: %v", err)
	}
	log.Info("lexcached stopped")
}
