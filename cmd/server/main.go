// Command server is the LangDock comparison service's HTTP entrypoint:
// it wires the core token pipeline (internal/orchestrator and below)
// behind a thin gin intake layer and runs it until an OS signal asks it
// to shut down gracefully.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/boot"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/breaker"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/config"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/dbwriter"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/fallback"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/gate"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/gateway"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/logging"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/orchestrator"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/persistence"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/provider"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/replay"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/safecall"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/status"
	"github.com/AliZeynalov/LangDock-LLM-reliability/internal/wal"
)

func main() {
	logging.Init()
	cfg := config.Load()

	db, err := dbwriter.Open(cfg.DBPath)
	if err != nil {
		log.WithError(err).Fatal("failed to open database")
	}

	w := wal.New(afero.NewOsFs(), cfg.WALFilePath)
	persist := persistence.New(db, w, cfg.WALMaxSizeBytes)

	cb := breaker.New(cfg.BreakerFailureThreshold, cfg.BreakerCooldown)
	g := gate.New(cfg.ConcurrencyFor)

	modelProviders := map[string]string{}
	for _, mc := range fallback.DefaultChain {
		modelProviders[mc.Model] = mc.Provider
	}
	adaptors := map[string]provider.Adaptor{
		"openai":    provider.NewHTTPAdaptor("openai", envOr("OPENAI_BASE_URL", "https://api.openai.com"), os.Getenv("OPENAI_API_KEY"), nil),
		"anthropic": provider.NewHTTPAdaptor("anthropic", envOr("ANTHROPIC_BASE_URL", "https://api.anthropic.com"), os.Getenv("ANTHROPIC_API_KEY"), nil),
		"google":    provider.NewHTTPAdaptor("google", envOr("GOOGLE_BASE_URL", "https://generativelanguage.googleapis.com"), os.Getenv("GOOGLE_API_KEY"), nil),
		"deepseek":  provider.NewHTTPAdaptor("deepseek", envOr("DEEPSEEK_BASE_URL", "https://api.deepseek.com"), os.Getenv("DEEPSEEK_API_KEY"), nil),
	}
	caller := safecall.New(cb, g, adaptors, func(model string) string {
		if p, ok := modelProviders[model]; ok {
			return p
		}
		return "openai"
	})

	fb := fallback.New(nil)
	orch := orchestrator.New(caller, persist, db, fb, cfg.BufferSizeTrigger, cfg.BufferAgeTrigger)

	replayLoop := replay.New(persist, db, w, cfg.ReplayInterval, cfg.WALMaxSizeBytes)
	bootSeq := boot.New(db, replayLoop, orch, cfg.ShutdownGrace)

	reporter := status.NewReporter(cb, g, orch, w, persist, db, bootSeq, cfg.ProviderConcurrency, prometheus.DefaultRegisterer)

	ctx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	if err := bootSeq.Start(ctx); err != nil {
		log.WithError(err).Fatal("boot sequence failed")
	}

	handler := gateway.NewHandler(orch, db)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gateway.RequestIDMiddleware())
	r.Use(gateway.LoggingMiddleware())

	r.POST("/v1/compare", handler.Compare)
	r.GET("/health", handler.Health)
	r.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, reporter.Snapshot(c.Request.Context()))
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: r}

	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server exited unexpectedly")
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received, draining in-flight attempts")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace+5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http server shutdown did not complete cleanly")
	}
	if err := bootSeq.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("core shutdown did not complete cleanly")
	}
	log.Info("shutdown complete")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
