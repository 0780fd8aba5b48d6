package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/ubuygold/puzzlebox/internal/admin"
	"github.com/ubuygold/puzzlebox/internal/api"
	"github.com/ubuygold/puzzlebox/internal/auth"
	"github.com/ubuygold/puzzlebox/internal/config"
	"github.com/ubuygold/puzzlebox/internal/crawler"
	"github.com/ubuygold/puzzlebox/internal/db"
	"github.com/ubuygold/puzzlebox/internal/entries"
	"github.com/ubuygold/puzzlebox/internal/llm"
	"github.com/ubuygold/puzzlebox/internal/middleware"
	"github.com/ubuygold/puzzlebox/internal/scheduler"
	"github.com/ubuygold/puzzlebox/internal/web"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
}

func runServe(cmd *cobra.Command, opts *rootOptions) error {
	a, err := loadApp(opts, "server")
	if err != nil {
		return err
	}
	defer a.Close()
	cfg, log := a.cfg, a.log

	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer closeStore(store)

	entryService := entries.NewService(store, cfg.Categories, log)

	llmService, err := llm.NewService(cmd.Context(), cfg.LLM, log)
	if err != nil {
		log.Error("Error creating LLM service", "error", err)
		return err
	}
	defer llmService.Close()

	sched := scheduler.NewScheduler(crawler.New(cfg.Crawler, log), entryService, log)
	if err := sched.Start(cfg.Scheduler.ImportSchedule); err != nil {
		log.Error("Error starting scheduler", "error", err)
		return err
	}
	defer sched.Stop()

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := newRouter(cfg, log, store, entryService, llmService)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Starting server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	select {
	case err := <-serveErr:
		log.Error("Failed to start server", "error", err)
		return err
	case <-ctx.Done():
	}
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
		return err
	}

	log.Info("Server exiting")
	return nil
}

// newRouter wires every route group. The JSON API lives under /api behind the
// token gate; pages and key administration sit behind the origin gate.
func newRouter(cfg *config.Config, log *slog.Logger, store db.Service, entryService *entries.Service, llmService *llm.Service) *gin.Engine {
	router := gin.New()
	_ = router.SetTrustedProxies(nil)
	router.Use(middleware.RequestID(), middleware.AccessLog(log), middleware.Recovery(log))
	web.LoadTemplates(router)

	matcher := auth.NewOriginMatcher(cfg.Access.LocalNetworks, log)
	renderer := web.NewRenderer(web.NewFlashStore(cfg.Session.Secret), cfg.LLMEnabled())

	apiGroup := router.Group("/api", auth.RequireAPIKey(matcher, store, log))
	uiGroup := router.Group("/", auth.LocalOnly(matcher))

	api.SetupRoutes(apiGroup, api.NewHandler(entryService, log))
	web.SetupRoutes(uiGroup, web.NewHandler(entryService, cfg.Categories.Labels, renderer, log))
	admin.SetupRoutes(uiGroup, admin.NewHandler(store, renderer, log))
	llm.SetupRoutes(apiGroup, uiGroup, llm.NewHandler(llmService, cfg.LLMEnabled(), renderer, log))

	return router
}
