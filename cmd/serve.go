package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Conversly/assistant-relay/internal/api/channels/whatsapp"
	"github.com/Conversly/assistant-relay/internal/config"
	"github.com/Conversly/assistant-relay/internal/conversation"
	"github.com/Conversly/assistant-relay/internal/knowledge"
	"github.com/Conversly/assistant-relay/internal/llm"
	"github.com/Conversly/assistant-relay/internal/loaders"
	"github.com/Conversly/assistant-relay/internal/routes"
	"github.com/Conversly/assistant-relay/internal/tenant"
	"github.com/Conversly/assistant-relay/internal/threads"
	"github.com/Conversly/assistant-relay/internal/utils"
)

func newServeCmd(params *rootParams) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), params)
		},
	}
}

func runServe(ctx context.Context, params *rootParams) error {
	cfg, cleanup, err := loadConfig(params)
	if err != nil {
		return err
	}
	defer cleanup()

	utils.Zlog.Info("Starting application",
		zap.String("service", cfg.ServiceName),
		zap.String("environment", cfg.Environment),
		zap.String("port", cfg.ServerPort))

	resolver := tenant.NewResolver(cfg)
	if cfg.Debug {
		resolver.DebugInfo()
	}

	db, err := loaders.NewSQLiteClient(cfg.ThreadDBPath)
	if err != nil {
		utils.Zlog.Error("Failed to open thread database", zap.Error(err))
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			utils.Zlog.Error("Error closing thread database", zap.Error(err))
		}
	}()

	api := llm.NewOpenAIAssistants(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
	store := threads.NewStore(db, api)

	var (
		kb           *knowledge.Base
		instructions conversation.InstructionSource
	)
	if cfg.KnowledgeFile != "" {
		kb, err = knowledge.Load(cfg.KnowledgeFile)
		if err != nil {
			utils.Zlog.Error("Failed to load knowledge base", zap.Error(err))
			return err
		}
		instructions = kb
	}

	conv := conversation.NewClient(api, instructions, conversation.Options{
		PollInterval: cfg.PollInterval,
		RunTimeout:   cfg.RunTimeout,
	})
	sender := whatsapp.NewSender(cfg.GraphAPIBaseURL, cfg.GraphAPIVersion, cfg.SendTimeout)

	service, err := whatsapp.NewService(ctx, resolver, store, conv, sender)
	if err != nil {
		utils.Zlog.Error("Failed to build reply pipeline", zap.Error(err))
		return err
	}
	ctrl := whatsapp.NewController(whatsapp.NewAdapter(), service, whatsapp.ControllerOptions{
		VerifyToken: cfg.VerifyToken,
		AppSecret:   cfg.AppSecret,
		Async:       cfg.AsyncDispatch,
	})

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	routes.SetupRoutes(router, routes.Dependencies{
		Config:   cfg,
		Store:    store,
		Resolver: resolver,
		WhatsApp: ctrl,
	})

	srv := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// a synchronous delivery waits for the run and the send
		WriteTimeout: cfg.RunTimeout + cfg.SendTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		utils.Zlog.Info("Starting HTTP server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(quit)

	for {
		select {
		case err := <-serverErr:
			utils.Zlog.Error("Failed to start server", zap.Error(err))
			return err
		case <-ctx.Done():
			return shutdown(srv, ctrl)
		case sig := <-quit:
			if sig == syscall.SIGHUP {
				reload(params, cfg, resolver, kb)
				continue
			}
			return shutdown(srv, ctrl)
		}
	}
}

// reload re-reads the tenant table and the knowledge file. A bad tenant
// table leaves the running one in place.
func reload(params *rootParams, cfg *config.Config, resolver *tenant.Resolver, kb *knowledge.Base) {
	utils.Zlog.Info("Reloading tenants and knowledge base")

	if err := loadEnvFile(params.EnvFile); err != nil {
		utils.Zlog.Warn("Failed to load env file", zap.Error(err))
	}

	next := *cfg
	if err := next.LoadTenants(os.Environ()); err != nil {
		utils.Zlog.Error("Failed to reload tenants", zap.Error(err))
	} else if err := next.Validate(); err != nil {
		utils.Zlog.Error("Reloaded tenant table is invalid, keeping the current one", zap.Error(err))
	} else {
		resolver.Reload(&next)
	}

	if kb != nil {
		if err := kb.Reload(); err != nil {
			utils.Zlog.Error("Failed to reload knowledge base", zap.Error(err))
		}
	}
}

func shutdown(srv *http.Server, ctrl *whatsapp.Controller) error {
	utils.Zlog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := srv.Shutdown(ctx)
	if err != nil {
		utils.Zlog.Error("Server forced to shutdown", zap.Error(err))
	}

	// async replies still need the thread store
	ctrl.Wait()

	if err != nil {
		return err
	}
	utils.Zlog.Info("Server exited")
	return nil
}
