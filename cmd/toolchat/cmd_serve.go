package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/toolchat/internal/gateway"
	"github.com/user/toolchat/internal/httpapi"
	"github.com/user/toolchat/internal/render"
	"github.com/user/toolchat/internal/telegram"
	"github.com/user/toolchat/internal/types"
)

const shutdownTimeout = 10 * time.Second

var (
	serveOpts   backendOptions
	serveListen string
)

func init() {
	serveCmd.Flags().StringVar(&serveOpts.backend, "backend", "", "model backend: gemini or groq (default from config)")
	serveCmd.Flags().StringVar(&serveOpts.systemPromptFile, "system-prompt-file", "", "file holding a custom system prompt template")
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "address for the HTTP API (default http.listen from config)")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"telegram"},
	Short:   "Serve chats over Telegram and/or the HTTP API",
	Args:    cobra.NoArgs,
	RunE:    runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	listen := cfg.HTTP.Listen
	if serveListen != "" {
		listen = serveListen
	}
	if cfg.Telegram.Token == "" && listen == "" {
		return fmt.Errorf("nothing to serve: set TELEGRAM_BOT_TOKEN or telegram.token, or http.listen")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, closeProvider, err := newRuntime(ctx, cfg, serveOpts)
	if err != nil {
		return reportSetupError(render.NewTerminal(os.Stderr), err)
	}
	defer closeProvider()

	gw := gateway.New(rt.Sessions(), int64(cfg.MaxConcurrent))
	gw.Queue.SetProcessor(rt.ProcessRun)
	gw.Start(ctx)
	defer gw.Stop()

	slog.Info("toolchat started",
		"backend", serveOpts.resolve(cfg),
		"max_concurrent", cfg.MaxConcurrent,
		"tools", rt.Registry().Names(),
	)

	if cfg.Telegram.Token != "" {
		adapter, err := telegram.New(cfg.Telegram.Token, gw, rt, cfg.Chat.Greeting)
		if err != nil {
			return fmt.Errorf("create telegram adapter: %w", err)
		}
		go adapter.Start(ctx)
		slog.Info("telegram adapter started")
	} else {
		slog.Warn("telegram adapter disabled (no token)")
	}

	if listen != "" {
		api := httpapi.NewServer(rt.Sessions(), rt.Registry(), func(ctx context.Context, key types.SessionKey, text string) (string, error) {
			return gw.Ask(ctx, &types.InboundEvent{Source: "http", SessionKey: key, Text: text})
		})
		httpServer := &http.Server{
			Addr:              listen,
			Handler:           api,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("http api started", "listen", listen)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("http server error", "error", err)
				stop()
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			httpServer.Shutdown(shutdownCtx)
		}()
	}

	<-ctx.Done()
	slog.Info("shutting down")
	if !gw.Queue.WaitIdle(shutdownTimeout) {
		slog.Warn("turns still running at shutdown")
	}
	return nil
}
