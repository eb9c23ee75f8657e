package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/m2tx/gemini_chat/internal/chat"
	"github.com/m2tx/gemini_chat/internal/config"
	"github.com/m2tx/gemini_chat/internal/functions"
	"github.com/m2tx/gemini_chat/internal/knowledge"
	"github.com/m2tx/gemini_chat/internal/logger"
	"github.com/m2tx/gemini_chat/internal/server"
	"github.com/m2tx/gemini_chat/internal/transcript"
)

type cli struct {
	Config   string `help:"Path to a config.yaml file." type:"path" short:"c"`
	Addr     string `help:"Listen address, overrides server.host and server.port."`
	LogLevel string `help:"Log level (debug, info, warn, error)." name:"log-level"`
}

func main() {
	var args cli
	kong.Parse(&args,
		kong.Name("gemini-chat-server"),
		kong.Description("HTTP front end for Gemini chat sessions."),
		kong.UsageOnError(),
	)

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.L.Warn("failed to load .env", "error", err)
	}

	if err := run(args); err != nil {
		logger.L.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(args cli) error {
	cfg, err := config.Load(args.Config)
	if err != nil {
		return err
	}

	level := cfg.Log.Level
	if args.LogLevel != "" {
		level = args.LogLevel
	}
	logger.Setup(os.Stderr, cfg.Log.Format, level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	recorder, err := transcript.Open(ctx, cfg.Transcript)
	if err != nil {
		return err
	}
	if recorder != nil {
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := recorder.Close(closeCtx); err != nil {
				logger.L.Warn("failed to close transcript recorder", "error", err)
			}
		}()
	}

	index, err := knowledge.Open(cfg.Knowledge.Dir)
	if err != nil {
		return err
	}

	tools, err := functions.Toolbox(index)
	if err != nil {
		return err
	}

	opts := []chat.Option{chat.WithToolbox(tools)}
	if recorder != nil {
		opts = append(opts, chat.WithRecorder(recorder))
	}

	client, err := chat.Bootstrap(ctx, cfg.LLM, opts...)
	if err != nil {
		return err
	}

	addr := cfg.Server.Addr()
	if args.Addr != "" {
		addr = args.Addr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           server.New(client, cfg.LLM.Model, cfg.LLM.SystemInstruction).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.L.Info("server listening", "addr", addr, "model", cfg.LLM.Model, "provider", cfg.LLM.Provider)
	return runServer(ctx, srv)
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
