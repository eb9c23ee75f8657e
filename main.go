package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/m2tx/gemini_chat/internal/chat"
	"github.com/m2tx/gemini_chat/internal/config"
	"github.com/m2tx/gemini_chat/internal/logger"
)

const greeting = "Hi, can you remember this conversation?"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.L.Warn("failed to load .env", "error", err)
	}

	cfg, err := config.Load("")
	if err != nil {
		logger.L.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger.Setup(os.Stderr, cfg.Log.Format, cfg.Log.Level)

	ctx := context.Background()

	client, err := chat.Bootstrap(ctx, cfg.LLM)
	if err != nil {
		logger.L.Error("failed to initialize chat client", "error", err)
		os.Exit(1)
	}

	session, err := client.CreateSession(ctx, cfg.LLM.Model)
	if err != nil {
		logger.L.Error("failed to create chat session", "model", cfg.LLM.Model, "error", err)
		os.Exit(1)
	}

	reply, err := session.SendMessage(ctx, greeting)
	if err != nil {
		logger.L.Error("failed to send message", "session_id", session.ID(), "error", err)
		os.Exit(1)
	}

	fmt.Println(reply.Text)
}
