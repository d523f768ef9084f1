package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/skovald/storyteller/internal/chain"
	"github.com/skovald/storyteller/internal/config"
	"github.com/skovald/storyteller/internal/gate"
	"github.com/skovald/storyteller/internal/httpapi"
	"github.com/skovald/storyteller/internal/notifier"
	"github.com/skovald/storyteller/internal/payment"
	"github.com/skovald/storyteller/internal/storage"
	"github.com/skovald/storyteller/internal/story"
	"github.com/skovald/storyteller/internal/tts"
)

func main() {
	// Setup logger
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(log)

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file found")
	}

	// Load config
	cfg := config.Load()

	if cfg.RPCURL == "" {
		log.Error("RPC_URL is required")
		os.Exit(1)
	}
	if cfg.TokenAddress == "" {
		log.Error("TOKEN_ADDRESS is required")
		os.Exit(1)
	}

	// Initialize storage
	store, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Error("init storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	log.Info("storage initialized", "path", cfg.DBPath)

	// Initialize chain client
	rpc, err := chain.Dial(cfg.RPCURL, cfg.ChainID)
	if err != nil {
		log.Error("dial rpc", "error", err)
		os.Exit(1)
	}
	defer rpc.Close()
	log.Info("chain client initialized", "rpc", cfg.RPCURL, "chain_id", cfg.ChainID)

	// Ensure the static/audio directory exists
	if err := os.MkdirAll(cfg.PublicDir, 0o755); err != nil {
		log.Error("create public dir", "error", err)
		os.Exit(1)
	}

	// Initialize collaborators
	stories := story.NewGenerator(cfg.AIMLBaseURL, cfg.AIMLAPIKey, log)
	if cfg.AIMLAPIKey == "" {
		log.Warn("AIML_API_KEY not set, stories fall back to the built-in one")
	}

	audio := tts.NewSynthesizer(cfg.ElevenLabsAPIKey, cfg.PublicDir, log)
	if cfg.ElevenLabsAPIKey == "" {
		log.Warn("ELEVENLABS_API_KEY not set, audio disabled")
	}

	payments := payment.New(rpc, store, cfg, log)
	notify := notifier.New(cfg, log)

	controller := gate.New(store, storage.NewLocks(), stories, audio, payments, notify.HandleUnlock, log)

	log.Info("story teller ready", "creator", cfg.CreatorAddress, "verify_on_chain", cfg.VerifyOnChain)

	// Handle shutdown signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Info("shutting down...")
		cancel()
	}()

	// Start API server
	server := httpapi.NewServer(controller, cfg.PublicDir, log)
	if err := server.Start(ctx, cfg.Port); err != nil && err != http.ErrServerClosed {
		log.Error("server", "error", err)
		os.Exit(1)
	}
}
