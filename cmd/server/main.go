package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"

	"gwi.com/firechat/internal/api"
	"gwi.com/firechat/internal/auth"
	"gwi.com/firechat/internal/config"
	"gwi.com/firechat/internal/core"
	"gwi.com/firechat/internal/logging"
	"gwi.com/firechat/internal/presence"
	"gwi.com/firechat/internal/store"
	"gwi.com/firechat/internal/utils"
)

func openStore(ctx context.Context) (store.Store, error) {
	cfg := config.AppConfig
	switch cfg.Backend {
	case config.BackendFirestore:
		var opts []option.ClientOption
		if cfg.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		}
		return store.NewFirestoreStore(ctx, cfg.FirestoreProjectID, opts...)
	case config.BackendSQLite:
		return store.NewSQLiteStore(cfg.DatabaseURL, cfg.PollInterval)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func openThrottle(ctx context.Context) presence.Throttle {
	cfg := config.AppConfig
	if cfg.RedisURL == "" || cfg.LastSeenThrottle <= 0 {
		return presence.Always{}
	}
	throttle, err := presence.NewRedisThrottle(ctx, cfg.RedisURL, cfg.LastSeenThrottle)
	if err != nil {
		// Presence is best effort; run unthrottled rather than refuse to start.
		log.Warn().Err(err).Msg("Redis unavailable, last-seen writes will not be throttled")
		return presence.Always{}
	}
	log.Info().Dur("window", cfg.LastSeenThrottle).Msg("Last-seen throttle enabled")
	return throttle
}

// issueToken records a profile for email and returns a token for the same
// normalized address.
func issueToken(ctx context.Context, cs *core.ChatService, tokens *auth.Manager, email string) (string, error) {
	email = utils.NormalizeEmail(email)
	if err := cs.SignIn(ctx, email, ""); err != nil {
		return "", fmt.Errorf("failed to record profile: %w", err)
	}
	return tokens.GenerateJWT(email)
}

func main() {
	// Load configuration
	config.LoadConfig()
	logging.Setup(config.AppConfig.LogLevel)

	// Command line flag for issuing tokens without the dev login route
	mintToken := flag.String("mint-token", "", "Record a profile for this email, print a token for it and exit")
	flag.Parse()

	ctx := context.Background()

	// Initialize database store
	dbStore, err := openStore(ctx)
	if err != nil {
		log.Fatal().Err(err).Str("backend", config.AppConfig.Backend).Msg("Failed to initialize store")
	}
	defer dbStore.Close()

	throttle := openThrottle(ctx)
	defer throttle.Close()

	formatter, err := core.NewTimestampFormatter(config.AppConfig.DisplayTimezone)
	if err != nil {
		log.Fatal().Err(err).Str("zone", config.AppConfig.DisplayTimezone).Msg("Invalid display timezone")
	}

	chatService := core.NewChatService(dbStore, throttle, formatter)
	tokens := auth.NewManager(config.AppConfig.JWTSecret, config.AppConfig.TokenTTL)

	if *mintToken != "" {
		token, err := issueToken(ctx, chatService, tokens, *mintToken)
		if err != nil {
			log.Fatal().Err(err).Str("user", *mintToken).Msg("Failed to mint token")
		}
		fmt.Println(token)
		return
	}

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(chatService, tokens, config.AppConfig.DevLogin)
	router := api.NewRouter(apiHandler)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	// No WriteTimeout: live connections stay open and manage their own deadlines.
	srv := &http.Server{
		Addr:        serverAddr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		log.Info().Str("addr", serverAddr).Str("backend", config.AppConfig.Backend).Msg("Starting server. Press Ctrl+C to quit.")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Str("addr", serverAddr).Msg("Could not listen")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// dbStore.Close() and throttle.Close() run on the way out.
	log.Info().Msg("Server exiting gracefully")
}
