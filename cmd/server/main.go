package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-direct/auth"
	"chat-direct/domain"
	"chat-direct/infrastructure/ws"
	"chat-direct/internal"
	"chat-direct/moderation"
	"chat-direct/repositories"
	"chat-direct/runtime"
	"chat-direct/runtime/workers"
	"chat-direct/services"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes every component and owns the server lifecycle. Errors
// bubble back here instead of os.Exit scattered around, so the deferred
// cleanups always execute on the way out.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := internal.GetLoggerFromString(config.LogLevel)

	censoredChar, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return err
	}

	// 2. Storage (BadgerDB) & Search index (Bluge)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	indexWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return fmt.Errorf("index opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing search index...")
		_ = indexWriter.Close()
	}()

	// 3. Moderation
	wordlist, err := moderation.LoadWordlist()
	if err != nil {
		return fmt.Errorf("wordlist loading failed: %w", err)
	}
	moderator, err := moderation.NewModerator(wordlist.Words, censoredChar)
	if err != nil {
		return fmt.Errorf("moderator setup failed: %w", err)
	}
	log.Info("Moderation ready", "languages", wordlist.Languages, "words", len(wordlist.Words))

	// 4. Repositories & routing core
	userRepository := repositories.NewUserRepository(db)
	conversationRepository := repositories.NewConversationRepository(db)
	messageRepository := repositories.NewMessageRepository(db, log, config.LimitMessages)
	searchRepository := repositories.NewSearchRepository(indexWriter, log, config.SearchLimit)

	registry := runtime.NewRegistry()
	indexQueue := make(chan domain.Message, config.IndexQueueSize)

	presence := runtime.NewPresenceTracker(log, userRepository, registry)
	router := runtime.NewDeliveryRouter(log, userRepository, conversationRepository,
		messageRepository, registry, &moderator, indexQueue)
	lifecycle := runtime.NewMessageLifecycle(log, messageRepository, registry, &moderator, indexQueue)
	dispatcher := runtime.NewDispatcher(log, router, lifecycle, registry)

	// 5. Background workers
	sup := workers.NewSupervisor(log)
	sup.Add(
		workers.NewIndexerWorker(log, searchRepository, indexQueue,
			config.IndexBatchSize, config.IndexFlushInterval),
		workers.NewCapacityWorker(log,
			[]workers.NamedChannel{{Name: "indexQueue", Channel: indexQueue}},
			registry, config.MetricInterval, config.LowCapacityThreshold),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	supervisorDone := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(supervisorDone)
	}()

	// 6. Services & HTTP surface
	tokens := auth.NewTokenManager(config.JWTSecret, config.AuthTokenDuration)
	authService := services.NewAuthService(userRepository, tokens)
	chatService := services.NewChatService(log, registry, presence, router, lifecycle,
		dispatcher, conversationRepository, messageRepository, searchRepository)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	handler := ws.NewHandler(log, authService, chatService, tokens,
		config.ConnectionBufferSize, config.SinkTimeout)
	handler.RegisterRoutes(engine)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{Addr: address, Handler: engine}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 7. Wait for stop or error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 8. Final cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", "error", err)
	}
	sup.Stop()
	<-supervisorDone
	log.Info("Program stopped cleanly")

	return nil
}
