package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"ludo-arena-backend/internal/config"
	"ludo-arena-backend/internal/handlers"
	"ludo-arena-backend/internal/middleware"
	"ludo-arena-backend/internal/models"
	"ludo-arena-backend/internal/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := services.NewRedisService(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer store.Close()

	hub := handlers.NewHub()

	jwtService := services.NewJWTService(cfg)
	ledger := services.NewLedger(store)
	profiles := services.NewRedisProfileStore(store)
	queue := services.NewQueueManager(store)
	builder := services.NewGameBuilder(store, cfg, profiles)
	turns := services.NewTurnService(store, ledger, cfg, hub)
	matchmaker := services.NewMatchmaker(store, queue, ledger, builder, turns, cfg, hub)
	lobby := services.NewLobbyService(store, ledger, builder, turns, cfg, hub)

	authHandler := handlers.NewAuthHandler(store, ledger, jwtService, cfg)
	queueHandler := handlers.NewQueueHandler(store, matchmaker, profiles)
	gameHandler := handlers.NewGameHandler(turns)
	lobbyHandler := handlers.NewLobbyHandler(lobby)
	userHandler := handlers.NewUserHandler(store, ledger)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UnixMilli()})
	})
	router.POST("/auth/token", authHandler.IssueToken)

	api := router.Group("/api")
	api.Use(middleware.AuthMiddleware(jwtService))
	{
		api.POST("/queue/join",
			middleware.RateLimitMiddleware(store, "queue_join", services.DefaultRateLimitQueueJoins, time.Minute),
			queueHandler.Join)
		api.POST("/queue/leave", queueHandler.Leave)
		api.GET("/queue/status", queueHandler.Status)

		api.GET("/games/:id", gameHandler.Get)
		api.POST("/games/:id/roll", gameHandler.Roll)
		api.POST("/games/:id/move", gameHandler.Move)
		api.POST("/games/:id/forfeit", gameHandler.Forfeit)

		api.POST("/tables/private", lobbyHandler.OpenTable)
		api.DELETE("/tables/private", lobbyHandler.CloseTable)
		api.POST("/tables/private/:host/join", lobbyHandler.JoinTable)

		api.POST("/invites", lobbyHandler.SendInvite)
		api.GET("/invites/:id", lobbyHandler.GetInvite)
		api.POST("/invites/:id/respond", lobbyHandler.RespondInvite)
		api.DELETE("/invites/:id", lobbyHandler.CancelInvite)

		api.GET("/wallet", userHandler.Wallet)
		api.GET("/wallet/transactions", userHandler.Transactions)
		api.GET("/profile", userHandler.Profile)

		api.GET("/ws", hub.ServeWS)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	turns.ResumeWatchers(rootCtx)
	go runSweeps(rootCtx, matchmaker, turns)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("Server starting on port %s (env %s)", cfg.Port, cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-rootCtx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Forced shutdown: %v", err)
	}
}

// runSweeps drives the periodic maintenance: pairing retries, bot
// backfill for long waits, the hard game timeout, and stale queue
// cleanup.
func runSweeps(ctx context.Context, matchmaker *services.Matchmaker, turns *services.TurnService) {
	pairing := time.NewTicker(time.Minute)
	cleanup := time.NewTicker(5 * time.Minute)
	defer pairing.Stop()
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pairing.C:
			sweepCtx, cancel := context.WithTimeout(context.Background(), 50*time.Second)
			matchmaker.TriggerPairing(sweepCtx, models.ModeTwoPlayer)
			matchmaker.TriggerPairing(sweepCtx, models.ModeTeam)
			matchmaker.ProcessQueueTimeouts(sweepCtx)
			turns.SweepHardTimeouts(sweepCtx)
			cancel()
		case <-cleanup.C:
			sweepCtx, cancel := context.WithTimeout(context.Background(), 50*time.Second)
			matchmaker.CleanupStaleQueues(sweepCtx)
			cancel()
		}
	}
}
