package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron"

	config "github.com/postpilot-app/postpilot/configs"
	"github.com/postpilot-app/postpilot/internal/api/handlers"
	"github.com/postpilot-app/postpilot/internal/api/middleware"
	"github.com/postpilot-app/postpilot/internal/counter"
	job "github.com/postpilot-app/postpilot/internal/jobs"
	"github.com/postpilot-app/postpilot/internal/queue"
	"github.com/postpilot-app/postpilot/internal/ratelimit"
	"github.com/postpilot-app/postpilot/internal/repository"
	"github.com/postpilot-app/postpilot/internal/scheduler"
	"github.com/postpilot-app/postpilot/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()
	inspector := asynq.NewInspector(redisConn)
	defer inspector.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisURI})
	defer rdb.Close()

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    100 * 1024 * 1024, // 100 MB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(db)
	postTargetRepo := repository.NewPostTargetRepository(db)
	socialAccountRepo := repository.NewSocialAccountRepository(db)
	postMediaRepo := repository.NewPostMediaRepository(db)
	mediaAssetRepo := repository.NewMediaAssetRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)
	apiKeyRepo := repository.NewApiKeyRepository(db)
	planUsageRepo := repository.NewPlanUsageRepository(db)
	platformUsageRepo := repository.NewPlatformUsageRepository(db)
	postingHistoryRepo := repository.NewPostingHistoryRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)

	counterStore := counter.NewRedisStore(rdb)
	rateLimiter := ratelimit.New(counterStore)
	dispatchScheduler := scheduler.New(client, inspector)

	authService := service.NewAuthService(*cfg, userRepo)
	userService := service.NewUserService(userRepo)
	r2Service := service.NewR2Service(*cfg)
	mediaService := service.NewMediaService(mediaAssetRepo, postMediaRepo, r2Service)
	settingsService := service.NewSettingsService(settingsRepo)
	apiKeyService := service.NewApiKeyService(apiKeyRepo)
	usageService := service.NewUsageService(planUsageRepo, subscriptionRepo)
	quotaService := service.NewQuotaService(platformUsageRepo)
	accountService := service.NewAccountService(*cfg, socialAccountRepo, usageService)
	subscriptionService := service.NewSubscriptionService(*cfg, userRepo, subscriptionRepo, usageService)

	instagramService := service.NewInstagramService(*cfg, socialAccountRepo, postMediaRepo, mediaAssetRepo)
	tiktokService := service.NewTiktokService(*cfg, socialAccountRepo, postMediaRepo, mediaAssetRepo)
	youtubeService := service.NewYoutubeService(*cfg, socialAccountRepo, postMediaRepo, mediaAssetRepo)
	publisher := service.NewPublisherRouter(instagramService, tiktokService, youtubeService)

	postService := service.NewPostService(
		db,
		postRepo,
		postTargetRepo,
		socialAccountRepo,
		postingHistoryRepo,
		mediaService,
		usageService,
		quotaService,
		rateLimiter,
		dispatchScheduler,
		publisher,
		settingsService,
	)

	authMiddleware := middleware.NewAuthMiddleware(*cfg, apiKeyService)

	auth := handlers.NewAuthHandler(*cfg, authService)
	app.Get("/login", auth.Login)
	app.Get("/login/callback", auth.LoginCallbackHandler)

	platform := handlers.NewPlatformHandler(accountService, instagramService, tiktokService, youtubeService, quotaService, settingsService, *cfg)
	app.Get("/auth/:platform", platform.AddSocialAccount)
	app.Get("/auth/:platform/callback", platform.CallbackHandler)

	payment := handlers.NewPaymentHandler(subscriptionService)
	app.Post("/webhook/payment", payment.PaymentWebhook)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	user := handlers.NewUserHandler(userService)
	api.Get("/user/info", user.GetUserInfo)

	settings := handlers.NewSettingsHandler(settingsService)
	api.Get("/settings/info", settings.GetSettingsInfo)
	api.Post("/settings/update", settings.UpdateSettings)

	apiKeys := handlers.NewApiKeyHandler(apiKeyService)
	api.Post("/api_key/new", apiKeys.CreateApiKey)
	api.Get("/api_key/list", apiKeys.ListKeys)
	api.Post("/api_key/remove", apiKeys.RemoveAPIKey)

	post := handlers.NewPostHandler(postService)
	api.Post("/posts/create", post.CreatePost)
	api.Post("/posts/edit", post.EditPost)
	api.Get("/posts", post.ListPosts)
	api.Post("/posts/remove", post.RemovePost)
	api.Post("/posts/retry", post.RetryTarget)
	api.Get("/posts/failed", post.FailedTargets)
	api.Get("/posts/failed/count", post.FailedCount)

	// social accounts api routes
	api.Get("/accounts", platform.ListSocialAccounts)
	api.Post("/accounts/remove", platform.DeleteSocialAccount)
	api.Get("/limits/:platform", platform.PlatformLimits)

	// cron jobs
	refreshTokenJob := job.NewTokenRefreshJob(socialAccountRepo, youtubeService, tiktokService, instagramService)
	rolloverJob := job.NewRolloverJob(subscriptionRepo, usageService)

	c := cron.New()
	c.AddFunc("@every 00h10m00s", refreshTokenJob.RefreshTokens)
	c.AddFunc("@every 01h00m00s", rolloverJob.RollOverPeriods)
	c.Start()

	go func() {
		server := asynq.NewServer(redisConn, asynq.Config{
			Concurrency: 10,
		})

		worker := queue.NewWorker(postService)

		log.Println("Starting the Asynq server...")
		if err := server.Run(worker.Mux()); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}()

	go func() {
		if err := app.Listen(":3000"); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Println("Server is running on http://localhost:3000")

	gracefulShutdown(app, db)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, db *sql.DB) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	closeDB(db)
	log.Println("Server shutdown complete.")
}
