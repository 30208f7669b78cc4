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

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/api/handlers"
	"github.com/maheshrc27/postflow/internal/api/middleware"
	"github.com/maheshrc27/postflow/internal/broadcast"
	job "github.com/maheshrc27/postflow/internal/jobs"
	"github.com/maheshrc27/postflow/internal/notify"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/queue"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/service"
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

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisURI})
	defer redisClient.Close()

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

	postRepo := repository.NewPostRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	socialAccountRepo := repository.NewSocialAccountRepository(db)
	assetsRepo := repository.NewAssetsRepository(db)
	postMediaRepo := repository.NewPostMediaRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	apiKeyRepo := repository.NewApiKeyRepository(db)

	tokenManager := platform.NewTokenManager(*cfg, socialAccountRepo)

	registry := platform.NewRegistry(
		platform.NewLinkedinPublisher(*cfg, tokenManager),
		platform.NewXPublisher(*cfg, tokenManager),
		platform.NewTiktokPublisher(*cfg, tokenManager),
		platform.NewYoutubePublisher(*cfg, tokenManager),
		platform.NewFacebookPublisher(*cfg, tokenManager),
		platform.NewInstagramPublisher(*cfg, tokenManager),
		platform.NewThreadsPublisher(*cfg, tokenManager),
		platform.NewPinterestPublisher(*cfg, tokenManager),
		platform.NewBlueskyPublisher(*cfg, tokenManager),
		platform.NewMastodonPublisher(*cfg, tokenManager),
	)

	broadcaster := broadcast.NewRedisBroadcaster(redisClient)
	notifier := notify.New(notificationRepo)

	r2Service := service.NewR2Service(*cfg)
	mediaService := service.NewMediaService(assetsRepo, r2Service)
	postService := service.NewPostService(db, postRepo, assignmentRepo, socialAccountRepo, assetsRepo, postMediaRepo, client)
	accountService := service.NewAccountService(socialAccountRepo, registry)
	notificationService := service.NewNotificationService(notificationRepo)
	apiKeyService := service.NewApiKeyService(apiKeyRepo)

	authMiddleware := middleware.NewAuthMiddleware(*cfg, apiKeyService)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	apiKeys := handlers.NewApiKeyHandler(apiKeyService)
	api.Post("/api_key/new", apiKeys.CreateApiKey)
	api.Get("/api_key/list", apiKeys.ListKeys)
	api.Post("/api_key/remove", apiKeys.RemoveAPIKey)

	post := handlers.NewPostHandler(postService)
	api.Post("/posts/create", post.CreatePost)
	api.Post("/posts/publish", post.PublishPost)
	api.Get("/posts", post.ListPosts)
	api.Post("/posts/remove", post.RemovePost)

	media := handlers.NewMediaHandler(mediaService)
	api.Post("/media/upload", media.UploadMedia)
	api.Get("/media", media.ListMedia)
	api.Post("/media/remove", media.RemoveMedia)

	account := handlers.NewAccountHandler(accountService)
	api.Get("/accounts", account.ListAccounts)
	api.Post("/accounts/verify", account.VerifyAccount)
	api.Post("/accounts/remove", account.RemoveAccount)

	notification := handlers.NewNotificationHandler(notificationService)
	api.Get("/notifications", notification.ListNotifications)
	api.Post("/notifications/read", notification.MarkRead)

	// workers
	orchestrator := queue.NewOrchestrator(postRepo, assignmentRepo, socialAccountRepo, assetsRepo, registry, broadcaster, notifier, client)

	// cron jobs
	schedulerJob := job.NewSchedulerJob(postRepo, client)
	refreshTokenJob := job.NewTokenRefreshJob(socialAccountRepo, tokenManager)
	verifierJob := job.NewVerifierJob(socialAccountRepo, registry, notifier)
	reconcileJob := job.NewReconcileJob(assignmentRepo, client)

	c := cron.New()
	c.AddFunc("@every 00h01m00s", schedulerJob.DispatchDuePosts)
	c.AddFunc("@every 00h10m00s", refreshTokenJob.RefreshTokens)
	c.AddFunc("@every 06h00m00s", verifierJob.VerifyAccounts)
	c.AddFunc("@every 00h05m00s", reconcileJob.RequeueStuck)
	c.Start()

	go func() {
		server := asynq.NewServer(redisConn, asynq.Config{
			Concurrency:    10,
			RetryDelayFunc: queue.RetryDelay,
		})

		mux := asynq.NewServeMux()
		mux.HandleFunc(queue.TaskTypePublishPost, orchestrator.HandlePublishPostTask)
		mux.HandleFunc(queue.TaskTypePublishAssignment, orchestrator.HandlePublishAssignmentTask)

		log.Println("Starting the Asynq server...")
		if err := server.Run(mux); err != nil {
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
