package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	weaviateClient "github.com/weaviate/weaviate-go-client/v4/weaviate"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	handler "leadgrid/handler/http"
	"leadgrid/src/core/lead"
	"leadgrid/src/infrastructure/auth"
	"leadgrid/src/infrastructure/integrations/llm"
	jobctrl "leadgrid/src/infrastructure/job"
	"leadgrid/src/infrastructure/log"
	"leadgrid/src/push"
	"leadgrid/src/storage/minioctrl"
	"leadgrid/src/storage/postgres/businessctrl"
	"leadgrid/src/storage/postgres/contactctrl"
	"leadgrid/src/storage/postgres/enrichmentlogctrl"
	"leadgrid/src/storage/valkey"
	"leadgrid/src/storage/weaviate"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the leadgrid API server",
	Long:  `The serve command starts the HTTP server providing the CRM REST API and the push event feed`,
	Run:   RunServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func openDatabase() (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		viper.GetString("postgres.host"),
		viper.GetString("postgres.user"),
		viper.GetString("postgres.password"),
		viper.GetString("postgres.db"),
		viper.GetString("postgres.port"))
	return gorm.Open(postgres.Open(dsn), &gorm.Config{})
}

func RunServer(cmd *cobra.Command, args []string) {
	// Initialize PostgreSQL connection
	db, err := openDatabase()
	if err != nil {
		log.Error(err, "Failed to connect to database")
		return
	}

	if err := db.AutoMigrate(
		&jobctrl.Job{},
		&businessctrl.Business{},
		&contactctrl.Contact{},
		&enrichmentlogctrl.EnrichmentLog{},
	); err != nil {
		log.Error(err, "Failed to migrate database schema")
		return
	}

	// Initialize MinIO and make sure the snapshot buckets exist
	minioService, err := minioctrl.NewMinioService(
		viper.GetString("minio.endpoint"),
		viper.GetString("minio.access_key"),
		viper.GetString("minio.secret_key"),
		viper.GetBool("minio.use_ssl"),
	)
	if err != nil {
		log.Error(err, "Failed to initialize minio service")
		return
	}
	for _, bucket := range []string{minioctrl.ScrapeSnapshotsBucket, minioctrl.EnrichmentSnapshotsBucket} {
		if err := minioService.EnsureBucketExists(context.Background(), bucket); err != nil {
			log.Error(err, "Failed to ensure bucket exists", "bucket", bucket)
			return
		}
	}

	// Initialize Valkey-backed stats cache. The server runs without it if
	// Valkey is down; stats just skip the cache.
	statsCache, err := valkey.NewStatsCache(fmt.Sprintf("%s:%d",
		viper.GetString("valkey.host"),
		viper.GetInt("valkey.port")))
	if err != nil {
		log.Error(err, "Failed to connect to valkey, stats caching disabled")
		statsCache = nil
	} else {
		defer statsCache.Close()
	}

	// Initialize Weaviate client and the business vector class
	wc := weaviateClient.New(weaviateClient.Config{
		Host:   viper.GetString("weaviate.url"),
		Scheme: "http",
	})
	wsdk := weaviate.NewSDK(wc)
	if err := wsdk.EnsureBusinessClass(context.Background()); err != nil {
		log.Error(err, "Failed to ensure weaviate class")
		return
	}

	// Initialize LLM client
	llmClient := llm.NewClient(viper.GetString("llm.url"), &http.Client{
		Timeout: 120 * time.Second,
	})

	// Initialize AMQP publisher and subscriber
	wmLogger := watermill.NewStdLogger(false, false)
	amqpPublisher, err := amqp.NewPublisher(
		amqp.NewDurableQueueConfig(viper.GetString("amqp.url")),
		wmLogger,
	)
	if err != nil {
		log.Error(err, "Failed to create AMQP publisher")
		return
	}
	defer amqpPublisher.Close()

	amqpSubscriber, err := amqp.NewSubscriber(
		amqp.NewDurableQueueConfig(viper.GetString("amqp.url")),
		wmLogger,
	)
	if err != nil {
		log.Error(err, "Failed to create AMQP subscriber")
		return
	}
	defer amqpSubscriber.Close()

	// Initialize storage services
	businessService, err := businessctrl.NewBusinessService(db)
	if err != nil {
		log.Error(err, "Failed to initialize business service")
		return
	}
	contactService, err := contactctrl.NewContactService(db)
	if err != nil {
		log.Error(err, "Failed to initialize contact service")
		return
	}
	enrichmentLogService, err := enrichmentlogctrl.NewEnrichmentLogService(db)
	if err != nil {
		log.Error(err, "Failed to initialize enrichment log service")
		return
	}

	// Initialize core services
	statsService := lead.NewStatsService(businessService, statsCache)
	similarityService := lead.NewSimilarityService(businessService, wsdk, llmClient,
		viper.GetString("llm.embedding_model"))
	outreachService := lead.NewOutreachService(businessService, llmClient,
		viper.GetString("llm.generate_model"))

	// Job dispatch from the API only needs the repository and the queue; the
	// worker process owns task execution.
	jobRepo := jobctrl.NewPostgresJobRepository(db)
	eventsPublisher := push.NewQueuePublisher(amqpPublisher)
	jobService := jobctrl.NewJobService(amqpPublisher, jobRepo, eventsPublisher, wmLogger)

	// Initialize auth token store
	tokens := auth.NewStore(splitAPIKeys(viper.GetString("auth.api_keys")))

	// Initialize the push hub and relay worker-produced events into it
	hub := push.NewHub()
	relayCtx, cancelRelay := context.WithCancel(context.Background())
	defer cancelRelay()

	eventMessages, err := amqpSubscriber.Subscribe(relayCtx, push.EventsTopic)
	if err != nil {
		log.Error(err, "Failed to subscribe to push events")
		return
	}
	go push.Relay(relayCtx, eventMessages, hub, func(ev push.Event) {
		if ev.Kind == push.StatsUpdated {
			statsService.Invalidate(relayCtx)
		}
	})

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-relayCtx.Done():
				return
			case <-ticker.C:
				hub.ReapIdleSessions()
			}
		}
	}()

	// Initialize HTTP handler
	h := handler.NewHandler(
		businessService,
		contactService,
		enrichmentLogService,
		statsService,
		similarityService,
		outreachService,
		jobService,
		tokens,
		hub,
	)

	// Setup gin router
	r := gin.Default()

	// Register routes
	h.RegisterRoutes(r)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + viper.GetString("server.port"),
		Handler: r,
	}

	// Start server in a goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err, "Failed to start server")
			return
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	// Parse shutdown timeout
	timeout, err := time.ParseDuration(viper.GetString("server.shutdown_timeout"))
	if err != nil {
		log.Error(err, "Invalid shutdown timeout, using default 5s")
		timeout = 5 * time.Second
	}

	// Create context with timeout for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Get underlying *sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		log.Error(err, "Failed to get underlying *sql.DB")
	} else {
		// Close database connection
		if err := sqlDB.Close(); err != nil {
			log.Error(err, "Error closing database connection")
		}
	}

	// Attempt graceful shutdown
	if err := srv.Shutdown(ctx); err != nil {
		log.Error(err, "Server forced to shutdown")
	}

	log.Info("Server exited")
}

func splitAPIKeys(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			keys = append(keys, trimmed)
		}
	}
	return keys
}
