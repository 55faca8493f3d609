package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	weaviateClient "github.com/weaviate/weaviate-go-client/v4/weaviate"

	"leadgrid/src/core/lead"
	"leadgrid/src/infrastructure/integrations/enrich"
	"leadgrid/src/infrastructure/integrations/llm"
	"leadgrid/src/infrastructure/integrations/scraper"
	jobctrl "leadgrid/src/infrastructure/job"
	"leadgrid/src/infrastructure/log"
	"leadgrid/src/push"
	"leadgrid/src/storage/minioctrl"
	"leadgrid/src/storage/postgres/businessctrl"
	"leadgrid/src/storage/postgres/contactctrl"
	"leadgrid/src/storage/postgres/enrichmentlogctrl"
	"leadgrid/src/storage/weaviate"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background job worker",
	Long:  `The worker command consumes scraping, enrichment and outreach jobs from the queue`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	// Initialize logger
	logger := watermill.NewStdLogger(false, false)

	// Initialize PostgreSQL connection
	db, err := openDatabase()
	if err != nil {
		return fmt.Errorf("failed to connect to database: %v", err)
	}

	// Get underlying *sql.DB for cleanup
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying *sql.DB: %v", err)
	}
	defer sqlDB.Close()

	// Initialize AMQP publisher
	amqpPublisher, err := amqp.NewPublisher(
		amqp.NewDurableQueueConfig(viper.GetString("amqp.url")),
		logger,
	)
	if err != nil {
		return err
	}
	defer amqpPublisher.Close()

	// Initialize AMQP subscriber
	subscriberConfig := amqp.NewDurableQueueConfig(viper.GetString("amqp.url"))
	subscriberConfig.Consume.NoRequeueOnNack = true
	amqpSubscriber, err := amqp.NewSubscriber(subscriberConfig, logger)
	if err != nil {
		return err
	}
	defer amqpSubscriber.Close()

	// Initialize router
	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return err
	}

	// Add middleware
	router.AddMiddleware(
		middleware.Recoverer,
		middleware.CorrelationID,
		middleware.Retry{
			MaxRetries:      3,
			InitialInterval: time.Second,
			Logger:          logger,
		}.Middleware,
	)

	// Initialize MinioService
	minioService, err := minioctrl.NewMinioService(
		viper.GetString("minio.endpoint"),
		viper.GetString("minio.access_key"),
		viper.GetString("minio.secret_key"),
		viper.GetBool("minio.use_ssl"),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize minio service: %v", err)
	}

	// Initialize integration clients
	scraperClient := scraper.NewClient(viper.GetString("scraper.url"), &http.Client{
		Timeout: 120 * time.Second,
	})
	enrichClient := enrich.NewClient(
		viper.GetString("enrich.url"),
		viper.GetString("enrich.api_key"),
		&http.Client{Timeout: 60 * time.Second},
	)
	llmClient := llm.NewClient(viper.GetString("llm.url"), &http.Client{
		Timeout: 300 * time.Second,
	})

	// Initialize Weaviate SDK for similarity indexing
	wc := weaviateClient.New(weaviateClient.Config{
		Host:   viper.GetString("weaviate.url"),
		Scheme: "http",
	})
	wsdk := weaviate.NewSDK(wc)

	// Initialize storage services
	businessService, err := businessctrl.NewBusinessService(db)
	if err != nil {
		return fmt.Errorf("failed to initialize business service: %v", err)
	}
	contactService, err := contactctrl.NewContactService(db)
	if err != nil {
		return fmt.Errorf("failed to initialize contact service: %v", err)
	}
	enrichmentLogService, err := enrichmentlogctrl.NewEnrichmentLogService(db)
	if err != nil {
		return fmt.Errorf("failed to initialize enrichment log service: %v", err)
	}

	// Push events produced by tasks go through the queue to the API server
	eventsPublisher := push.NewQueuePublisher(amqpPublisher)

	// Initialize core services used by tasks
	similarityService := lead.NewSimilarityService(businessService, wsdk, llmClient,
		viper.GetString("llm.embedding_model"))
	outreachService := lead.NewOutreachService(businessService, llmClient,
		viper.GetString("llm.generate_model"))

	// Initialize tasks
	scrapeTask := jobctrl.NewScrapeTask(
		scraperClient,
		businessService,
		minioService,
		similarityService,
		eventsPublisher,
	)
	enrichTask := jobctrl.NewEnrichBatchTask(
		enrichClient,
		businessService,
		contactService,
		enrichmentLogService,
		minioService,
		eventsPublisher,
	)
	outreachTask := jobctrl.NewOutreachTask(outreachService)

	// Initialize job repository and service
	jobRepo := jobctrl.NewPostgresJobRepository(db)
	jobService := jobctrl.NewJobService(amqpPublisher, jobRepo, eventsPublisher, logger,
		scrapeTask, enrichTask, outreachTask)

	// Add handler for processing jobs
	router.AddNoPublisherHandler(
		"job_processor",
		jobctrl.JobsTopic,
		amqpSubscriber,
		func(msg *message.Message) error {
			return jobService.ProcessJobMessage(msg)
		},
	)

	// Run the router
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := router.Run(ctx); err != nil {
			log.Error(err, "Router stopped with error")
		}
	}()

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	<-c

	log.Info("Shutting down worker...")
	cancel()
	<-router.Running()
	log.Info("Router stopped")

	return nil
}
