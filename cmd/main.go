package main

import (
	"context"
	"log"
	"strconv"

	"github.com/uswegem/miracore/configs"
	"github.com/uswegem/miracore/internal/app/router"
	"github.com/uswegem/miracore/internal/pkg/db"
	"github.com/uswegem/miracore/internal/pkg/events"
	"github.com/uswegem/miracore/internal/pkg/logger"
	"github.com/uswegem/miracore/internal/pkg/otel"
	"github.com/uswegem/miracore/internal/pkg/redis"
	"github.com/uswegem/miracore/internal/pkg/utils/worker"
)

func main() {

	// Load Environment Variables
	err := configs.LoadEnv()
	if err != nil {
		logger.Debug("Error loading .env file: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	//setup otel collector
	_, err = otel.Setup(ctx, configs.SERVICE_NAME, configs.OTEL_URL)
	if err != nil {
		logger.Error(ctx, "Error setting up OTLP: %v", err)
	}

	// DB Connection
	mdb, dbErr := db.NewMongoDB()
	if dbErr != nil {
		log.Fatalf("Error connecting to MongoDB: %v", dbErr)
	}
	db.MDB = mdb
	defer mdb.Close()

	publisher, err := events.NewPublisher()
	if err != nil {
		logger.Error(ctx, "failed to create Kafka publisher: %v", err)
	}
	defer publisher.Close()

	numberOfWorkers, er := strconv.Atoi(configs.WORKER_POOL)
	if er != nil {
		logger.Error(ctx, er)
	}

	// Connect to Redis
	redisClient, err := redis.ConnectToRedis(ctx, configs.GetRedisConfig())
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	workerPool := worker.NewWorkerPool(numberOfWorkers)
	defer workerPool.Stop()

	r, err := router.SetupRouter(workerPool, redisClient.Client, publisher)
	if err != nil {
		log.Fatalf("Failed to set up router: %v", err)
	}

	port := configs.SERVER_PORT

	if err := r.Run(":" + port); err != nil {
		logger.Error(ctx, "Failed to run server: %v", err)
	}
}
