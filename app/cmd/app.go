package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"jobsync/app/config"
	"jobsync/app/usecase"
	"jobsync/internal/infrastructure/datasource"
	"jobsync/internal/infrastructure/datasource/octoparse"
	mongorepo "jobsync/internal/infrastructure/store/mongodb"
)

// app holds the wired services shared by serve and sync.
type app struct {
	jobs      *usecase.JobService
	tasks     *usecase.TaskService
	scheduler *usecase.SyncScheduler

	mongoClient *mongo.Client
	redisClient *redis.Client
	logger      *slog.Logger
}

func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{logger: logger}

	// Connect to MongoDB
	mongoCtx, mongoCancel := context.WithTimeout(ctx, 10*time.Second)
	defer mongoCancel()
	mongoClient, err := mongo.Connect(mongoCtx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	a.mongoClient = mongoClient
	if err := mongoClient.Ping(mongoCtx, nil); err != nil {
		a.Close()
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	logger.Info("connected to mongo", "db", cfg.Mongo.Database)
	db := mongoClient.Database(cfg.Mongo.Database)

	if cfg.Redis.URL != "" {
		rdb, err := connectRedis(ctx, cfg.Redis.URL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.redisClient = rdb
		logger.Info("connected to redis")
	}

	source, err := datasource.New(datasource.Options{
		Kind:       cfg.Source.Kind,
		FixtureDir: cfg.Source.FixtureDir,
		Octoparse: octoparse.Config{
			Username:          cfg.Source.Octoparse.Username,
			Password:          cfg.Source.Octoparse.Password,
			BaseURL:           cfg.Source.Octoparse.BaseURL,
			DataURL:           cfg.Source.Octoparse.DataURL,
			RequestsPerSecond: cfg.Source.Octoparse.RequestsPerSecond,
		},
		Redis: a.redisClient,
	}, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	// Repositories
	jobRepo := mongorepo.NewMongoJobRepo(db)
	taskRepo := mongorepo.NewMongoTaskRepo(db)

	// Usecases / services
	a.jobs = usecase.NewJobService(jobRepo, logger.With("component", "jobs"))
	a.tasks = usecase.NewTaskService(taskRepo, source, logger.With("component", "tasks"))
	a.scheduler = usecase.NewSyncScheduler(a.tasks, a.jobs, source, usecase.SchedulerConfig{
		Interval:    cfg.Scheduler.Interval,
		SyncOnStart: cfg.Scheduler.SyncOnStart,
	}, logger.With("component", "scheduler"))

	return a, nil
}

func connectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL: %w", err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Error("redis close error", "err", err)
		}
	}
	if a.mongoClient != nil {
		a.logger.Info("disconnecting mongo")
		if err := a.mongoClient.Disconnect(ctx); err != nil {
			a.logger.Error("mongo disconnect error", "err", err)
		}
	}
}
