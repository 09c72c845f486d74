package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/byagge/vashsender-2.0-sub000/internal/config"
	"github.com/byagge/vashsender-2.0-sub000/internal/delivery"
	"github.com/byagge/vashsender-2.0-sub000/internal/repository"
	"github.com/byagge/vashsender-2.0-sub000/internal/sweeper"
	"github.com/byagge/vashsender-2.0-sub000/pkg/logger"
	"github.com/byagge/vashsender-2.0-sub000/pkg/pg"
	"github.com/byagge/vashsender-2.0-sub000/pkg/redis"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {

	err := config.Load(argContainsEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}

	readConf := pg.Config{
		User:     config.Get().PostgresReadUser,
		Host:     config.Get().PostgresReadHost,
		Port:     config.Get().PostgresReadPort,
		Password: config.Get().PostgresReadPassword,
		Database: config.Get().PostgresReadDatabase,
	}
	writeConf := pg.Config{
		User:     config.Get().PostgresWriteUser,
		Host:     config.Get().PostgresWriteHost,
		Port:     config.Get().PostgresWritePort,
		Password: config.Get().PostgresWritePassword,
		Database: config.Get().PostgresWriteDatabase,
	}

	pgDebug := false
	if config.Get().AppEnv == "dev" {
		pgDebug = true
	}
	db, err := pg.CreateReadWrite(readConf, writeConf, pgDebug)
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	redisAdap, err := redis.NewRedisAdapter("default", config.Get().RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{config.Get().RedisAddr},
		ClientName: "default",
		DB:         config.Get().RedisDatabase,
		Username:   config.Get().RedisUsername,
		Password:   config.Get().RedisPassword,
	})
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	campaignRepo := repository.NewCampaignRepository(db)
	contactRepo := repository.NewContactRepository(db)
	attemptRepo := repository.NewAttemptRepository(db)
	tracker := delivery.NewProgressTracker(redisAdap, config.Get().ProgressCounterTTL)

	sw := sweeper.NewSweeper(campaignRepo, contactRepo, attemptRepo, tracker, config.Get().StuckCampaignTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Kill, os.Interrupt, syscall.SIGTERM)

	interval := config.Get().SweepInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// The monitor sweep runs less often: it only catches campaigns whose
	// kickoff task vanished, which the stuck sweep would catch eventually.
	monitorTicker := time.NewTicker(interval * 3)
	defer monitorTicker.Stop()

	logger.Info("sweeper started", "interval", interval, "stuck_timeout", config.Get().StuckCampaignTimeout)

	for {
		select {
		case <-ticker.C:
			if err := sw.RepairStuck(ctx); err != nil {
				logger.Error("stuck-campaign sweep failed", "error", err)
			}
		case <-monitorTicker.C:
			if err := sw.MonitorProgress(ctx); err != nil {
				logger.Error("progress monitor sweep failed", "error", err)
			}
		case <-c:
			logger.Info("sweeper stopping")
			cancel()
			return
		}
	}
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Open(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	return ""
}
