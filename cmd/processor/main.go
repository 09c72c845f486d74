package main

import (
	"crypto/tls"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/byagge/vashsender-2.0-sub000/internal/campaign"
	"github.com/byagge/vashsender-2.0-sub000/internal/config"
	"github.com/byagge/vashsender-2.0-sub000/internal/delivery"
	"github.com/byagge/vashsender-2.0-sub000/internal/message"
	"github.com/byagge/vashsender-2.0-sub000/internal/processor"
	"github.com/byagge/vashsender-2.0-sub000/internal/queue"
	"github.com/byagge/vashsender-2.0-sub000/internal/repository"
	"github.com/byagge/vashsender-2.0-sub000/internal/smtp"
	"github.com/byagge/vashsender-2.0-sub000/pkg/logger"
	"github.com/byagge/vashsender-2.0-sub000/pkg/pg"
	"github.com/byagge/vashsender-2.0-sub000/pkg/prom"
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

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Kill, os.Interrupt, syscall.SIGTERM)

	hosts := smtp.RankHosts(config.Get().SMTPPrimaryHost, config.Get().SMTPFallbackHosts, config.Get().SMTPDirectAddr)
	pool, err := smtp.NewPool(smtp.Config{
		Hosts:          hosts,
		HeloDomain:     config.Get().SMTPHeloDomain,
		Username:       config.Get().SMTPUsername,
		Password:       config.Get().SMTPPassword,
		EnableTLS:      config.Get().SMTPEnableTLS,
		TLSConfig:      &tls.Config{MinVersion: tls.VersionTLS12},
		MaxConnections: config.Get().SMTPMaxConnections,
		ConnectTimeout: config.Get().SMTPConnectTimeout,
		SendTimeout:    config.Get().SMTPSendTimeout,
	})
	if err != nil {
		logger.Error("failed to create smtp pool", "error", err)
		return
	}
	defer pool.CloseAll()

	var signer message.Signer
	if dir := config.Get().DKIMKeyDir; dir != "" {
		signer = message.NewDomainSigner(dir, config.Get().DKIMSelector)
	}
	builder := message.NewBuilder(config.Get().TrackingBaseURL, config.Get().DefaultFromAddress, signer)

	campaignRepo := repository.NewCampaignRepository(db)
	contactRepo := repository.NewContactRepository(db)
	attemptRepo := repository.NewAttemptRepository(db)
	userRepo := repository.NewUserRepository(db)
	moderationRepo := repository.NewModerationRepository(db)

	tracker := delivery.NewProgressTracker(redisAdap, config.Get().ProgressCounterTTL)
	finalizer := delivery.NewFinalizer(campaignRepo, attemptRepo, tracker)
	worker := delivery.NewWorker(
		delivery.NewPoolTransmitter(pool),
		builder,
		campaignRepo,
		contactRepo,
		attemptRepo,
		tracker,
		finalizer,
		delivery.WorkerConfig{
			MaxAttempts: config.Get().DeliveryMaxAttempts,
			BackoffBase: config.Get().DeliveryBackoffBase,
			BackoffCap:  config.Get().DeliveryBackoffCap,
		},
	)

	// Publisher-side queue handles. Consumers are created separately by the
	// processor service, on the same streams.
	batchQ, err := publisherQueue(redisAdap, config.Get().BatchQueueName)
	if err != nil {
		logger.Error("failed creating batch queue", "error", err)
		return
	}
	deliveryQ, err := publisherQueue(redisAdap, config.Get().DeliveryQueueName)
	if err != nil {
		logger.Error("failed creating delivery queue", "error", err)
		return
	}

	quota := campaign.NewQuotaService(userRepo)
	notifier := campaign.NewWebhookNotifier(config.Get().ModerationWebhookURL)
	orchestrator := campaign.NewOrchestrator(
		campaignRepo,
		contactRepo,
		userRepo,
		moderationRepo,
		quota,
		tracker,
		batchQ,
		notifier,
		config.Get().DispatchBatchSize,
	)
	dispatcher := campaign.NewDispatcher(campaignRepo, contactRepo, attemptRepo, tracker, deliveryQ)

	guard := processor.NewDeliveryGuard(redisAdap, processor.DefaultGuardConfig())

	service, err := processor.NewProcessorService(redisAdap)
	if err != nil {
		logger.Error("failed to create the processor service", "error", err)
		return
	}
	service.RegisterProcessor(config.Get().CampaignQueueName, 1, processor.NewCampaignProcessor(orchestrator))
	service.RegisterProcessor(config.Get().BatchQueueName, 2, processor.NewBatchProcessor(dispatcher))
	service.RegisterProcessor(config.Get().DeliveryQueueName, 4, processor.NewDeliveryProcessor(worker, guard, deliveryQ))

	var hostname string
	hostname, err = os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	err = prom.Create(hostname, config.Get().AppEnv, config.Get().PromNamespace)
	if err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}

	go func() {
		prom.ListenAndServer(":9100", "/metrics")
	}()

	go func() {
		err := service.Start()
		if err != nil {
			logger.Error("failed to start processor", "error", err)
		}
	}()

	select {
	case <-c:
		service.Stop()
	}
}

func publisherQueue(adapter redis.RedisAdapter, name string) (*queue.Queue, error) {
	return queue.NewQueue(adapter, queue.QueueConfig{
		Name:              name,
		ConsumerGroup:     config.Get().QueueConsumerGroup,
		ConsumerName:      config.Get().QueueConsumerName + "-pub",
		MaxRetries:        config.Get().QueueMaxRetries,
		VisibilityTimeout: config.Get().QueueVisibilityTimeout,
		PollInterval:      config.Get().QueuePollInterval,
		BatchSize:         config.Get().QueueBatchSize,
		MaxLen:            config.Get().QueueMaxLen,
		EnableDLQ:         config.Get().QueueEnableDLQ,
	})
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
