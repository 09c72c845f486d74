package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/byagge/vashsender-2.0-sub000/internal/config"
	"github.com/byagge/vashsender-2.0-sub000/internal/queue"
	"github.com/byagge/vashsender-2.0-sub000/pkg/logger"
	"github.com/byagge/vashsender-2.0-sub000/pkg/redis"
	"github.com/byagge/vashsender-2.0-sub000/pkg/worker"
)

// ProcessingTimeout bounds one task end to end. Delivery tasks hold SMTP
// sessions with their own send deadline, so this sits above it.
const ProcessingTimeout = 2 * time.Minute
const HealthInterval = time.Second * 30
const ShutdownTimeout = time.Minute

// ProcessorService consumes the pipeline's streams and routes each message
// to the processor registered for its queue.
type ProcessorService struct {
	adapter    redis.RedisAdapter
	queues     []*queue.Queue
	processors map[string]Processor
	consumers  map[string]int
	metrics    *ServiceMetrics
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	worker     *worker.WorkerManager
}

// Processor handles messages from one queue. A nil return acks; an error
// nacks and lets the stream redeliver.
type Processor interface {
	Process(ctx context.Context, message *queue.Message) error
	GetType() string
}

func NewProcessorService(redis redis.RedisAdapter) (*ProcessorService, error) {
	ctx, cancel := context.WithCancel(context.Background())
	service := &ProcessorService{
		adapter:    redis,
		queues:     make([]*queue.Queue, 0),
		processors: make(map[string]Processor),
		consumers:  make(map[string]int),
		metrics:    NewServiceMetrics(),
		ctx:        ctx,
		cancel:     cancel,
		worker:     worker.NewWorkerManager(10_000, 100, nil),
	}
	return service, nil
}

// RegisterProcessor binds a processor to a queue name with the given
// number of consumer instances.
func (s *ProcessorService) RegisterProcessor(queueName string, consumers int, processor Processor) {
	if consumers <= 0 {
		consumers = 1
	}
	s.processors[queueName] = processor
	s.consumers[queueName] = consumers
	logger.Info("Registered processor", "queue", queueName, "type", processor.GetType(), "consumers", consumers)
}

// Start starts the processor service
func (s *ProcessorService) Start() error {
	logger.Info("Starting Processor Service...")

	s.worker.SetWorker(s.workerHandler)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.worker.Start(); err != nil {
			logger.Error("Worker manager stopped", "error", err)
		}
	}()

	for queueName := range s.processors {
		for i := 0; i < s.consumers[queueName]; i++ {
			queueConfig := queue.QueueConfig{
				Name:              queueName,
				ConsumerGroup:     config.Get().QueueConsumerGroup,
				ConsumerName:      fmt.Sprintf("%s-%s-%d", config.Get().QueueConsumerName, queueName, i),
				MaxRetries:        config.Get().QueueMaxRetries,
				VisibilityTimeout: config.Get().QueueVisibilityTimeout,
				PollInterval:      config.Get().QueuePollInterval,
				BatchSize:         config.Get().QueueBatchSize,
				MaxLen:            config.Get().QueueMaxLen,
				EnableDLQ:         config.Get().QueueEnableDLQ,
			}

			q, err := queue.NewQueue(s.adapter, queueConfig)
			if err != nil {
				return fmt.Errorf("failed to create consumer for %s: %w", queueName, err)
			}

			handler := s.handlerFor(queueName)
			if err := q.Consume(handler); err != nil {
				return fmt.Errorf("failed to start consumer for %s: %w", queueName, err)
			}

			s.queues = append(s.queues, q)
		}
		logger.Info("Started consumers", "queue", queueName, "instances", s.consumers[queueName])
	}

	s.wg.Add(2)
	go s.metricsReporter()
	go s.healthChecker()

	logger.Info("Processor Service started", "consumers", len(s.queues))
	return nil
}

// metricsReporter periodically reports metrics
func (s *ProcessorService) metricsReporter() {
	defer s.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.reportMetrics()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *ProcessorService) reportMetrics() {
	stats := s.metrics.GetStats()

	logger.Info("=== Service Metrics ===")
	logger.Info("Metrics", "total_processed", stats["total_processed"], "total_failed", stats["total_failed"], "rate_per_second", stats["rate_per_second"], "avg_duration_ms", stats["avg_duration_ms"], "uptime_seconds", stats["uptime_seconds"])

	for i, q := range s.queues {
		if qStats, err := q.GetStats(); err == nil {
			logger.Info("Queue stats", "queue", i, "total", qStats.TotalMessages, "pending", qStats.PendingMessages)
		}
	}
}

func (s *ProcessorService) healthChecker() {
	defer s.wg.Done()

	ticker := time.NewTicker(HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.performHealthCheck()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *ProcessorService) performHealthCheck() {
	if err := s.adapter.Client().Ping(context.Background()).Err(); err != nil {
		logger.Error("HEALTH CHECK FAILED: Redis connection error", "error", err)
		return
	}

	for i, q := range s.queues {
		stats, err := q.GetStats()
		if err != nil {
			logger.Warn("HEALTH CHECK WARNING: Queue stats unavailable", "queue", i, "error", err)
			continue
		}

		if stats.PendingMessages > 10000 {
			logger.Warn("HEALTH CHECK WARNING: Queue has high lag", "queue", i, "pending_messages", stats.PendingMessages)
		}
	}

	logger.Info("HEALTH CHECK: OK - Service healthy")
}

// Stop gracefully stops the service
func (s *ProcessorService) Stop() {
	logger.Info("Shutting down Processor Service...")

	s.cancel()

	timeout := ShutdownTimeout
	stopChan := make(chan bool, len(s.queues))

	for i, q := range s.queues {
		go func(index int, queue *queue.Queue) {
			if err := queue.Stop(timeout); err != nil {
				logger.Error("Error stopping queue", "queue", index, "error", err)
			}
			stopChan <- true
		}(i, q)
	}

	for range s.queues {
		select {
		case <-stopChan:
		case <-time.After(timeout + 5*time.Second):
			logger.Warn("Timeout waiting for queues to stop")
		}
	}

	s.worker.Exit()
	s.wg.Wait()
	s.reportMetrics()

	logger.Info("Processor Service stopped")
}

type jobResult struct {
	msg        *queue.Message
	queueName  string
	resultChan chan error
	ctx        context.Context
}

// handlerFor returns a queue handler that parks the message on the worker
// pool and blocks until a worker reports the result.
func (s *ProcessorService) handlerFor(queueName string) queue.MessageHandler {
	return func(ctx context.Context, msg *queue.Message) error {
		resultChan := make(chan error, 1)

		msgCtx, cancel := context.WithTimeout(ctx, ProcessingTimeout+time.Second)
		defer cancel()

		job := &jobResult{
			msg:        msg,
			queueName:  queueName,
			resultChan: resultChan,
			ctx:        msgCtx,
		}

		s.worker.Enqueue(job)

		select {
		case err := <-resultChan:
			return err
		case <-msgCtx.Done():
			return fmt.Errorf("timeout waiting for worker to process message: %w", msgCtx.Err())
		}
	}
}

// workerHandler processes messages in worker pool
func (s *ProcessorService) workerHandler(workerIndex int, job interface{}) {
	jobRes, ok := job.(*jobResult)
	if !ok {
		logger.Error("Invalid job type in worker", "worker", workerIndex)
		return
	}

	msg := jobRes.msg
	start := time.Now()
	var resultErr error

	select {
	case <-jobRes.ctx.Done():
		logger.Warn("Job context cancelled before processing started", "worker", workerIndex)
		return
	default:
	}

	processor, ok := s.processors[jobRes.queueName]
	if !ok {
		logger.Error("No processor for queue", "worker", workerIndex, "queue", jobRes.queueName)
		s.metrics.RecordFailure()
		resultErr = nil // ACK - an unroutable message won't succeed on retry
	} else {
		if err := processor.Process(jobRes.ctx, msg); err != nil {
			s.metrics.RecordFailure()
			logger.Error("Failed to process message", "worker", workerIndex, "queue", jobRes.queueName, "error", err)
			resultErr = err // NACK - return error
		} else {
			duration := time.Since(start)
			s.metrics.RecordSuccess(duration)
			resultErr = nil // ACK - return nil
		}
	}

	select {
	case jobRes.resultChan <- resultErr:
	case <-jobRes.ctx.Done():
		logger.Warn("Context cancelled while sending result, message handler timed out", "worker", workerIndex)
	}
}
