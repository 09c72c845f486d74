package config

import (
	"time"

	"github.com/Netflix/go-env"
	"github.com/byagge/vashsender-2.0-sub000/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

const ConfigTagName = "env"
const ConfigDefaultTagName = "default"

var config *Config

// Config holds every environment-driven setting of the delivery pipeline.
// It is populated once at process start; pipeline components never read the
// environment themselves and instead receive the values they need through
// their constructors.
type Config struct {
	AppEnv   string `env:"APP_ENV" default:"dev"`
	AppName  string `env:"APP_NAME" default:"vashsender"`
	AppDebug bool   `env:"APP_DEBUG" default:"1"`

	HttpListenAddr string `env:"HTTP_LISTEN_ADDR" default:":8080"`

	PostgresReadHost     string `env:"POSTGRES_READ_HOST"`
	PostgresReadPort     string `env:"POSTGRES_READ_PORT"`
	PostgresReadUser     string `env:"POSTGRES_READ_USER"`
	PostgresReadPassword string `env:"POSTGRES_READ_PASSWORD"`
	PostgresReadDatabase string `env:"POSTGRES_READ_DBNAME"`

	PostgresWriteHost     string `env:"POSTGRES_WRITE_HOST"`
	PostgresWritePort     string `env:"POSTGRES_WRITE_PORT"`
	PostgresWriteUser     string `env:"POSTGRES_WRITE_USER"`
	PostgresWritePassword string `env:"POSTGRES_WRITE_PASSWORD"`
	PostgresWriteDatabase string `env:"POSTGRES_WRITE_DBNAME"`

	RedisAddr               string `env:"REDIS_ADDR"`
	RedisUsername           string `env:"REDIS_USER"`
	RedisPassword           string `env:"REDIS_PASS"`
	RedisDatabase           int    `env:"REDIS_DATABASE"`
	RedisUniversalKeyPrefix string `env:"REDIS_UNIVERSAL_KEY_PREFIX"`

	PromNamespace string `env:"PROM_NAMESPACE"`

	CampaignQueueName  string `env:"CAMPAIGN_QUEUE_NAME" default:"campaigns"`
	BatchQueueName     string `env:"BATCH_QUEUE_NAME" default:"batches"`
	DeliveryQueueName  string `env:"DELIVERY_QUEUE_NAME" default:"deliveries"`
	QueueConsumerGroup string `env:"QUEUE_CONSUMER_GROUP" default:"pipeline"`
	QueueConsumerName  string `env:"QUEUE_CONSUMER_NAME" default:"worker"`

	QueueMaxRetries        int           `env:"QUEUE_MAX_RETRIES" default:"5"`
	QueueVisibilityTimeout time.Duration `env:"QUEUE_VISIBILITY_TIMEOUT" default:"60s"`
	QueuePollInterval      time.Duration `env:"QUEUE_POLL_INTERVAL" default:"1s"`
	QueueBatchSize         int64         `env:"QUEUE_BATCH_SIZE" default:"10"`
	QueueMaxLen            int64         `env:"QUEUE_MAX_LEN"`
	QueueEnableDLQ         bool          `env:"QUEUE_ENABLE_DLQ" default:"1"`

	SMTPPrimaryHost    string        `env:"SMTP_PRIMARY_HOST"`
	SMTPFallbackHosts  []string      `env:"SMTP_FALLBACK_HOSTS"`
	SMTPDirectAddr     string        `env:"SMTP_DIRECT_ADDR" default:"127.0.0.1:25"`
	SMTPHeloDomain     string        `env:"SMTP_HELO_DOMAIN"`
	SMTPUsername       string        `env:"SMTP_USERNAME"`
	SMTPPassword       string        `env:"SMTP_PASSWORD"`
	SMTPEnableTLS      bool          `env:"SMTP_ENABLE_TLS" default:"1"`
	SMTPMaxConnections int           `env:"SMTP_MAX_CONNECTIONS" default:"10"`
	SMTPConnectTimeout time.Duration `env:"SMTP_CONNECT_TIMEOUT" default:"10s"`
	SMTPSendTimeout    time.Duration `env:"SMTP_SEND_TIMEOUT" default:"30s"`

	DefaultFromAddress string `env:"DEFAULT_FROM_ADDRESS" default:"noreply@vashsender.ru"`
	TrackingBaseURL    string `env:"TRACKING_BASE_URL" default:"https://vashsender.ru"`
	DKIMKeyDir         string `env:"DKIM_KEY_DIR"`
	DKIMSelector       string `env:"DKIM_SELECTOR" default:"mail"`

	DeliveryMaxAttempts  int           `env:"DELIVERY_MAX_ATTEMPTS" default:"3"`
	DeliveryBackoffBase  time.Duration `env:"DELIVERY_BACKOFF_BASE" default:"30s"`
	DeliveryBackoffCap   time.Duration `env:"DELIVERY_BACKOFF_CAP" default:"10m"`
	DispatchBatchSize    int           `env:"DISPATCH_BATCH_SIZE" default:"1000"`
	ProgressCounterTTL   time.Duration `env:"PROGRESS_COUNTER_TTL" default:"24h"`
	StuckCampaignTimeout time.Duration `env:"STUCK_CAMPAIGN_TIMEOUT" default:"15m"`
	SweepInterval        time.Duration `env:"SWEEP_INTERVAL" default:"5m"`
	ModerationWebhookURL string        `env:"MODERATION_WEBHOOK_URL"`
}

func Load(path string) error {
	logger.Info("loading configs..", "path", path)
	c := &Config{}
	var err error
	if path != "" {
		logger.Info("trying to publish env from file", "path", path)
		err = godotenv.Load(path)
		if err != nil {
			return errors.New("failed to load configuration file " + path + " error: " + err.Error())
		}
	}

	_, err = env.UnmarshalFromEnviron(c)

	if err != nil {
		return errors.New("failed to map env variables to Configuration object " + " error: " + err.Error())
	}

	config = c
	return nil
}

func Get() *Config {
	if config == nil {
		logger.Panic("Config is not initialized")
	}
	return config
}
