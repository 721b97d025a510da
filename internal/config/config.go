package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/hirelens/assessment-api/internal/logger"
	"github.com/hirelens/assessment-api/internal/validator"
)

type PostgresConfig struct {
	User               string        `validate:"required"`
	Password           string        `validate:"required"`
	Host               string        `validate:"required"`
	Database           string        `validate:"required"`
	SSLMode            string        `validate:"required" mapstructure:"sslmode"`
	MaxIdleConnections int           `validate:"required" mapstructure:"max_idle_connections"`
	MaxOpenConnections int           `validate:"required" mapstructure:"max_open_connections"`
	ConnectionTTL      time.Duration `validate:"required" mapstructure:"connection_ttl"`
	Port               int16         `validate:"required"`
}

type AzureConfig struct {
	StorageAccount *AzureStorageAccountConfig `mapstructure:"storage_account"`
	Dev            bool                       `mapstructure:"dev"`
}

type AzureStorageAccountConfig struct {
	Name          string `mapstructure:"name"`
	Key           string `mapstructure:"key"`
	QueuesURL     string `mapstructure:"queues_url"`
	ContainersURL string `mapstructure:"containers_url"`
	Container     string `mapstructure:"container"`
}

type SlogConfig struct {
	Level int `mapstructure:"level"`
}

type GormLogConfig struct {
	Level        int  `mapstructure:"level"`
	TraceQueries bool `mapstructure:"trace_queries"`
}

type LoggingConfig struct {
	Gorm    GormLogConfig `mapstructure:"gorm"`
	App     SlogConfig    `mapstructure:"app"`
	UseOTLP bool          `mapstructure:"use_otlp"`
}

type AuthConfig struct {
	JWTSecret    string        `mapstructure:"jwt_secret"`
	SessionTTL   time.Duration `mapstructure:"session_ttl"    validate:"required"`
	MagicLinkTTL time.Duration `mapstructure:"magic_link_ttl" validate:"required"`
}

type InviteConfig struct {
	DefaultExpiryHours int `mapstructure:"default_expiry_hours" validate:"required,min=1"`
}

type AssessmentConfig struct {
	DefaultDurationSecs int `mapstructure:"default_duration_secs" validate:"required,min=1"`
	MinDurationSecs     int `mapstructure:"min_duration_secs"     validate:"required,min=1"`
	DeadlineGraceSecs   int `mapstructure:"deadline_grace_secs"   validate:"min=0"`
}

func (a *AssessmentConfig) DeadlineGrace() time.Duration {
	return time.Duration(a.DeadlineGraceSecs) * time.Second
}

type ScoringMode string

const (
	ScoringModeAwait      ScoringMode = "await"
	ScoringModeBackground ScoringMode = "background"
	ScoringModeQueue      ScoringMode = "queue"
)

type ScoringConfig struct {
	Mode          ScoringMode   `mapstructure:"mode"           validate:"oneof=await background queue"`
	StaleAfter    time.Duration `mapstructure:"stale_after"    validate:"required"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" validate:"required"`
}

type LLMProvider string

const (
	LLMProviderGemini          LLMProvider = "gemini"
	LLMProviderChatCompletions LLMProvider = "chat_completions"
)

type LLMConfig struct {
	Provider    LLMProvider   `mapstructure:"provider"     validate:"oneof=gemini chat_completions"`
	Model       string        `mapstructure:"model"        validate:"required"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"      validate:"required"`
	MaxAttempts uint64        `mapstructure:"max_attempts" validate:"required,min=1"`
}

type QueueBackend string

const (
	QueueBackendAzure    QueueBackend = "azure"
	QueueBackendRabbitMQ QueueBackend = "rabbitmq"
)

type RabbitMQConfig struct {
	URL string `mapstructure:"url"`
}

type QueueConfig struct {
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
	Backend  QueueBackend   `mapstructure:"backend"  validate:"oneof=azure rabbitmq"`
	Requests string         `mapstructure:"requests" validate:"required"`
	Results  string         `mapstructure:"results"  validate:"required"`
}

type ArchiveBackend string

const (
	ArchiveBackendNone  ArchiveBackend = "none"
	ArchiveBackendMinio ArchiveBackend = "minio"
	ArchiveBackendAzure ArchiveBackend = "azure"
)

type MinioArchiveConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	BucketName      string `mapstructure:"bucket_name"`
	SSLEnabled      bool   `mapstructure:"ssl_enabled"`
}

type ArchiveConfig struct {
	Minio   MinioArchiveConfig `mapstructure:"minio"`
	Backend ArchiveBackend     `mapstructure:"backend" validate:"oneof=none minio azure"`
}

type RateLimitConfig struct {
	RedisHost          string `mapstructure:"redis_host"`
	CandidatePerMinute int64  `mapstructure:"candidate_per_minute"`
	AuthPerMinute      int64  `mapstructure:"auth_per_minute"`
	FailOpen           bool   `mapstructure:"fail_open"`
}

// See assessmentapi.yaml for an example config
type Config struct {
	Postgres             *PostgresConfig   `mapstructure:"postgres"               validate:"required"`
	Azure                *AzureConfig      `mapstructure:"azure"`
	Logging              *LoggingConfig    `mapstructure:"logging"                validate:"required"`
	Auth                 *AuthConfig       `mapstructure:"auth"                   validate:"required"`
	Invite               *InviteConfig     `mapstructure:"invite"                 validate:"required"`
	Assessment           *AssessmentConfig `mapstructure:"assessment"             validate:"required"`
	Scoring              *ScoringConfig    `mapstructure:"scoring"                validate:"required"`
	LLM                  *LLMConfig        `mapstructure:"llm"                    validate:"required"`
	Queue                *QueueConfig      `mapstructure:"queue"                  validate:"required"`
	Archive              *ArchiveConfig    `mapstructure:"archive"                validate:"required"`
	RateLimit            *RateLimitConfig  `mapstructure:"ratelimit"`
	ListenAddress        string            `mapstructure:"listen_address"         validate:"required"`
	PublicBaseURL        string            `mapstructure:"public_base_url"        validate:"required,url"`
	GracefulShutdownSecs int64             `mapstructure:"graceful_shutdown_secs"`
}

const (
	AppLogLevel                string = "logging.app.level"
	ArchiveBackendKey          string = "archive.backend"
	ArchiveMinioAccessKeyID    string = "archive.minio.access_key_id"
	ArchiveMinioSSLEnabled     string = "archive.minio.ssl_enabled"
	ArchiveMinioSecretKey      string = "archive.minio.secret_access_key" // #nosec
	AssessmentDefaultDuration  string = "assessment.default_duration_secs"
	AssessmentDeadlineGrace    string = "assessment.deadline_grace_secs"
	AssessmentMinDuration      string = "assessment.min_duration_secs"
	AuthJWTSecret              string = "auth.jwt_secret" // #nosec
	AuthMagicLinkTTL           string = "auth.magic_link_ttl"
	AuthPerMinute              string = "ratelimit.auth_per_minute"
	AuthSessionTTL             string = "auth.session_ttl"
	AzureDev                   string = "azure.dev"
	AzureStorageAccountKey     string = "azure.storage_account.key"
	CandidatePerMinute         string = "ratelimit.candidate_per_minute"
	EnvPrefix                  string = "assess"
	GormLogLevel               string = "logging.gorm.level"
	GormTraceQueries           string = "logging.gorm.trace_queries"
	GracefulShutdownSecs       string = "graceful_shutdown_secs"
	InviteDefaultExpiryHours   string = "invite.default_expiry_hours"
	ListenAddress              string = "listen_address"
	LLMAPIKey                  string = "llm.api_key" // #nosec
	LLMBaseURL                 string = "llm.base_url"
	LLMMaxAttempts             string = "llm.max_attempts"
	LLMModel                   string = "llm.model"
	LLMProviderKey             string = "llm.provider"
	LLMTimeout                 string = "llm.timeout"
	PostgresConnectonTTL       string = "postgres.connection_ttl"
	PostgresDatabase           string = "postgres.database"
	PostgresHost               string = "postgres.host"
	PostgresMaxIdleConnections string = "postgres.max_idle_connections"
	PostgresMaxOpenConnections string = "postgres.max_open_connections"
	PostgresPassword           string = "postgres.password"
	PostgresPort               string = "postgres.port"
	PostgresSSLMode            string = "postgres.sslmode"
	PostgresUser               string = "postgres.user"
	PublicBaseURL              string = "public_base_url"
	QueueBackendKey            string = "queue.backend"
	QueueRabbitMQURL           string = "queue.rabbitmq.url"
	QueueRequests              string = "queue.requests"
	QueueResults               string = "queue.results"
	RateLimitFailOpen          string = "ratelimit.fail_open"
	RedisHost                  string = "ratelimit.redis_host"
	ScoringModeKey             string = "scoring.mode"
	ScoringStaleAfter          string = "scoring.stale_after"
	ScoringSweepInterval       string = "scoring.sweep_interval"
	UseOTLP                    string = "logging.use_otlp"
)

var configReady = false
var config Config

func GetConfig() (*Config, error) {
	if configReady {
		logger.Logger.Debug("returning already-loaded config")
		return &config, nil
	}
	logger.Logger.Info("loading config")

	// a missing .env is fine, the environment may already be populated
	if err := godotenv.Load(); err != nil {
		logger.Logger.Debug("no .env file loaded", "error", err)
	}

	v := viper.New()

	v.SetConfigName("assessmentapi")

	v.AddConfigPath("/etc/assessmentapi/")
	v.AddConfigPath(".")

	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.AutomaticEnv()

	// workaround for https://github.com/spf13/viper/issues/761
	// bind env vars explicitly so they unmarshal into the nested struct
	for _, key := range []string{
		PostgresUser,
		PostgresPassword,
		PostgresDatabase,
		AzureStorageAccountKey,
		AuthJWTSecret,
		LLMAPIKey,
		LLMBaseURL,
		QueueRabbitMQURL,
		ArchiveMinioAccessKeyID,
		ArchiveMinioSecretKey,
		RedisHost,
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	v.SetDefault(ListenAddress, "[::]:1323")
	v.SetDefault(PublicBaseURL, "http://localhost:3000")
	v.SetDefault(GracefulShutdownSecs, 10)

	v.SetDefault(PostgresHost, "localhost")
	v.SetDefault(PostgresPort, 5432)
	v.SetDefault(PostgresSSLMode, "disable")
	v.SetDefault(PostgresMaxIdleConnections, 2)
	v.SetDefault(PostgresMaxOpenConnections, 10)
	v.SetDefault(PostgresConnectonTTL, 10*time.Minute)

	v.SetDefault(AzureDev, false)
	v.SetDefault(GormLogLevel, int(slog.LevelDebug))
	v.SetDefault(GormTraceQueries, false)
	v.SetDefault(AppLogLevel, int(slog.LevelDebug))
	v.SetDefault(UseOTLP, false)

	v.SetDefault(AuthSessionTTL, 24*time.Hour)
	v.SetDefault(AuthMagicLinkTTL, 15*time.Minute)

	v.SetDefault(InviteDefaultExpiryHours, 168)

	v.SetDefault(AssessmentDefaultDuration, 1800)
	v.SetDefault(AssessmentMinDuration, 600)
	v.SetDefault(AssessmentDeadlineGrace, 30)

	v.SetDefault(ScoringModeKey, string(ScoringModeAwait))
	v.SetDefault(ScoringStaleAfter, 15*time.Minute)
	v.SetDefault(ScoringSweepInterval, time.Minute)

	v.SetDefault(LLMProviderKey, string(LLMProviderChatCompletions))
	v.SetDefault(LLMModel, "meta/llama-3.1-70b-instruct")
	v.SetDefault(LLMBaseURL, "https://integrate.api.nvidia.com/v1")
	v.SetDefault(LLMTimeout, 90*time.Second)
	v.SetDefault(LLMMaxAttempts, 3)

	v.SetDefault(QueueBackendKey, string(QueueBackendRabbitMQ))
	v.SetDefault(QueueRequests, "scoring-requests")
	v.SetDefault(QueueResults, "scoring-results")

	v.SetDefault(ArchiveBackendKey, string(ArchiveBackendNone))
	v.SetDefault(ArchiveMinioSSLEnabled, true)

	v.SetDefault(RedisHost, "")
	v.SetDefault(CandidatePerMinute, 120)
	v.SetDefault(AuthPerMinute, 20)
	v.SetDefault(RateLimitFailOpen, true)

	err := v.ReadInConfig()
	if err != nil {
		// ignore config file not found to allow pure env config
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	err = v.Unmarshal(&config)
	if err != nil {
		configReady = false
		return nil, err
	}

	valid := validator.Create()
	err = valid.Validate(&config)
	if err != nil {
		configReady = false
		return nil, err
	}

	err = config.validateBackends()
	if err != nil {
		configReady = false
		return nil, err
	}

	configReady = true
	return &config, nil
}

// Checks the settings that only matter for the selected backends
func (c *Config) validateBackends() error {
	var errs []error

	needAzure := c.Queue.Backend == QueueBackendAzure && c.Scoring.Mode == ScoringModeQueue ||
		c.Archive.Backend == ArchiveBackendAzure
	if needAzure && (c.Azure == nil || c.Azure.StorageAccount == nil ||
		c.Azure.StorageAccount.Name == "" || c.Azure.StorageAccount.Key == "") {
		errs = append(errs, errors.New("azure storage account name and key are required"))
	}

	if c.Queue.Backend == QueueBackendRabbitMQ && c.Scoring.Mode == ScoringModeQueue &&
		c.Queue.RabbitMQ.URL == "" {
		errs = append(errs, errors.New("queue.rabbitmq.url is required"))
	}

	if c.Archive.Backend == ArchiveBackendMinio && c.Archive.Minio.BucketName == "" {
		errs = append(errs, errors.New("archive.minio.bucket_name is required"))
	}

	if c.LLM.Provider == LLMProviderChatCompletions && c.LLM.BaseURL == "" {
		errs = append(errs, errors.New("llm.base_url is required for chat_completions"))
	}

	return errors.Join(errs...)
}

// Reports an error when the server cannot issue HR sessions
func (c *Config) RequireAuth() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	return nil
}

func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.Postgres.User),
		url.QueryEscape(c.Postgres.Password),
		c.Postgres.Host, c.Postgres.Port,
		url.QueryEscape(c.Postgres.Database),
		url.QueryEscape(c.Postgres.SSLMode),
	)
}
