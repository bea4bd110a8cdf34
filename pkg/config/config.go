package config

import (
	"fmt"
	"time"

	"counselmeet-backend/pkg/constants"
	"counselmeet-backend/pkg/env"
	"counselmeet-backend/pkg/logger"
)

// Config holds all configuration for the meeting service
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Cassandra CassandraConfig
	MinIO     MinIOConfig
	JWT       JWTConfig
	Meeting   MeetingConfig
	Encoder   EncoderConfig
	WebSocket WebSocketConfig
	Log       LogConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Environment    string // development, staging, production
	ServiceName    string
	AllowedOrigins []string
}

// DatabaseConfig holds CockroachDB configuration
type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MinConns int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
	Timeout  time.Duration
}

// CassandraConfig holds Cassandra configuration
type CassandraConfig struct {
	Enabled     bool
	Hosts       []string
	Keyspace    string
	Consistency string
	Timeout     time.Duration
}

// MinIOConfig holds MinIO configuration
type MinIOConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience string
}

// MeetingConfig holds room registry tuning
type MeetingConfig struct {
	SweepInterval          time.Duration
	InactivityThreshold    time.Duration
	ChatHistoryLimit       int
	DefaultMaxParticipants int
	RecordingStartTimeout  time.Duration
	RecordingStopTimeout   time.Duration
	DispatchWorkers        int
	DispatchQueueSize      int
	CreateRateLimit        int
}

// EncoderConfig describes how encoder processes are launched.
// Argument templates may reference {input}, {output}, {target} and {room_id}.
type EncoderConfig struct {
	Binary           string
	OutputDir        string
	InputURLTemplate string
	RecordingArgs    []string
	StreamArgs       []string
	DefaultTarget    string
}

// WebSocketConfig holds signaling transport limits
type WebSocketConfig struct {
	MaxConnections int
	SendBuffer     int
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level    string // debug, info, warn, error
	Format   string // json, text
	Output   string // stdout, file
	FilePath string
}

// DefaultRecordingArgs records the room's ingest into an mp4 file
var DefaultRecordingArgs = []string{
	"-hide_banner", "-loglevel", "warning", "-y",
	"-i", "{input}",
	"-c:v", "libx264", "-preset", "veryfast",
	"-c:a", "aac", "-movflags", "+faststart",
	"{output}",
}

// DefaultStreamArgs pushes the room's ingest to an RTMP target
var DefaultStreamArgs = []string{
	"-hide_banner", "-loglevel", "warning",
	"-re", "-i", "{input}",
	"-c", "copy", "-f", "flv",
	"{target}",
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:           env.GetInt("PORT", 8086),
			Environment:    env.GetString("ENV", "development"),
			ServiceName:    env.GetString("SERVICE_NAME", "meeting-service"),
			AllowedOrigins: env.GetStringSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:8080"}),
		},
		Database: DatabaseConfig{
			Enabled:  env.GetBool("DB_ENABLED", true),
			Host:     env.GetString("DB_HOST", "localhost"),
			Port:     env.GetInt("DB_PORT", 26257),
			User:     env.GetString("DB_USER", "root"),
			Password: env.GetStringFromFile("DB_PASSWORD", ""),
			Database: env.GetString("DB_NAME", "counselmeet"),
			SSLMode:  env.GetString("DB_SSL_MODE", "disable"),
			MaxConns: env.GetInt("DB_MAX_CONNS", 25),
			MinConns: env.GetInt("DB_MIN_CONNS", 5),
		},
		Redis: RedisConfig{
			Enabled:  env.GetBool("REDIS_ENABLED", true),
			Host:     env.GetString("REDIS_HOST", "localhost"),
			Port:     env.GetInt("REDIS_PORT", 6379),
			Password: env.GetStringFromFile("REDIS_PASSWORD", ""),
			DB:       env.GetInt("REDIS_DB", 0),
			PoolSize: env.GetInt("REDIS_POOL_SIZE", 10),
			Timeout:  env.GetDuration("REDIS_TIMEOUT", 5*time.Second),
		},
		Cassandra: CassandraConfig{
			Enabled:     env.GetBool("CASSANDRA_ENABLED", false),
			Hosts:       env.GetStringSlice("CASSANDRA_HOSTS", []string{"localhost"}),
			Keyspace:    env.GetString("CASSANDRA_KEYSPACE", "counselmeet"),
			Consistency: env.GetString("CASSANDRA_CONSISTENCY", "QUORUM"),
			Timeout:     env.GetDuration("CASSANDRA_TIMEOUT", 600*time.Millisecond),
		},
		MinIO: MinIOConfig{
			Enabled:   env.GetBool("MINIO_ENABLED", false),
			Endpoint:  env.GetString("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: env.GetStringFromFile("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey: env.GetStringFromFile("MINIO_SECRET_KEY", "minioadmin"),
			UseSSL:    env.GetBool("MINIO_USE_SSL", false),
			Bucket:    env.GetString("MINIO_BUCKET", "meeting-recordings"),
		},
		JWT: JWTConfig{
			Secret:   env.GetStringFromFile("JWT_SECRET", ""),
			Issuer:   env.GetString("JWT_ISSUER", "counselmeet"),
			Audience: env.GetString("JWT_AUDIENCE", "counselmeet-api"),
		},
		Meeting: MeetingConfig{
			SweepInterval:          env.GetDuration("MEETING_SWEEP_INTERVAL", constants.RoomSweepInterval),
			InactivityThreshold:    env.GetDuration("MEETING_INACTIVITY_THRESHOLD", constants.RoomInactivityThreshold),
			ChatHistoryLimit:       env.GetInt("MEETING_CHAT_HISTORY", constants.ChatHistoryLimit),
			DefaultMaxParticipants: env.GetInt("MEETING_DEFAULT_MAX_PARTICIPANTS", constants.DefaultMaxParticipants),
			RecordingStartTimeout:  env.GetDuration("RECORDING_START_TIMEOUT", constants.EncoderStartTimeout),
			RecordingStopTimeout:   env.GetDuration("RECORDING_STOP_TIMEOUT", constants.EncoderStopTimeout),
			DispatchWorkers:        env.GetInt("MEETING_DISPATCH_WORKERS", 2),
			DispatchQueueSize:      env.GetInt("MEETING_DISPATCH_QUEUE", 1024),
			CreateRateLimit:        env.GetInt("MEETING_CREATE_RATE_LIMIT", 20),
		},
		Encoder: EncoderConfig{
			Binary:           env.GetString("ENCODER_BINARY", "ffmpeg"),
			OutputDir:        env.GetString("ENCODER_OUTPUT_DIR", "./recordings"),
			InputURLTemplate: env.GetString("ENCODER_INPUT_URL", "rtmp://127.0.0.1:1935/live/{room_id}"),
			RecordingArgs:    env.GetFields("ENCODER_RECORDING_ARGS", DefaultRecordingArgs),
			StreamArgs:       env.GetFields("ENCODER_STREAM_ARGS", DefaultStreamArgs),
			DefaultTarget:    env.GetString("STREAM_DEFAULT_TARGET", ""),
		},
		WebSocket: WebSocketConfig{
			MaxConnections: env.GetInt("WS_MAX_CONNECTIONS", constants.MaxSignalingConnections),
			SendBuffer:     env.GetInt("WS_SEND_BUFFER", constants.SignalingSendBuffer),
		},
		Log: LogConfig{
			Level:    env.GetString("LOG_LEVEL", "info"),
			Format:   env.GetString("LOG_FORMAT", "json"),
			Output:   env.GetString("LOG_OUTPUT", "stdout"),
			FilePath: env.GetString("LOG_FILE_PATH", "/logs/meeting-service.log"),
		},
	}

	// Validate critical configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Environment == "production" {
		if c.JWT.Secret == "" {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
		}
	}
	if c.Meeting.SweepInterval <= 0 {
		return fmt.Errorf("MEETING_SWEEP_INTERVAL must be positive")
	}
	if c.Meeting.InactivityThreshold <= 0 {
		return fmt.Errorf("MEETING_INACTIVITY_THRESHOLD must be positive")
	}
	if c.Meeting.ChatHistoryLimit <= 0 {
		return fmt.Errorf("MEETING_CHAT_HISTORY must be positive")
	}
	if c.Meeting.DefaultMaxParticipants <= 0 {
		return fmt.Errorf("MEETING_DEFAULT_MAX_PARTICIPANTS must be positive")
	}
	if c.Encoder.Binary == "" {
		return fmt.Errorf("ENCODER_BINARY must not be empty")
	}
	if c.Encoder.OutputDir == "" {
		return fmt.Errorf("ENCODER_OUTPUT_DIR must not be empty")
	}

	if c.JWT.Secret == "" {
		logger.Warn("Using empty JWT secret; authenticated routes will reject every token")
	}

	return nil
}

// DSN returns the CockroachDB connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// Addr returns the host:port of the Redis server
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
