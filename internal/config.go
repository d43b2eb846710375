package internal

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	LogLevel string `env:"LOG_LEVEL,default=INFO"`
	Host     string `env:"HOST,default=0.0.0.0"`
	Port     int    `env:"PORT,default=5000"`

	StoreDriver    string `env:"STORE_DRIVER,default=badger"`
	BadgerFilepath string `env:"BADGER_FILEPATH,default=./data/badger"`
	MongoURI       string `env:"MONGO_URI"`
	MongoDatabase  string `env:"MONGO_DATABASE,default=care"`

	JWTSecret   string        `env:"JWT_SECRET,required=true"`
	AuthTimeout time.Duration `env:"AUTH_TIMEOUT,default=5s"`

	ConnectionBufferSize int    `env:"CONNECTION_BUFFER_SIZE,default=64"`
	OverflowPolicy       string `env:"OVERFLOW_POLICY,default=disconnect"`
	MaxContentLength     int    `env:"MAX_CONTENT_LENGTH,default=4000"`
	StrictReceiverType   bool   `env:"STRICT_RECEIVER_TYPE,default=false"`
	AllowedOrigins       string `env:"ALLOWED_ORIGINS,default=*"`
	ReadLimit            int64  `env:"READ_LIMIT,default=65536"`

	GRPCHealthPort  int           `env:"GRPC_HEALTH_PORT,default=0"`
	MetricInterval  time.Duration `env:"METRIC_INTERVAL,default=30s"`
	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=1s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}

const (
	StoreBadger = "badger"
	StoreMongo  = "mongo"
)

// Validate checks what go-env cannot express with tags.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case StoreBadger:
	case StoreMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required when STORE_DRIVER=%s", StoreMongo)
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreBadger, StoreMongo, c.StoreDriver)
	}
	if c.ConnectionBufferSize < 1 {
		return fmt.Errorf("CONNECTION_BUFFER_SIZE must be positive, got %d", c.ConnectionBufferSize)
	}
	if c.MetricInterval <= 0 {
		return fmt.Errorf("METRIC_INTERVAL must be positive, got %s", c.MetricInterval)
	}
	return nil
}

// Origins splits ALLOWED_ORIGINS on commas.
func (c Config) Origins() []string {
	var origins []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
