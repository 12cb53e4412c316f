package internal

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	LogLevel             string        `env:"LOG_LEVEL,default=INFO" validate:"oneof=DEBUG INFO WARN ERROR"`
	Host                 string        `env:"HOST,default=localhost"`
	Port                 int           `env:"PORT,default=8080" validate:"gt=0,lt=65536"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=32" validate:"gte=0"`
	DeliveryTimeout      time.Duration `env:"DELIVERY_TIMEOUT,default=2s" validate:"gt=0"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=200ms" validate:"gt=0"`
	HeartbeatInterval    time.Duration `env:"HEARTBEAT_INTERVAL,default=30s" validate:"gt=0"`
	AuthSecret           string        `env:"AUTH_SECRET,required=true" validate:"min=16"`
	AuthTokenDuration    time.Duration `env:"AUTH_TOKEN_DURATION,default=24h" validate:"gt=0"`
	MaxTextLength        int           `env:"MAX_TEXT_LENGTH,default=4096" validate:"gt=0"`
	MaxMediaBytes        int           `env:"MAX_MEDIA_BYTES,default=10485760" validate:"gt=0"`
	AllowedMediaTypes    string        `env:"ALLOWED_MEDIA_TYPES,default=image/*"`
}

// Address is the listen address of the gRPC server.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MediaTypes splits ALLOWED_MEDIA_TYPES, a comma separated list.
func (c Config) MediaTypes() []string {
	var types []string
	for _, t := range strings.Split(c.AllowedMediaTypes, ",") {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, t)
		}
	}
	return types
}

// LoadConfig reads an optional .env file, then the environment.
// Variables already set in the environment win over the file.
func LoadConfig(files ...string) (Config, error) {
	_ = godotenv.Load(files...)

	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	config.LogLevel = strings.ToUpper(config.LogLevel)
	if err := validator.New().Struct(config); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}
