package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`

	// Turn loop knobs.
	TurnTimeout time.Duration `mapstructure:"turn_timeout"`
	GenTimeout  time.Duration `mapstructure:"gen_timeout"`
	LogWindow   int           `mapstructure:"log_window"`
	Suggestions int           `mapstructure:"suggestions"`

	// Collaborator and storage.
	ProfileDB   string `mapstructure:"profile_db"`
	OpenAIModel string `mapstructure:"openai_model"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("turn_timeout", "60s")
	v.SetDefault("gen_timeout", "15s")
	v.SetDefault("log_window", 50)
	v.SetDefault("suggestions", 3)
	v.SetDefault("profile_db", "./parley.db")
	v.SetDefault("openai_model", "")

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Dur("turn_timeout", cfg.TurnTimeout).Msg("effective config")
	return &cfg, nil
}
