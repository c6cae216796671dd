package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	BotToken        string
	DatabaseURL     string
	Redis           RedisConfig
	ModeratorChatID int64
	// Смещение "бото-локального" времени от UTC, в часах.
	TimezoneOffset int
	ConfirmDelay   time.Duration
	SchedPollEvery time.Duration
	DialogTTL      time.Duration
	LogLevel       string
	MigrationsDir  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Load читает настройки из окружения (или .env рядом с бинарём).
func Load() (Config, error) {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig() // .env опционален

	viper.SetDefault("CONFIRM_DELAY", "1h")
	viper.SetDefault("SCHED_POLL_INTERVAL", "15s")
	viper.SetDefault("DIALOG_TTL", "24h")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("MIGRATIONS_DIR", "./migrations")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")

	cfg := Config{
		BotToken:        viper.GetString("BOT_TOKEN"),
		DatabaseURL:     viper.GetString("DATABASE_URL"),
		ModeratorChatID: viper.GetInt64("ADMIN_TELEGRAM_ID"),
		TimezoneOffset:  viper.GetInt("TIMEZONE_OFFSET"),
		ConfirmDelay:    viper.GetDuration("CONFIRM_DELAY"),
		SchedPollEvery:  viper.GetDuration("SCHED_POLL_INTERVAL"),
		DialogTTL:       viper.GetDuration("DIALOG_TTL"),
		LogLevel:        viper.GetString("LOG_LEVEL"),
		MigrationsDir:   viper.GetString("MIGRATIONS_DIR"),
		Redis: RedisConfig{
			Addr:     viper.GetString("REDIS_ADDR"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.BotToken == "" {
		return fmt.Errorf("BOT_TOKEN is required")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.ModeratorChatID == 0 {
		return fmt.Errorf("ADMIN_TELEGRAM_ID is required")
	}
	if c.ConfirmDelay <= 0 {
		return fmt.Errorf("CONFIRM_DELAY must be positive")
	}
	if c.SchedPollEvery <= 0 {
		return fmt.Errorf("SCHED_POLL_INTERVAL must be positive")
	}
	return nil
}
