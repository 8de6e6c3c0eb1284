package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port          int    `env:"PORT" envDefault:"8080"`
	DatabaseURL   string `env:"DATABASE_URL,required"`
	ClassifierURL string `env:"CLASSIFIER_URL,required"`
	LabelDictPath string `env:"LABEL_DICT_PATH" envDefault:"dict_eng_to_nor.csv"`

	RoundsPerGame int           `env:"ROUNDS_PER_GAME" envDefault:"3"`
	Difficulty    string        `env:"DIFFICULTY" envDefault:"easy"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"1h"`
	ReapInterval  time.Duration `env:"REAP_INTERVAL" envDefault:"10m"`

	MaxImageBytes int `env:"MAX_IMAGE_BYTES" envDefault:"4000000"`
	MinImageDim   int `env:"MIN_IMAGE_DIM" envDefault:"256"`

	Production bool `env:"IS_PRODUCTION" envDefault:"false"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
