// Package config reads the service configuration from YNS_* environment
// variables.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// EnvPrefix starts every configuration variable except DEBUG.
const EnvPrefix = "YNS_"

// Config is everything the service needs to start.
type Config struct {
	YoloModelPath    string `mapstructure:"yolo_model_path"`
	SiameseModelPath string `mapstructure:"siamese_model_path"`
	LabelPath        string `mapstructure:"label_path"`
	// ORTLibraryPath overrides where the onnxruntime shared library is
	// loaded from.
	ORTLibraryPath string `mapstructure:"ort_library_path"`

	ImageCachePath string        `mapstructure:"image_cache_path"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	CleanupCron    string        `mapstructure:"cleanup_cron"`

	Confidence float32 `mapstructure:"confidence"`
	IoU        float32 `mapstructure:"iou"`
	Threads    int     `mapstructure:"threads"`

	ListenAddr string `mapstructure:"listen_addr"`

	// MongoURI selects MongoDB for cache metadata. Empty keeps it in memory.
	MongoURI      string `mapstructure:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database"`

	LogFile string `mapstructure:"log_file"`
	Debug   bool   `mapstructure:"debug"`
}

// Default returns the configuration used for anything not set.
func Default() Config {
	return Config{
		ImageCachePath: "./cache",
		CacheTTL:       72 * time.Hour,
		CleanupCron:    "0 * * * *",
		Confidence:     0.3,
		IoU:            0.5,
		ListenAddr:     "127.0.0.1:8080",
		MongoDatabase:  "yns",
	}
}

// Load reads the process environment.
func Load() (Config, error) {
	return FromEnv(os.Environ())
}

// FromEnv decodes KEY=VALUE pairs over Default.
func FromEnv(environ []string) (Config, error) {
	values := map[string]interface{}{}
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		switch {
		case key == "DEBUG":
			values["debug"] = value == "true"
		case strings.HasPrefix(key, EnvPrefix):
			values[strings.ToLower(strings.TrimPrefix(key, EnvPrefix))] = value
		}
	}

	cfg := Default()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return Config{}, errors.Wrap(err, "creating config decoder")
	}
	if err := decoder.Decode(values); err != nil {
		return Config{}, errors.Wrap(err, "decoding environment")
	}
	return cfg, nil
}

// Validate reports every problem with the configuration at once.
func (c Config) Validate() error {
	var err error
	if c.YoloModelPath == "" {
		err = multierr.Append(err, errors.New(EnvPrefix+"YOLO_MODEL_PATH is required"))
	}
	if c.SiameseModelPath == "" {
		err = multierr.Append(err, errors.New(EnvPrefix+"SIAMESE_MODEL_PATH is required"))
	}
	if c.LabelPath == "" {
		err = multierr.Append(err, errors.New(EnvPrefix+"LABEL_PATH is required"))
	}
	if c.Confidence <= 0 || c.Confidence > 1 {
		err = multierr.Append(err, errors.Errorf("confidence %v is outside (0,1]", c.Confidence))
	}
	if c.IoU <= 0 || c.IoU > 1 {
		err = multierr.Append(err, errors.Errorf("iou %v is outside (0,1]", c.IoU))
	}
	if c.CacheTTL <= 0 {
		err = multierr.Append(err, errors.Errorf("cache ttl %s must be positive", c.CacheTTL))
	}
	if c.Threads < 0 {
		err = multierr.Append(err, errors.Errorf("threads %d must not be negative", c.Threads))
	}
	return err
}
