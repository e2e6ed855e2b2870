// Package config loads formcoach server settings from the environment and
// engine tuning from TOML.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/teslashibe/go-formcoach/pkg/fusion"
)

// Defaults.
const (
	DefaultPort     = "8090"
	DefaultBroker   = "tcp://localhost:1883"
	DefaultClientID = "formcoach"
	DefaultWorkout  = "squat"
	DefaultEnvFile  = ".env"
)

// Config holds the server settings.
type Config struct {
	Port string

	// MQTT
	MQTTBroker   string
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string
	TopicPrefix  string

	// Engine
	DefaultWorkout string
	Preset         string // default, responsive or stable
	TuningFile     string // Optional TOML overlay on the preset
	WorkoutDir     string // Optional directory of custom workouts, watched for changes
	RecordDir      string // When set, every routed message is recorded here

	LogLevel string
}

// Load reads settings from the environment, falling back to the given
// dotenv files (default .env) and then to defaults. The process environment
// always wins and is never modified. A missing dotenv file is not an error.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{DefaultEnvFile}
	}

	values := map[string]string{}
	for _, f := range envFiles {
		read, err := godotenv.Read(f)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
		for k, v := range read {
			if _, ok := values[k]; !ok {
				values[k] = v
			}
		}
	}

	get := func(key, def string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		if v := values[key]; v != "" {
			return v
		}
		return def
	}

	return &Config{
		Port:           get("FORMCOACH_PORT", DefaultPort),
		MQTTBroker:     get("MQTT_BROKER", DefaultBroker),
		MQTTClientID:   get("MQTT_CLIENT_ID", DefaultClientID),
		MQTTUsername:   get("MQTT_USERNAME", ""),
		MQTTPassword:   get("MQTT_PASSWORD", ""),
		TopicPrefix:    get("MQTT_TOPIC_PREFIX", ""),
		DefaultWorkout: get("DEFAULT_WORKOUT", DefaultWorkout),
		Preset:         get("FUSION_PRESET", "default"),
		TuningFile:     get("TUNING_FILE", ""),
		WorkoutDir:     get("WORKOUT_DIR", ""),
		RecordDir:      get("RECORD_DIR", ""),
		LogLevel:       get("LOG_LEVEL", "info"),
	}, nil
}

// Fusion resolves the engine configuration: the named preset with the
// tuning file, if any, laid over it. The result is validated so a bad
// tuning file fails at startup.
func (c *Config) Fusion() (fusion.Config, error) {
	base, ok := fusion.Preset(c.Preset)
	if !ok {
		return fusion.Config{}, fmt.Errorf("unknown fusion preset %q", c.Preset)
	}
	cfg := base
	if c.TuningFile != "" {
		var err error
		if cfg, err = LoadTuning(c.TuningFile, base); err != nil {
			return fusion.Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		if c.TuningFile != "" {
			return fusion.Config{}, fmt.Errorf("tuning %s: %w", c.TuningFile, err)
		}
		return fusion.Config{}, err
	}
	return cfg, nil
}

// LoadTuning decodes a TOML file over base. Keys absent from the file keep
// base's values; unknown keys are rejected.
func LoadTuning(path string, base fusion.Config) (fusion.Config, error) {
	cfg := base
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return base, fmt.Errorf("parse tuning %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return base, fmt.Errorf("parse tuning %s: unknown key %s", path, undecoded[0])
	}
	return cfg, nil
}
