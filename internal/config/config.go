// Package config provides configuration management for kakeai
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Output     OutputConfig     `mapstructure:"output"`
	Speech     SpeechConfig     `mapstructure:"speech"`
	Viseme     VisemeConfig     `mapstructure:"viseme"`
	Script     ScriptConfig     `mapstructure:"script"`
	Background BackgroundConfig `mapstructure:"background"`
	Timeline   TimelineConfig   `mapstructure:"timeline"`
	Assets     AssetsConfig     `mapstructure:"assets"`
	Publish    PublishConfig    `mapstructure:"publish"`
}

// OutputConfig configures run output and video geometry
type OutputConfig struct {
	Dir        string `mapstructure:"dir"`
	FPS        int    `mapstructure:"fps"`
	WideWidth  int    `mapstructure:"wide_width"`
	WideHeight int    `mapstructure:"wide_height"`
	TallWidth  int    `mapstructure:"tall_width"`
	TallHeight int    `mapstructure:"tall_height"`
}

// VoiceConfig maps a cast member to a speech-service voice
type VoiceConfig struct {
	UUID    string `mapstructure:"uuid"`
	StyleID int    `mapstructure:"style_id"`
}

// SpeechConfig configures the local speech synthesis service
type SpeechConfig struct {
	BaseURL    string                 `mapstructure:"base_url"`
	SpeedScale float64                `mapstructure:"speed_scale"`
	SampleRate int                    `mapstructure:"sample_rate"`
	Workers    int                    `mapstructure:"workers"`
	Timeout    time.Duration          `mapstructure:"timeout"`
	MaxRetries int                    `mapstructure:"max_retries"`
	Voices     map[string]VoiceConfig `mapstructure:"voices"`
}

// VisemeConfig configures mouth-state extraction
type VisemeConfig struct {
	OpenThreshold float64 `mapstructure:"open_threshold"`
	MinOpenFrames int     `mapstructure:"min_open_frames"`
}

// ScriptConfig configures dialogue script generation
type ScriptConfig struct {
	Model       string  `mapstructure:"model"`
	Temperature float32 `mapstructure:"temperature"`
	MaxRetries  int     `mapstructure:"max_retries"`
}

// BackgroundConfig configures background image generation
type BackgroundConfig struct {
	Model       string `mapstructure:"model"`
	MaxAttempts int    `mapstructure:"max_attempts"`
}

// TimelineConfig configures schedule composition
type TimelineConfig struct {
	TallMaxSeconds     float64 `mapstructure:"tall_max_seconds"`
	BubbleOpacityFloor float64 `mapstructure:"bubble_opacity_floor"`
}

// AssetsConfig locates character art, fonts and decorations
type AssetsConfig struct {
	Dir      string `mapstructure:"dir"`
	FontFile string `mapstructure:"font_file"`
}

// PublishConfig configures upload metadata
type PublishConfig struct {
	Privacy    string   `mapstructure:"privacy"`
	CategoryID string   `mapstructure:"category_id"`
	Tags       []string `mapstructure:"tags"`
	ChannelURL string   `mapstructure:"channel_url"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Output: OutputConfig{
			Dir:        "output",
			FPS:        24,
			WideWidth:  1920,
			WideHeight: 1080,
			TallWidth:  1080,
			TallHeight: 1920,
		},
		Speech: SpeechConfig{
			BaseURL:    "http://localhost:50032",
			SpeedScale: 1.0,
			SampleRate: 44100,
			Workers:    2,
			Timeout:    60 * time.Second,
			MaxRetries: 3,
			Voices: map[string]VoiceConfig{
				"tsuno":  {UUID: "", StyleID: 0},
				"megane": {UUID: "", StyleID: 0},
			},
		},
		Viseme: VisemeConfig{
			OpenThreshold: 0.15,
			MinOpenFrames: 2,
		},
		Script: ScriptConfig{
			Model:       "gemini-1.5-flash",
			Temperature: 0.9,
			MaxRetries:  3,
		},
		Background: BackgroundConfig{
			Model:       "gemini-2.0-flash-exp",
			MaxAttempts: 3,
		},
		Timeline: TimelineConfig{
			TallMaxSeconds:     180,
			BubbleOpacityFloor: 0.35,
		},
		Assets: AssetsConfig{
			Dir:      "assets",
			FontFile: "assets/fonts/NotoSansJP-Bold.ttf",
		},
		Publish: PublishConfig{
			Privacy:    "unlisted",
			CategoryID: "24",
			Tags:       []string{"shorts"},
		},
	}
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	cfg := DefaultConfig()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return cfg, err
	}

	configDir := filepath.Join(homeDir, ".kakeai")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return cfg, err
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	// Environment variable overrides
	viper.SetEnvPrefix("KAKEAI")
	viper.AutomaticEnv()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, err
		}
		// Config file not found, use defaults and create one
		if err := Save(cfg); err != nil {
			return cfg, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Save writes the configuration to file
func Save(cfg *Config) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configDir := filepath.Join(homeDir, ".kakeai")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	viper.Set("output", cfg.Output)
	viper.Set("speech", cfg.Speech)
	viper.Set("viseme", cfg.Viseme)
	viper.Set("script", cfg.Script)
	viper.Set("background", cfg.Background)
	viper.Set("timeline", cfg.Timeline)
	viper.Set("assets", cfg.Assets)
	viper.Set("publish", cfg.Publish)

	configPath := filepath.Join(configDir, "config.yaml")
	return viper.WriteConfigAs(configPath)
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".kakeai"), nil
}
