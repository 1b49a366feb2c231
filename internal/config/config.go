package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// Mode is the gin mode of the status server: release or debug.
	Mode        string   `mapstructure:"mode"`
	ServerURL   string   `mapstructure:"server_url"`
	Room        string   `mapstructure:"room"`
	DisplayName string   `mapstructure:"display_name"`
	ICEServers  []string `mapstructure:"ice_servers"`

	PushTimeout     time.Duration `mapstructure:"push_timeout"`
	HeartbeatPeriod time.Duration `mapstructure:"heartbeat_period"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ReadLimit       int64         `mapstructure:"read_limit"`
	SendBuffer      int           `mapstructure:"send_buffer"`

	StatusAddr string `mapstructure:"status_addr"`
	LogLevel   string `mapstructure:"log_level"`

	VideoFile string `mapstructure:"video_file"`
	AudioFile string `mapstructure:"audio_file"`
	// ScreenFile enables a second, screensharing session playing this file.
	ScreenFile string `mapstructure:"screen_file"`
	LoopMedia  bool   `mapstructure:"loop_media"`
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
	v.SetEnvPrefix("VIDEOROOM")
	v.AutomaticEnv()

	v.SetDefault("mode", "release")
	v.SetDefault("server_url", "http://localhost:4000")
	v.SetDefault("display_name", "go-client")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("push_timeout", "10s")
	v.SetDefault("heartbeat_period", "30s")
	v.SetDefault("write_timeout", "5s")
	v.SetDefault("read_limit", 1<<20)
	v.SetDefault("send_buffer", 64)
	v.SetDefault("status_addr", ":8081")
	v.SetDefault("log_level", "info")
	v.SetDefault("loop_media", true)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings a join needs.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server_url is required")
	}
	if c.Room == "" {
		return fmt.Errorf("room is required")
	}
	if c.PushTimeout <= 0 {
		return fmt.Errorf("push_timeout must be positive, got %s", c.PushTimeout)
	}
	return nil
}
