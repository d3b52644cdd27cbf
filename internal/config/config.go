package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds all runtime settings.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Graph    GraphConfig    `mapstructure:"graph"`
	Search   SearchConfig   `mapstructure:"search"`
	Decay    DecayConfig    `mapstructure:"decay"`
}

type ServerConfig struct {
	Bind string `mapstructure:"bind"`
	Port int    `mapstructure:"port"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// GraphConfig tunes edge derivation.
type GraphConfig struct {
	SessionWindowSecs  int64   `mapstructure:"session_window_secs"`
	TagOverlapMin      int     `mapstructure:"tag_overlap_min"`
	ScanWindow         int     `mapstructure:"scan_window"`
	MaxDepth           int     `mapstructure:"max_depth"`
	Fanout             int     `mapstructure:"fanout"`
	EmotionMinValence  float64 `mapstructure:"emotion_min_valence"`
	EmotionMaxDistance float64 `mapstructure:"emotion_max_distance"`
	EmotionWindow      int     `mapstructure:"emotion_window"`
}

type SearchConfig struct {
	DefaultLimit int `mapstructure:"default_limit"`
	MaxLimit     int `mapstructure:"max_limit"`
}

type DecayConfig struct {
	RatePerDay    float64 `mapstructure:"rate_per_day"`
	Floor         float64 `mapstructure:"floor"`
	IntervalHours int     `mapstructure:"interval_hours"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 8742,
		},
		Database: DatabaseConfig{
			Path: "", // empty means store.DefaultDBPath()
		},
		Graph: GraphConfig{
			SessionWindowSecs:  300,
			TagOverlapMin:      2,
			ScanWindow:         50,
			MaxDepth:           2,
			Fanout:             5,
			EmotionMinValence:  0.6,
			EmotionMaxDistance: 0.1,
			EmotionWindow:      20,
		},
		Search: SearchConfig{
			DefaultLimit: 20,
			MaxLimit:     200,
		},
		Decay: DecayConfig{
			RatePerDay:    0.005,
			Floor:         0.1,
			IntervalHours: 24,
		},
	}
}

// Load reads configuration from the given TOML file, falling back to
// defaults when the file is absent. An empty path searches the standard
// locations (./mnemo.toml, ~/.mnemo/mnemo.toml).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	def := Default()
	v.SetDefault("server.bind", def.Server.Bind)
	v.SetDefault("server.port", def.Server.Port)
	v.SetDefault("database.path", def.Database.Path)
	v.SetDefault("graph.session_window_secs", def.Graph.SessionWindowSecs)
	v.SetDefault("graph.tag_overlap_min", def.Graph.TagOverlapMin)
	v.SetDefault("graph.scan_window", def.Graph.ScanWindow)
	v.SetDefault("graph.max_depth", def.Graph.MaxDepth)
	v.SetDefault("graph.fanout", def.Graph.Fanout)
	v.SetDefault("graph.emotion_min_valence", def.Graph.EmotionMinValence)
	v.SetDefault("graph.emotion_max_distance", def.Graph.EmotionMaxDistance)
	v.SetDefault("graph.emotion_window", def.Graph.EmotionWindow)
	v.SetDefault("search.default_limit", def.Search.DefaultLimit)
	v.SetDefault("search.max_limit", def.Search.MaxLimit)
	v.SetDefault("decay.rate_per_day", def.Decay.RatePerDay)
	v.SetDefault("decay.floor", def.Decay.Floor)
	v.SetDefault("decay.interval_hours", def.Decay.IntervalHours)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("mnemo")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.mnemo")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
			// No config file found, defaults apply.
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// ListenAddr returns the host:port the server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
