package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPrefix      = "DRAWSERVER"
	maxFieldLength = 1024
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Game     GameConfig     `mapstructure:"game"`
	Limits   LimitsConfig   `mapstructure:"limits"`
	Words    WordsConfig    `mapstructure:"words"`
	Database DatabaseConfig `mapstructure:"database"`
	Password PasswordConfig `mapstructure:"password"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	HTTPAddress       string        `mapstructure:"http_address"`
	RPCAddress        string        `mapstructure:"rpc_address"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	SendQueueSize     int           `mapstructure:"send_queue_size"`
}

type GameConfig struct {
	TotalRounds     int           `mapstructure:"total_rounds"`
	RoundSeconds    int           `mapstructure:"round_seconds"`
	MaxPlayers      int           `mapstructure:"max_players"`
	StartDelay      time.Duration `mapstructure:"start_delay"`
	ResultsDelay    time.Duration `mapstructure:"results_delay"`
	DrawerLeftDelay time.Duration `mapstructure:"drawer_left_delay"`
	ResetDelay      time.Duration `mapstructure:"reset_delay"`
}

// LimitsConfig bounds client traffic. Lengths are in characters.
type LimitsConfig struct {
	ChatPerSecond        float64 `mapstructure:"chat_per_second"`
	ChatBurst            int     `mapstructure:"chat_burst"`
	StrokePerSecond      float64 `mapstructure:"stroke_per_second"`
	StrokeBurst          int     `mapstructure:"stroke_burst"`
	MaxChatLength        int     `mapstructure:"max_chat_length"`
	MaxRoomIDLength      int     `mapstructure:"max_room_id_length"`
	MaxRoomNameLength    int     `mapstructure:"max_room_name_length"`
	MaxUserIDLength      int     `mapstructure:"max_user_id_length"`
	MaxDisplayNameLength int     `mapstructure:"max_display_name_length"`
	MaxAvatarRefLength   int     `mapstructure:"max_avatar_ref_length"`
}

type WordsConfig struct {
	// Source is "builtin" or "postgres".
	Source string `mapstructure:"source"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// PasswordConfig holds the argon2id parameters for private room passwords.
// Memory is in KiB.
type PasswordConfig struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.rpc_address", ":9090")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.heartbeat_interval", 30*time.Second)
	v.SetDefault("server.send_queue_size", 256)

	v.SetDefault("game.total_rounds", 3)
	v.SetDefault("game.round_seconds", 60)
	v.SetDefault("game.max_players", 8)
	v.SetDefault("game.start_delay", 3*time.Second)
	v.SetDefault("game.results_delay", 5*time.Second)
	v.SetDefault("game.drawer_left_delay", 3*time.Second)
	v.SetDefault("game.reset_delay", 10*time.Second)

	v.SetDefault("limits.chat_per_second", 1.0)
	v.SetDefault("limits.chat_burst", 5)
	v.SetDefault("limits.stroke_per_second", 120.0)
	v.SetDefault("limits.stroke_burst", 240)
	v.SetDefault("limits.max_chat_length", 200)
	v.SetDefault("limits.max_room_id_length", 64)
	v.SetDefault("limits.max_room_name_length", 64)
	v.SetDefault("limits.max_user_id_length", 64)
	v.SetDefault("limits.max_display_name_length", 32)
	v.SetDefault("limits.max_avatar_ref_length", 512)

	v.SetDefault("words.source", "builtin")

	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.dbname", "drawserver")

	v.SetDefault("password.memory", 16*1024)
	v.SetDefault("password.iterations", 1)
	v.SetDefault("password.parallelism", 2)
	v.SetDefault("password.salt_length", 16)
	v.SetDefault("password.key_length", 32)

	v.SetDefault("log.level", "info")
}

// LoadConfig reads config.yaml from path. A missing file is not an error;
// defaults and DRAWSERVER_* environment variables (optionally from path/.env)
// fill in everything.
func LoadConfig(path string) (config *Config, err error) {
	if err = godotenv.Load(filepath.Join(path, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err = config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate rejects settings the game cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Game.TotalRounds < 1:
		return fmt.Errorf("game.total_rounds must be positive, got %d", c.Game.TotalRounds)
	case c.Game.RoundSeconds < 1:
		return fmt.Errorf("game.round_seconds must be positive, got %d", c.Game.RoundSeconds)
	case c.Game.MaxPlayers < 2 || c.Game.MaxPlayers > 8:
		return fmt.Errorf("game.max_players must be between 2 and 8, got %d", c.Game.MaxPlayers)
	case c.Server.SendQueueSize < 1:
		return fmt.Errorf("server.send_queue_size must be positive, got %d", c.Server.SendQueueSize)
	case c.Server.HeartbeatInterval <= 0:
		return fmt.Errorf("server.heartbeat_interval must be positive")
	case c.Limits.MaxChatLength < 1:
		return fmt.Errorf("limits.max_chat_length must be positive, got %d", c.Limits.MaxChatLength)
	}
	for name, n := range map[string]int{
		"max_room_id_length":      c.Limits.MaxRoomIDLength,
		"max_room_name_length":    c.Limits.MaxRoomNameLength,
		"max_user_id_length":      c.Limits.MaxUserIDLength,
		"max_display_name_length": c.Limits.MaxDisplayNameLength,
		"max_avatar_ref_length":   c.Limits.MaxAvatarRefLength,
	} {
		if n < 1 || n > maxFieldLength {
			return fmt.Errorf("limits.%s must be between 1 and %d, got %d", name, maxFieldLength, n)
		}
	}
	switch c.Words.Source {
	case "builtin", "postgres":
	default:
		return fmt.Errorf("words.source must be builtin or postgres, got %q", c.Words.Source)
	}
	return nil
}
