// Package config はフラグ・環境変数・設定ファイル・.env から実行時設定を読み込みます。
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shouni/saju-soulmate/pkg/adapters"
	"github.com/spf13/viper"
)

const (
	EnvPrefix     = "SOULMATE"
	ConfigName    = "soulmate"
	DefaultListen = "127.0.0.1:8080"
	DefaultAspect = "3:4"
	defaultLogFmt = "text"
	defaultLogLvl = "info"
	defaultPerMin = 6
	defaultBurst  = 2
)

// ErrMissingAPIKey は Gemini API キーが見つからないことを示します。
var ErrMissingAPIKey = errors.New("Gemini API キーが設定されていません (SOULMATE_API_KEY / GEMINI_API_KEY / API_KEY)")

// Config はアプリケーション全体の設定です。
type Config struct {
	APIKey         string          `mapstructure:"api_key"`
	TextModel      string          `mapstructure:"text_model"`
	ImageModel     string          `mapstructure:"image_model"`
	AspectRatio    string          `mapstructure:"aspect_ratio"`
	Seed           int64           `mapstructure:"seed"` // 0 はランダム
	RequestTimeout time.Duration   `mapstructure:"request_timeout"`
	Listen         string          `mapstructure:"listen"`
	RateLimit      RateLimitConfig `mapstructure:"rate_limit"`
	Log            LogConfig       `mapstructure:"log"`
	CORS           CORSConfig      `mapstructure:"cors"`
}

// RateLimitConfig は送信 API のレート制限です。PerMinute が 0 以下なら無効です。
type RateLimitConfig struct {
	PerMinute int `mapstructure:"per_minute"`
	Burst     int `mapstructure:"burst"`
}

// LogConfig は slog の出力設定です。
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text | json
}

// CORSConfig は許可するオリジンです。空なら同一オリジンのみです。
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// NewViper は既定値・環境変数・設定ファイルを登録した viper を返します。
// configFile が空の場合はカレントディレクトリと $HOME の soulmate.yaml を探します。
func NewViper(configFile string) (*viper.Viper, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetDefault("api_key", "")
	v.SetDefault("text_model", adapters.DefaultTextModel)
	v.SetDefault("image_model", adapters.DefaultImageModel)
	v.SetDefault("aspect_ratio", DefaultAspect)
	v.SetDefault("seed", 0)
	v.SetDefault("request_timeout", time.Duration(0))
	v.SetDefault("listen", DefaultListen)
	v.SetDefault("rate_limit.per_minute", defaultPerMin)
	v.SetDefault("rate_limit.burst", defaultBurst)
	v.SetDefault("log.level", defaultLogLvl)
	v.SetDefault("log.format", defaultLogFmt)
	v.SetDefault("cors.allowed_origins", []string{})

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("api_key", EnvPrefix+"_API_KEY", "GEMINI_API_KEY", "API_KEY"); err != nil {
		return nil, err
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗しました: %w", err)
		}
		return v, nil
	}

	v.SetConfigName(ConfigName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗しました: %w", err)
		}
	}
	return v, nil
}

// Load は viper の内容を Config に展開します。
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("設定の展開に失敗しました: %w", err)
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.RequestTimeout < 0 {
		return nil, fmt.Errorf("request_timeout は 0 以上である必要があります: %s", cfg.RequestTimeout)
	}
	return &cfg, nil
}

// RequireAPIKey は Gemini 呼び出しに必要な API キーがあるか確認します。
func (c *Config) RequireAPIKey() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// SeedPtr は画像生成用のシード値を返します。0 の場合は nil（ランダム）です。
func (c *Config) SeedPtr() *int64 {
	if c.Seed == 0 {
		return nil
	}
	s := c.Seed
	return &s
}

// NewLogger は設定に応じた slog.Logger を生成します。
func NewLogger(cfg LogConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if cfg.Level == "" {
		cfg.Level = defaultLogLvl
	}
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("不正なログレベルです: %q", cfg.Level)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("不正なログ形式です: %q", cfg.Format)
	}
}

func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf(".env の読み込みに失敗しました: %w", err)
	}
	return nil
}
