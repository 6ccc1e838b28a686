package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shouni/saju-soulmate/internal/config"
	"github.com/shouni/saju-soulmate/pkg/adapters"
	"github.com/shouni/saju-soulmate/pkg/session"
)

// app はサブコマンド間で共有する実行時の状態です。
type app struct {
	configFile string
	cfg        *config.Config
	logger     *slog.Logger
}

// persistentFlags は viper のキーとフラグ名の対応です。
var persistentFlags = map[string]string{
	"api_key":         "api-key",
	"text_model":      "text-model",
	"image_model":     "image-model",
	"aspect_ratio":    "aspect-ratio",
	"seed":            "seed",
	"request_timeout": "timeout",
	"log.level":       "log-level",
	"log.format":      "log-format",
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:          "soulmate",
		Short:        "AI 사주 천생연분: 사주팔자로 운명의 상대를 분석하고 그립니다",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "設定ファイル (既定: ./soulmate.yaml または $HOME/soulmate.yaml)")
	pf.String("api-key", "", "Gemini API キー")
	pf.String("text-model", adapters.DefaultTextModel, "分析に使うテキストモデル")
	pf.String("image-model", adapters.DefaultImageModel, "肖像画に使う画像モデル")
	pf.String("aspect-ratio", config.DefaultAspect, "画像のアスペクト比")
	pf.Int64("seed", 0, "画像生成のシード値 (0 はランダム)")
	pf.Duration("timeout", 0, "リモート呼び出し1回あたりのタイムアウト (0 は無制限)")
	pf.String("log-level", "info", "ログレベル (debug|info|warn|error)")
	pf.String("log-format", "text", "ログ形式 (text|json)")

	root.AddCommand(newServeCommand(a), newAnalyzeCommand(a))
	return root
}

// load は設定を読み込み、ロガーを初期化します。
func (a *app) load(cmd *cobra.Command) error {
	v, err := config.NewViper(a.configFile)
	if err != nil {
		return err
	}
	if err := bindFlags(v, cmd, persistentFlags); err != nil {
		return err
	}
	if local, ok := localFlags[cmd.Name()]; ok {
		if err := bindFlags(v, cmd, local); err != nil {
			return err
		}
	}

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	logger, err := config.NewLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	a.cfg = cfg
	a.logger = logger
	return nil
}

// localFlags はサブコマンド固有で viper に渡すフラグです。
var localFlags = map[string]map[string]string{
	"serve": {
		"listen": "listen",
	},
}

// bindFlags はフラグを viper に登録します。指定されたフラグは環境変数や設定ファイルより優先されます。
func bindFlags(v *viper.Viper, cmd *cobra.Command, keys map[string]string) error {
	for key, name := range keys {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

// newMachine は Gemini クライアントから Machine までを組み立てます。
func (a *app) newMachine(ctx context.Context, metrics *session.Metrics) (*session.Machine, error) {
	if err := a.cfg.RequireAPIKey(); err != nil {
		return nil, err
	}
	client, err := adapters.NewGenAIClient(ctx, a.cfg.APIKey, a.cfg.RequestTimeout)
	if err != nil {
		return nil, err
	}

	analyzer, err := adapters.NewGeminiAnalyzer(client.Models, a.cfg.TextModel)
	if err != nil {
		return nil, err
	}
	images, err := adapters.NewGeminiImageGenerator(adapters.NewGeminiImageCore(), client.Models, a.cfg.ImageModel)
	if err != nil {
		return nil, err
	}

	opts := []session.Option{
		session.WithAspectRatio(a.cfg.AspectRatio),
		session.WithSeed(a.cfg.SeedPtr()),
		session.WithCallTimeout(a.cfg.RequestTimeout),
	}
	if metrics != nil {
		opts = append(opts, session.WithMetrics(metrics))
	}
	return session.New(analyzer, images, opts...)
}
