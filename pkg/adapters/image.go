package adapters

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/shouni/saju-soulmate/pkg/domain"
	"google.golang.org/genai"
)

// DefaultImageModel は肖像画生成に使うモデルです。
const DefaultImageModel = "gemini-2.5-flash-image"

// ImageGenerator は天生縁分の肖像画を生成するためのインターフェースです。
type ImageGenerator interface {
	GeneratePortrait(ctx context.Context, req domain.ImageGenerationRequest) (*domain.ImageResponse, error)
}

// GeminiImageGenerator は肖像画生成を管理するアダプター層です。
type GeminiImageGenerator struct {
	imgCore  ImageGeneratorCore // 共通ロジック保持（コンポジション）
	aiClient ContentGenerator   // 通信クライアント
	model    string             // 使用するモデル名
}

// NewGeminiImageGenerator は GeminiImageCore と依存関係を注入して初期化します。
func NewGeminiImageGenerator(core ImageGeneratorCore, aiClient ContentGenerator, modelName string) (*GeminiImageGenerator, error) {
	if core == nil {
		return nil, errors.New("core (ImageGeneratorCore) is required")
	}
	if aiClient == nil {
		return nil, errors.New("aiClient (ContentGenerator) is required")
	}
	if modelName == "" {
		modelName = DefaultImageModel
	}
	return &GeminiImageGenerator{
		imgCore:  core,
		aiClient: aiClient,
		model:    modelName,
	}, nil
}

// GeneratePortrait はドメインのリクエストを Gemini API の形式に変換して実行します。
func (a *GeminiImageGenerator) GeneratePortrait(ctx context.Context, req domain.ImageGenerationRequest) (*domain.ImageResponse, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, domain.NewImageError(domain.KindMalformedPayload, errors.New("画像プロンプトが空です"))
	}

	contents := genai.Text(req.Prompt)

	// 生成オプションの設定
	// domain.Seed (*int64) を SDK 用の *int32 に変換する
	config := &genai.GenerateContentConfig{
		Seed: seedToPtrInt32(req.Seed),
	}
	if req.AspectRatio != "" {
		config.ImageConfig = &genai.ImageConfig{AspectRatio: req.AspectRatio}
	}

	slog.InfoContext(ctx, "Geminiに画像生成をリクエストします", "model", a.model, "aspect_ratio", req.AspectRatio)

	resp, err := a.aiClient.GenerateContent(ctx, a.model, contents, config)
	if err != nil {
		return nil, domain.NewImageError(domain.KindTransport, err)
	}

	// Core を使ってレスポンスを解析し、ドメインモデルへマッピングします。
	out, err := a.imgCore.ParseToResponse(ctx, resp, dereferenceSeed(req.Seed))
	if err != nil {
		return nil, err
	}

	return &domain.ImageResponse{
		Data:     out.Data,
		MimeType: out.MimeType,
		UsedSeed: out.UsedSeed,
	}, nil
}
