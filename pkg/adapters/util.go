package adapters

import (
	"context"
	"errors"
	"net/http"
	"time"

	"google.golang.org/genai"
)

// seedToPtrInt32 は domain の *int64 を SDK 用の *int32 に変換するのだ。
func seedToPtrInt32(s *int64) *int32 {
	if s == nil {
		return nil
	}
	// 値が int32 の範囲を超える場合は上位ビットが切り捨てられるが、シードの再現性としては問題ない。
	v := int32(*s)
	return &v
}

// dereferenceSeed は *int64 を安全に int64 に変換するのだ。
// nil の場合はデフォルト値（0）を返すのだよ。
func dereferenceSeed(s *int64) int64 {
	if s == nil {
		return 0
	}
	return *s
}

// NewGenAIClient は Gemini API 用の genai.Client を生成します。
// timeout が 0 の場合は HTTP クライアントの既定値（タイムアウトなし）のままです。
func NewGenAIClient(ctx context.Context, apiKey string, timeout time.Duration) (*genai.Client, error) {
	if apiKey == "" {
		return nil, errors.New("Gemini API キーが設定されていません")
	}
	return genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: timeout},
	})
}
