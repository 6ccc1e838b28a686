package domain

import (
	"fmt"
	"time"
)

// AnalysisResult はテキストモデルから返される構造化ペイロードです。
type AnalysisResult struct {
	KoreanAnalysis string `json:"koreanAnalysis"`
	ImagePrompt    string `json:"imagePrompt"`
}

// Result は画面に表示される最終成果物で、1セッションの間だけ保持されます。
type Result struct {
	Analysis  string    `json:"analysis"`
	Image     string    `json:"image"` // data URI
	ImageData []byte    `json:"-"`
	MimeType  string    `json:"mimeType"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewResult は分析結果と画像から Result を組み立てます。
func NewResult(analysis *AnalysisResult, img *ImageResponse, now time.Time) *Result {
	return &Result{
		Analysis:  analysis.KoreanAnalysis,
		Image:     img.DataURI(),
		ImageData: img.Data,
		MimeType:  img.mimeType(),
		CreatedAt: now,
	}
}

// FileName はダウンロード用のファイル名 (my-soulmate-<unix ms>.png) を返します。
func (r *Result) FileName() string {
	return fmt.Sprintf("my-soulmate-%d%s", r.CreatedAt.UnixMilli(), ExtensionFor(r.MimeType))
}
