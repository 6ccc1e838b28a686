package adapters

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shouni/saju-soulmate/pkg/domain"
	"google.golang.org/genai"
)

// ContentGenerator は genai.Models.GenerateContent を抽象化するインターフェースです。
// *genai.Models がそのまま実装を満たします。
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// ImageGeneratorCore は画像レスポンス解析のコアロジックを抽象化するインターフェースです。
type ImageGeneratorCore interface {
	ParseToResponse(ctx context.Context, resp *genai.GenerateContentResponse, seed int64) (*ImageOutput, error)
}

// ImageOutput はプロジェクト固有のドメインに依存しない汎用的なレスポンス構造体です。
type ImageOutput struct {
	Data     []byte
	MimeType string
	UsedSeed int64
}

// GeminiImageCore は画像生成レスポンスの共通解析ロジックを保持するコンポーネントです。
type GeminiImageCore struct{}

// NewGeminiImageCore は GeminiImageCore のインスタンスを生成します。
func NewGeminiImageCore() *GeminiImageCore {
	return &GeminiImageCore{}
}

// ParseToResponse は Gemini のレスポンスを解析して ImageOutput に変換します。
//
// 最初の候補 (Candidate) のパーツを先頭から走査し、MIME タイプが image/* と
// 判定できる最初のインラインデータを採用します。2つ目以降の候補とパーツは無視します。
func (c *GeminiImageCore) ParseToResponse(ctx context.Context, resp *genai.GenerateContentResponse, seed int64) (*ImageOutput, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return nil, domain.NewImageError(domain.KindNoCandidates, errors.New("Geminiからの有効な応答がありませんでした"))
	}

	candidate := resp.Candidates[0]

	if candidate.Content != nil {
		for i, part := range candidate.Content.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			mimeType, ok := detectImageMimeType(part.InlineData)
			if !ok {
				slog.WarnContext(ctx, "画像ではないインラインデータをスキップしました",
					"index", i, "declared_mime_type", part.InlineData.MIMEType)
				continue
			}
			return &ImageOutput{
				Data:     part.InlineData.Data,
				MimeType: mimeType,
				UsedSeed: seed,
			}, nil
		}
	}

	// 安全フィルター等によるブロックの確認
	if candidate.FinishReason != genai.FinishReasonUnspecified && candidate.FinishReason != genai.FinishReasonStop {
		return nil, domain.NewImageError(domain.KindBlocked,
			fmt.Errorf("画像生成が異常終了しました (FinishReason: %s)", candidate.FinishReason))
	}

	return nil, domain.NewImageError(domain.KindNoImage, errors.New("画像データが見つかりませんでした"))
}

// detectImageMimeType はインラインデータの MIME タイプを決定します。
// 宣言値が image/* ならそれを使い、そうでなければ中身から判定します。
// 宣言も判定もできない場合は PNG とみなします。
func detectImageMimeType(blob *genai.Blob) (string, bool) {
	declared := strings.ToLower(strings.TrimSpace(blob.MIMEType))
	if strings.HasPrefix(declared, "image/") {
		return declared, true
	}

	sniffed := http.DetectContentType(blob.Data)
	if strings.HasPrefix(sniffed, "image/") {
		return sniffed, true
	}

	// 宣言が空で判定もできない場合のみ PNG を仮定する
	if declared == "" || declared == "application/octet-stream" {
		return domain.DefaultImageMimeType, true
	}
	return "", false
}
