package domain

import (
	"encoding/base64"
	"strings"
)

// DefaultImageMimeType は MIME タイプを判定できなかった場合に仮定する形式です。
const DefaultImageMimeType = "image/png"

// ImageGenerationRequest は肖像画1枚の生成要求です。
type ImageGenerationRequest struct {
	Prompt      string
	AspectRatio string
	Seed        *int64 // nil でランダム
}

// ImageResponse は生成された画像データとそのメタデータです。
type ImageResponse struct {
	Data     []byte
	MimeType string
	UsedSeed int64 // 戻り値は情報欠落を防ぐため int64
}

// DataURI はブラウザでそのまま表示できる data URI を返します。
func (r ImageResponse) DataURI() string {
	return "data:" + r.mimeType() + ";base64," + base64.StdEncoding.EncodeToString(r.Data)
}

func (r ImageResponse) mimeType() string {
	if strings.HasPrefix(r.MimeType, "image/") {
		return r.MimeType
	}
	return DefaultImageMimeType
}

// ExtensionFor は画像 MIME タイプに対応する拡張子（ドット付き）を返します。
// 未知の形式は ".png" とみなします。
func ExtensionFor(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}
