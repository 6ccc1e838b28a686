package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/shouni/saju-soulmate/pkg/domain"
	"github.com/shouni/saju-soulmate/pkg/prompt"
	"google.golang.org/genai"
)

// DefaultTextModel は天生縁分分析に使うモデルです。
const DefaultTextModel = "gemini-3-flash-preview"

// Analyzer は出生情報から天生縁分のプロフィールを得るためのインターフェースです。
type Analyzer interface {
	Analyze(ctx context.Context, profile domain.UserProfile) (*domain.AnalysisResult, error)
}

// GeminiAnalyzer は構造化 JSON 出力を指定してテキストモデルを呼び出すアダプターです。
type GeminiAnalyzer struct {
	aiClient ContentGenerator
	model    string
}

// NewGeminiAnalyzer は依存関係を注入して GeminiAnalyzer を初期化します。
func NewGeminiAnalyzer(aiClient ContentGenerator, modelName string) (*GeminiAnalyzer, error) {
	if aiClient == nil {
		return nil, errors.New("aiClient (ContentGenerator) is required")
	}
	if modelName == "" {
		modelName = DefaultTextModel
	}
	return &GeminiAnalyzer{aiClient: aiClient, model: modelName}, nil
}

// Analyze は出生情報をプロンプトに変換し、koreanAnalysis と imagePrompt を受け取ります。
func (a *GeminiAnalyzer) Analyze(ctx context.Context, profile domain.UserProfile) (*domain.AnalysisResult, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(prompt.SystemInstruction, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    prompt.ResponseSchema(),
	}

	slog.InfoContext(ctx, "Geminiに天生縁分の分析をリクエストします",
		"model", a.model, "knows_time", profile.KnowsTime, "gender", profile.Gender)

	resp, err := a.aiClient.GenerateContent(ctx, a.model, genai.Text(prompt.Build(profile)), config)
	if err != nil {
		return nil, domain.NewAnalysisError(domain.KindTransport, err)
	}
	if resp == nil {
		return nil, domain.NewAnalysisError(domain.KindEmptyResponse, errors.New("分析結果を生成できませんでした"))
	}
	if err := checkFinishReason(resp); err != nil {
		return nil, err
	}

	return decodeAnalysis(ctx, resp.Text())
}

// checkFinishReason は STOP 以外で終了した応答を拒否します。
// 出力が途中で切れた応答は修復せずに malformed_payload とします。
func checkFinishReason(resp *genai.GenerateContentResponse) error {
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return nil
	}
	reason := resp.Candidates[0].FinishReason
	switch reason {
	case genai.FinishReasonUnspecified, genai.FinishReasonStop:
		return nil
	case genai.FinishReasonMaxTokens:
		return domain.NewAnalysisError(domain.KindMalformedPayload,
			fmt.Errorf("分析結果が途中で切れています (FinishReason: %s)", reason))
	default:
		return domain.NewAnalysisError(domain.KindBlocked,
			fmt.Errorf("分析が異常終了しました (FinishReason: %s)", reason))
	}
}

// decodeAnalysis はモデルの出力テキストを AnalysisResult に変換します。
// 直接のデコードに失敗した場合のみ jsonrepair による修復を一度試みます。
func decodeAnalysis(ctx context.Context, text string) (*domain.AnalysisResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domain.NewAnalysisError(domain.KindEmptyResponse, errors.New("分析結果を生成できませんでした"))
	}

	var result domain.AnalysisResult
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		slog.WarnContext(ctx, "分析結果のJSONパースに失敗しました。修復を試みます", "error", err, "length", len(text))
		if !closesObject(text) {
			return nil, domain.NewAnalysisError(domain.KindMalformedPayload, fmt.Errorf("分析結果のJSONが閉じていません: %w", err))
		}

		repaired, repairErr := jsonrepair.JSONRepair(text)
		if repairErr != nil {
			return nil, domain.NewAnalysisError(domain.KindMalformedPayload, fmt.Errorf("JSON修復失敗: %w", errors.Join(err, repairErr)))
		}
		result = domain.AnalysisResult{}
		if err := json.Unmarshal([]byte(repaired), &result); err != nil {
			return nil, domain.NewAnalysisError(domain.KindMalformedPayload, fmt.Errorf("修復後もJSONパースに失敗しました: %w", err))
		}
	}

	result.KoreanAnalysis = strings.TrimSpace(result.KoreanAnalysis)
	result.ImagePrompt = strings.TrimSpace(result.ImagePrompt)

	var missing []string
	if result.KoreanAnalysis == "" {
		missing = append(missing, prompt.FieldAnalysis)
	}
	if result.ImagePrompt == "" {
		missing = append(missing, prompt.FieldImagePrompt)
	}
	if len(missing) > 0 {
		return nil, domain.NewAnalysisError(domain.KindMalformedPayload,
			fmt.Errorf("必須フィールドがありません: %s", strings.Join(missing, ", ")))
	}

	return &result, nil
}

// closesObject はコードフェンスを除いた末尾が '}' かどうかを返します。
// 修復の対象は末尾カンマやフェンス程度の崩れに限り、途中で切れた出力は含めません。
func closesObject(text string) bool {
	text = strings.TrimSpace(text)
	text = strings.TrimSpace(strings.TrimSuffix(text, "```"))
	return strings.HasSuffix(text, "}")
}
