package adapters

import (
	"context"

	"google.golang.org/genai"
)

// mockImageCore は ImageGeneratorCore インターフェースのテスト用モックなのだ。
type mockImageCore struct {
	parseFunc func(resp *genai.GenerateContentResponse, seed int64) (*ImageOutput, error)
}

func (m *mockImageCore) ParseToResponse(ctx context.Context, resp *genai.GenerateContentResponse, seed int64) (*ImageOutput, error) {
	if m.parseFunc != nil {
		return m.parseFunc(resp, seed)
	}
	return nil, nil
}

// mockAIClient は ContentGenerator のテスト用モックなのだ。
// 呼び出し内容を記録しておき、テスト側で検証できるようにしているのだ。
type mockAIClient struct {
	generateFunc func(model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

	calls      int
	lastModel  string
	lastPrompt string
	lastConfig *genai.GenerateContentConfig
}

func (m *mockAIClient) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	m.calls++
	m.lastModel = model
	m.lastConfig = config
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		m.lastPrompt = contents[0].Parts[0].Text
	}
	if m.generateFunc != nil {
		return m.generateFunc(model, contents, config)
	}
	return &genai.GenerateContentResponse{}, nil
}

// textResponse はテキスト1パーツだけの応答を作るヘルパーなのだ。
func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

// imageResponse はインライン画像を含む応答を作るヘルパーなのだ。
func imageResponse(parts ...*genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Parts: parts},
			FinishReason: genai.FinishReasonStop,
		}},
	}
}
