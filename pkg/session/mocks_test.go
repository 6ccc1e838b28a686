package session

import (
	"context"
	"sync"

	"github.com/shouni/saju-soulmate/pkg/domain"
)

// fakeAnalyzer は adapters.Analyzer のテスト用モックなのだ。
type fakeAnalyzer struct {
	mu      sync.Mutex
	calls   []domain.UserProfile
	result  *domain.AnalysisResult
	err     error
	block   chan struct{} // nil でなければ close されるか ctx が切れるまで待つ
	started chan struct{}
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, profile domain.UserProfile) (*domain.AnalysisResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, profile)
	f.mu.Unlock()

	if f.started != nil {
		close(f.started)
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeAnalyzer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeImages は adapters.ImageGenerator のテスト用モックなのだ。
type fakeImages struct {
	mu    sync.Mutex
	calls []domain.ImageGenerationRequest
	resp  *domain.ImageResponse
	err   error
	block chan struct{}
}

func (f *fakeImages) GeneratePortrait(ctx context.Context, req domain.ImageGenerationRequest) (*domain.ImageResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()

	if f.block != nil {
		<-f.block // ctx を無視して結果を返し、古い世代の破棄を確認するのだ
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *fakeImages) requests() []domain.ImageGenerationRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ImageGenerationRequest(nil), f.calls...)
}
