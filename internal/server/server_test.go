package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/saju-soulmate/internal/config"
	"github.com/shouni/saju-soulmate/pkg/domain"
	"github.com/shouni/saju-soulmate/pkg/session"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// stubAnalyzer は block が nil でなければ close されるまで待つのだ。
type stubAnalyzer struct {
	block chan struct{}
	err   error
}

func (s *stubAnalyzer) Analyze(ctx context.Context, _ domain.UserProfile) (*domain.AnalysisResult, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &domain.AnalysisResult{KoreanAnalysis: "운명의 상대는 봄처럼 따뜻한 사람입니다.", ImagePrompt: "portrait"}, nil
}

type stubImages struct{}

func (stubImages) GeneratePortrait(context.Context, domain.ImageGenerationRequest) (*domain.ImageResponse, error) {
	return &domain.ImageResponse{Data: pngBytes, MimeType: "image/png"}, nil
}

type fixture struct {
	srv     *Server
	machine *session.Machine
}

func newFixture(t *testing.T, analyzer *stubAnalyzer, opts Options) fixture {
	t.Helper()
	m, err := session.New(analyzer, stubImages{},
		session.WithClock(func() time.Time { return time.UnixMilli(1700000000123) }))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv, err := New(ctx, m, opts)
	require.NoError(t, err)
	return fixture{srv: srv, machine: m}
}

func (f fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (f fixture) waitFor(t *testing.T, status domain.AppStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		return f.machine.Snapshot().Status == status
	}, 2*time.Second, 5*time.Millisecond)
}

func TestNew_RequiresMachine(t *testing.T) {
	_, err := New(context.Background(), nil, Options{})
	assert.Error(t, err)
}

func TestIndex(t *testing.T) {
	f := newFixture(t, &stubAnalyzer{}, Options{})
	rec := f.do(t, http.MethodGet, "/", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "AI 사주 천생연분")
	assert.Contains(t, rec.Body.String(), `value="female" checked`, "既定の性別は女性")
	assert.NotEmpty(t, rec.Header().Get(headerRequestID))
}

func TestIndex_ClientScript(t *testing.T) {
	f := newFixture(t, &stubAnalyzer{}, Options{})
	body := f.do(t, http.MethodGet, "/", "").Body.String()

	// リセット時は入力内容も破棄する
	assert.Contains(t, body, "form.reset();")
	// 古い世代や巻き戻りのスナップショットは描画しない
	assert.Contains(t, body, "if (!state || isStale(state))")
	assert.Contains(t, body, `order["IDLE"]`)
}

func TestAnalyze_MissingBirthDate(t *testing.T) {
	f := newFixture(t, &stubAnalyzer{}, Options{})
	rec := f.do(t, http.MethodPost, "/api/analyze", `{"birthDate":"  ","gender":"male"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), session.MsgMissingBirthDate)
	assert.Equal(t, domain.StatusIdle, f.machine.Snapshot().Status, "状態は変わらない")
}

func TestAnalyze_InvalidGender(t *testing.T) {
	f := newFixture(t, &stubAnalyzer{}, Options{})
	rec := f.do(t, http.MethodPost, "/api/analyze", `{"birthDate":"1995-03-21","gender":"other"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyze_SuccessAndDownload(t *testing.T) {
	f := newFixture(t, &stubAnalyzer{}, Options{})

	// 成功前はダウンロードできない
	rec := f.do(t, http.MethodGet, "/api/image", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/analyze", `{"birthDate":"1995-03-21","gender":"male","knowsTime":true,"birthTime":"07:30"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var accepted struct {
		Generation uint64 `json:"generation"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	assert.Equal(t, uint64(1), accepted.Generation)

	f.waitFor(t, domain.StatusSuccess)

	rec = f.do(t, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap session.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, domain.StatusSuccess, snap.Status)
	require.NotNil(t, snap.Result)
	assert.True(t, strings.HasPrefix(snap.Result.Image, "data:image/png;base64,"))

	rec = f.do(t, http.MethodGet, "/api/image", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="my-soulmate-1700000000123.png"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, pngBytes, rec.Body.Bytes())

	// 結果画面も data URI をそのまま埋め込む
	rec = f.do(t, http.MethodGet, "/", "")
	assert.Contains(t, rec.Body.String(), `src="data:image/png;base64,`)
}

func TestAnalyze_FormEncoded(t *testing.T) {
	f := newFixture(t, &stubAnalyzer{}, Options{})
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader("birthDate=2000-01-01&gender=female"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	f.waitFor(t, domain.StatusSuccess)
}

func TestAnalyze_BusyAndReset(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	f := newFixture(t, &stubAnalyzer{block: block}, Options{})

	rec := f.do(t, http.MethodPost, "/api/analyze", `{"birthDate":"1995-03-21"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/analyze", `{"birthDate":"1995-03-21"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap session.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, domain.StatusIdle, snap.Status)
	assert.Nil(t, snap.Result)
}

func TestAnalyze_FailureShowsGenericMessage(t *testing.T) {
	f := newFixture(t, &stubAnalyzer{err: errors.New("upstream 500: secret detail")}, Options{})

	rec := f.do(t, http.MethodPost, "/api/analyze", `{"birthDate":"1995-03-21"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	f.waitFor(t, domain.StatusError)

	rec = f.do(t, http.MethodGet, "/api/state", "")
	assert.Contains(t, rec.Body.String(), session.MsgAnalysisFailed)
	assert.NotContains(t, rec.Body.String(), "secret detail", "内部のエラー内容は出さない")
}

func TestAnalyze_RateLimited(t *testing.T) {
	f := newFixture(t, &stubAnalyzer{}, Options{RateLimit: config.RateLimitConfig{PerMinute: 1, Burst: 1}})

	rec := f.do(t, http.MethodPost, "/api/analyze", `{"birthDate":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/analyze", `{"birthDate":""}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestHealthzAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "soulmate_test_total"}))
	f := newFixture(t, &stubAnalyzer{}, Options{Gatherer: reg})

	rec := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "soulmate_test_total")

	withoutMetrics := newFixture(t, &stubAnalyzer{}, Options{})
	rec = withoutMetrics.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORS(t *testing.T) {
	f := newFixture(t, &stubAnalyzer{}, Options{CORS: config.CORSConfig{AllowedOrigins: []string{"http://localhost:5173"}}})

	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestEvents_StreamsTransitions(t *testing.T) {
	f := newFixture(t, &stubAnalyzer{}, Options{})
	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	statuses := make(chan domain.AppStatus, 16)
	go func() {
		defer close(statuses)
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			var snap session.Snapshot
			if json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &snap) == nil {
				statuses <- snap.Status
			}
		}
	}()

	// 接続直後に現在の状態が届く
	require.Equal(t, domain.StatusIdle, <-statuses)

	_, err = f.machine.Start(context.Background(), domain.UserProfile{BirthDate: "1995-03-21", Gender: domain.GenderFemale})
	require.NoError(t, err)

	var got []domain.AppStatus
	for s := range statuses {
		got = append(got, s)
		if s == domain.StatusSuccess {
			break
		}
	}
	assert.Equal(t, []domain.AppStatus{domain.StatusAnalyzing, domain.StatusGeneratingImage, domain.StatusSuccess}, got)
}
