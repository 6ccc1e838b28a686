// Package session は送信から結果表示までの状態を一元管理するステートマシンです。
//
// 状態の所有者は Machine ただ1つで、状態を変更できるのは Submit / Reset と、
// 実行中のチェーン内部からの遷移だけです。送信ごとに世代番号とキャンセル可能な
// context を割り当て、リセットで置き換えられた世代の結果は破棄します。
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shouni/saju-soulmate/pkg/adapters"
	"github.com/shouni/saju-soulmate/pkg/domain"
)

// ErrBusy は実行中または結果表示中に新たな送信があったことを示します。
var ErrBusy = errors.New("session is not idle")

// ErrSuperseded はリセットにより結果が破棄されたことを示します。
var ErrSuperseded = errors.New("submission superseded by reset")

const subscriberBuffer = 16

// Snapshot はある時点の状態のコピーです。
type Snapshot struct {
	Status     domain.AppStatus    `json:"status"`
	Generation uint64              `json:"generation"`
	Profile    *domain.UserProfile `json:"profile,omitempty"`
	Result     *domain.Result      `json:"result,omitempty"`
	Error      string              `json:"error,omitempty"`
	Message    string              `json:"message,omitempty"`
}

// Option は Machine の設定を変更します。
type Option func(*Machine)

// WithAspectRatio は画像生成時のアスペクト比を指定します。
func WithAspectRatio(ratio string) Option {
	return func(m *Machine) { m.aspectRatio = ratio }
}

// WithSeed は画像生成時のシード値を固定します。
func WithSeed(seed *int64) Option {
	return func(m *Machine) { m.seed = seed }
}

// WithCallTimeout はリモート呼び出し1回あたりのタイムアウトを設定します。0 は無制限です。
func WithCallTimeout(d time.Duration) Option {
	return func(m *Machine) { m.callTimeout = d }
}

// WithMetrics は Prometheus メトリクスを設定します。
func WithMetrics(metrics *Metrics) Option {
	return func(m *Machine) { m.metrics = metrics }
}

// WithClock は Result の作成時刻に使う時計を差し替えます。
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// Machine は1セッション分の状態コンテナです。
type Machine struct {
	analyzer adapters.Analyzer
	images   adapters.ImageGenerator

	aspectRatio string
	seed        *int64
	callTimeout time.Duration
	metrics     *Metrics
	now         func() time.Time

	mu         sync.Mutex
	status     domain.AppStatus
	generation uint64
	profile    *domain.UserProfile
	result     *domain.Result
	errMsg     string
	cause      error
	cancel     context.CancelFunc
	subs       map[int]chan Snapshot
	nextSub    int
}

// New は依存関係を注入して IDLE 状態の Machine を生成します。
func New(analyzer adapters.Analyzer, images adapters.ImageGenerator, opts ...Option) (*Machine, error) {
	if analyzer == nil {
		return nil, errors.New("analyzer is required")
	}
	if images == nil {
		return nil, errors.New("image generator is required")
	}
	m := &Machine{
		analyzer: analyzer,
		images:   images,
		now:      time.Now,
		status:   domain.StatusIdle,
		subs:     make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Ticket は Submit で受理された1回分の実行権です。
type Ticket struct {
	Generation uint64
	ctx        context.Context
	cancel     context.CancelFunc
	profile    domain.UserProfile
}

// Submit は出生情報を検証し、IDLE から ANALYZING へ遷移させます。
// 生年月日がない場合は通信を行わず ErrMissingBirthDate を返し、状態は変わりません。
func (m *Machine) Submit(ctx context.Context, profile domain.UserProfile) (*Ticket, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := Transition(m.status, EventSubmit)
	if err != nil {
		return nil, ErrBusy
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.generation++
	m.cancel = cancel
	m.profile = &profile
	m.setStatusLocked(next)

	return &Ticket{Generation: m.generation, ctx: runCtx, cancel: cancel, profile: profile}, nil
}

// Run は受理済みの送信について分析と画像生成を順番に実行します。
// 失敗時は型付きのエラーを、リセットで置き換えられた場合は ErrSuperseded を返します。
func (m *Machine) Run(t *Ticket) (Snapshot, error) {
	defer t.cancel()
	ctx := t.ctx

	// Step 1: テキスト分析と画像プロンプトの生成
	analysis, err := m.analyze(ctx, t.profile)
	if err != nil {
		return m.fail(ctx, t.Generation, domain.StageAnalysis, err)
	}
	if _, err := m.apply(t.Generation, EventAnalysisDone, nil); err != nil {
		return m.discard(ctx, t.Generation, err)
	}

	// Step 2: 画像生成
	img, err := m.generateImage(ctx, analysis.ImagePrompt)
	if err != nil {
		return m.fail(ctx, t.Generation, domain.StageImage, err)
	}

	result := domain.NewResult(analysis, img, m.now())
	snap, err := m.apply(t.Generation, EventImageDone, func() { m.result = result })
	if err != nil {
		return m.discard(ctx, t.Generation, err)
	}
	slog.InfoContext(ctx, "天生縁分の生成が完了しました", "generation", t.Generation, "mime_type", result.MimeType, "bytes", len(result.ImageData))
	return snap, nil
}

// Analyze は Submit と Run を同期的に実行します。CLI とテストで使います。
func (m *Machine) Analyze(ctx context.Context, profile domain.UserProfile) (Snapshot, error) {
	t, err := m.Submit(ctx, profile)
	if err != nil {
		return m.Snapshot(), err
	}
	return m.Run(t)
}

// Start は送信を受理し、チェーンをバックグラウンドで実行します。世代番号を返します。
func (m *Machine) Start(ctx context.Context, profile domain.UserProfile) (uint64, error) {
	t, err := m.Submit(ctx, profile)
	if err != nil {
		return 0, err
	}
	go func() {
		_, _ = m.Run(t)
	}()
	return t.Generation, nil
}

// Reset は IDLE に戻し、結果とエラーを破棄します。
// 実行中のチェーンがあればキャンセルし、その世代の結果は以後反映されません。
func (m *Machine) Reset() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status == domain.StatusIdle {
		return m.snapshotLocked()
	}

	next, _ := Transition(m.status, EventReset)
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.generation++
	m.profile = nil
	m.setStatusLocked(next)
	return m.snapshotLocked()
}

// Snapshot は現在の状態のコピーを返します。
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Result は SUCCESS の場合のみ結果を返します。
func (m *Machine) Result() (*domain.Result, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != domain.StatusSuccess || m.result == nil {
		return nil, false
	}
	return m.result, true
}

// Err は ERROR 状態の原因（型付き）を返します。
func (m *Machine) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cause
}

// Subscribe は遷移ごとのスナップショットを受け取るチャネルを返します。
// 受信が遅れている購読者には古いスナップショットを捨てて最新を届けます。
func (m *Machine) Subscribe() (<-chan Snapshot, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	ch := make(chan Snapshot, subscriberBuffer)
	m.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs, id)
			close(ch)
		})
	}
}

func (m *Machine) analyze(ctx context.Context, profile domain.UserProfile) (*domain.AnalysisResult, error) {
	callCtx, cancel := m.callContext(ctx)
	defer cancel()

	started := time.Now()
	analysis, err := m.analyzer.Analyze(callCtx, profile)
	if err == nil && analysis == nil {
		err = domain.NewAnalysisError(domain.KindEmptyResponse, errors.New("analyzer returned no result"))
	}
	if err != nil {
		err = asStageError(domain.StageAnalysis, err)
	}
	m.metrics.observeStage(domain.StageAnalysis, started, err)
	return analysis, err
}

func (m *Machine) generateImage(ctx context.Context, imagePrompt string) (*domain.ImageResponse, error) {
	callCtx, cancel := m.callContext(ctx)
	defer cancel()

	started := time.Now()
	img, err := m.images.GeneratePortrait(callCtx, domain.ImageGenerationRequest{
		Prompt:      imagePrompt,
		AspectRatio: m.aspectRatio,
		Seed:        m.seed,
	})
	if err == nil && (img == nil || len(img.Data) == 0) {
		err = domain.NewImageError(domain.KindNoImage, errors.New("image generator returned no data"))
	}
	if err != nil {
		err = asStageError(domain.StageImage, err)
	}
	m.metrics.observeStage(domain.StageImage, started, err)
	return img, err
}

func (m *Machine) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.callTimeout > 0 {
		return context.WithTimeout(ctx, m.callTimeout)
	}
	return context.WithCancel(ctx)
}

// fail は ERROR へ遷移させます。世代が古ければ破棄します。
func (m *Machine) fail(ctx context.Context, gen uint64, stage domain.Stage, cause error) (Snapshot, error) {
	kind, _ := domain.KindOf(cause)
	snap, err := m.apply(gen, EventFailed, func() {
		m.cause = cause
		m.errMsg = UserMessage(cause)
	})
	if err != nil {
		return m.discard(ctx, gen, err)
	}
	slog.ErrorContext(ctx, "天生縁分の生成に失敗しました",
		"generation", gen, "stage", stage, "kind", kind, "error", cause)
	return snap, cause
}

func (m *Machine) discard(ctx context.Context, gen uint64, err error) (Snapshot, error) {
	m.metrics.observeDiscard()
	slog.InfoContext(ctx, "リセット済みの送信結果を破棄しました", "generation", gen, "reason", err)
	return m.Snapshot(), ErrSuperseded
}

// apply は世代を確認したうえでイベントを適用し、購読者に通知します。
func (m *Machine) apply(gen uint64, ev Event, mutate func()) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.generation {
		return Snapshot{}, ErrSuperseded
	}
	next, err := Transition(m.status, ev)
	if err != nil {
		return Snapshot{}, err
	}
	if mutate != nil {
		mutate()
	}
	m.setStatusLocked(next)
	return m.snapshotLocked(), nil
}

// setStatusLocked は状態を更新し、Result とエラーの不変条件を保ったうえで通知します。
func (m *Machine) setStatusLocked(next domain.AppStatus) {
	m.status = next
	if next != domain.StatusSuccess {
		m.result = nil
	}
	if next != domain.StatusError {
		m.errMsg = ""
		m.cause = nil
	}
	if next.Terminal() {
		m.cancel = nil
	}
	m.metrics.observeTransition(next)
	m.broadcastLocked(m.snapshotLocked())
}

func (m *Machine) snapshotLocked() Snapshot {
	snap := Snapshot{
		Status:     m.status,
		Generation: m.generation,
		Result:     m.result,
		Error:      m.errMsg,
		Message:    LoadingMessage(m.status),
	}
	if m.profile != nil {
		p := *m.profile
		snap.Profile = &p
	}
	return snap
}

func (m *Machine) broadcastLocked(snap Snapshot) {
	for _, ch := range m.subs {
		select {
		case ch <- snap:
		default:
			// 満杯なら最も古いものを捨てて最新を入れる
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// asStageError は FailureError 以外のエラーを段階付きでラップします。
func asStageError(stage domain.Stage, err error) error {
	var fe *domain.FailureError
	if errors.As(err, &fe) {
		return err
	}
	if stage == domain.StageAnalysis {
		return domain.NewAnalysisError(domain.KindTransport, err)
	}
	return domain.NewImageError(domain.KindTransport, err)
}
