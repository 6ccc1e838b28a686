// Package server は単一セッションの Web 画面と JSON API を提供します。
package server

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shouni/saju-soulmate/internal/config"
	"github.com/shouni/saju-soulmate/pkg/session"
)

//go:embed templates/*.html
var templatesFS embed.FS

const (
	msgRateLimited    = "요청이 너무 많습니다. 잠시 후 다시 시도해주세요."
	msgBusy           = "이미 분석이 진행 중입니다."
	msgInvalidRequest = "입력값이 올바르지 않습니다."
	msgNoImage        = "다운로드할 이미지가 없습니다."

	heartbeatInterval = 25 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Options はサーバー生成時の設定です。
type Options struct {
	Listen    string
	RateLimit config.RateLimitConfig
	CORS      config.CORSConfig
	// Gatherer が nil の場合 /metrics は公開しません。
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// Server は Machine を HTTP に公開します。
type Server struct {
	machine *session.Machine
	engine  *gin.Engine
	opts    Options
	// baseCtx はチェーンの実行に使う context で、リクエストの終了では切れません。
	baseCtx context.Context
}

// New はルーティングを設定した Server を返します。
func New(baseCtx context.Context, machine *session.Machine, opts Options) (*Server, error) {
	if machine == nil {
		return nil, errors.New("session machine is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Listen == "" {
		opts.Listen = config.DefaultListen
	}

	tmpl, err := template.New("").Funcs(template.FuncMap{
		// 結果画像は data URI で埋め込む
		"safeURL": func(s string) template.URL { return template.URL(s) },
	}).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestID(), accessLog(opts.Logger))
	if len(opts.CORS.AllowedOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = opts.CORS.AllowedOrigins
		corsConfig.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
		corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, headerRequestID)
		corsConfig.ExposeHeaders = []string{headerRequestID, "Content-Disposition"}
		engine.Use(cors.New(corsConfig))
	}
	engine.SetHTMLTemplate(tmpl)

	s := &Server{
		machine: machine,
		engine:  engine,
		opts:    opts,
		baseCtx: baseCtx,
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.engine.GET("/", s.handleIndex)
	s.engine.GET("/healthz", s.handleHealth)
	if s.opts.Gatherer != nil {
		s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})))
	}

	api := s.engine.Group("/api")
	{
		api.POST("/analyze", submitLimiter(s.opts.RateLimit), s.handleAnalyze)
		api.GET("/state", s.handleState)
		api.GET("/events", s.handleEvents)
		api.POST("/reset", s.handleReset)
		api.GET("/image", s.handleImage)
	}
}

// Handler は http.Handler を返します。テストで使います。
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe は ctx がキャンセルされるまで待ち受け、その後グレースフルに停止します。
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Listen,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.opts.Logger.InfoContext(ctx, "サーバーを起動しました", "listen", s.opts.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.opts.Logger.InfoContext(ctx, "サーバーを停止しています")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
