package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shouni/saju-soulmate/pkg/domain"
	"github.com/shouni/saju-soulmate/pkg/session"
)

// analyzeRequest は送信フォームの内容です。JSON とフォームの両方を受け付けます。
type analyzeRequest struct {
	BirthDate string `json:"birthDate" form:"birthDate"`
	BirthTime string `json:"birthTime" form:"birthTime"`
	Gender    string `json:"gender" form:"gender"`
	KnowsTime bool   `json:"knowsTime" form:"knowsTime"`
}

func (r analyzeRequest) profile() (domain.UserProfile, error) {
	p := domain.NewUserProfile()
	p.BirthDate = r.BirthDate
	p.BirthTime = r.BirthTime
	p.KnowsTime = r.KnowsTime
	if r.Gender != "" {
		g, err := domain.ParseGender(r.Gender)
		if err != nil {
			return p, err
		}
		p.Gender = g
	}
	return p, nil
}

type indexView struct {
	Snapshot session.Snapshot
	Defaults domain.UserProfile
}

func (s *Server) handleIndex(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", indexView{
		Snapshot: s.machine.Snapshot(),
		Defaults: domain.NewUserProfile(),
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, s.machine.Snapshot())
}

func (s *Server) handleAnalyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidRequest})
		return
	}
	profile, err := req.profile()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidRequest})
		return
	}

	gen, err := s.machine.Start(s.baseCtx, profile)
	switch {
	case errors.Is(err, domain.ErrMissingBirthDate):
		c.JSON(http.StatusBadRequest, gin.H{"error": session.MsgMissingBirthDate})
		return
	case errors.Is(err, session.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"error": msgBusy, "state": s.machine.Snapshot()})
		return
	case err != nil:
		s.opts.Logger.ErrorContext(c.Request.Context(), "送信の受付に失敗しました", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": session.MsgGenericFailure})
		return
	}

	s.opts.Logger.InfoContext(c.Request.Context(), "送信を受け付けました",
		"generation", gen, "gender", profile.Gender, "knows_time", profile.KnowsTime,
		"request_id", c.GetString(ctxRequestID))
	c.JSON(http.StatusAccepted, gin.H{"generation": gen, "state": s.machine.Snapshot()})
}

func (s *Server) handleReset(c *gin.Context) {
	c.JSON(http.StatusOK, s.machine.Reset())
}

// handleImage は SUCCESS の結果画像を添付ファイルとして返します。
func (s *Server) handleImage(c *gin.Context) {
	result, ok := s.machine.Result()
	if !ok || len(result.ImageData) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": msgNoImage})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.FileName()))
	c.Data(http.StatusOK, result.MimeType, result.ImageData)
}

// handleEvents は状態遷移を SSE で配信します。接続直後に現在の状態を1件送ります。
func (s *Server) handleEvents(c *gin.Context) {
	updates, unsubscribe := s.machine.Subscribe()
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent("state", s.machine.Snapshot())
	c.Writer.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case snap, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent("state", snap)
			return true
		case <-heartbeat.C:
			c.SSEvent("ping", time.Now().Unix())
			return true
		case <-ctx.Done():
			return false
		case <-s.baseCtx.Done():
			return false
		}
	})
}
