package domain

import (
	"errors"
	"fmt"
)

// Stage は失敗が発生したリモート呼び出しの段階です。
type Stage string

const (
	StageAnalysis Stage = "analysis"
	StageImage    Stage = "image"
)

// FailureKind は失敗原因の分類です。画面には出さず、ログとテストで区別するために保持します。
type FailureKind string

const (
	KindTransport        FailureKind = "transport"         // 通信・API エラー
	KindEmptyResponse    FailureKind = "empty_response"    // テキストが空
	KindMalformedPayload FailureKind = "malformed_payload" // JSON 不正・必須項目欠落
	KindNoCandidates     FailureKind = "no_candidates"     // 候補なし
	KindNoImage          FailureKind = "no_image"          // インライン画像なし
	KindBlocked          FailureKind = "blocked"           // 安全フィルター等による中断
)

var (
	ErrAnalysisFailed = errors.New("soulmate analysis failed")
	ErrImageFailed    = errors.New("soulmate image generation failed")
)

// FailureError はリモート呼び出しの失敗を段階と原因付きで表します。
type FailureError struct {
	Stage Stage
	Kind  FailureKind
	Err   error
}

// NewAnalysisError は分析段階の FailureError を生成します。
func NewAnalysisError(kind FailureKind, err error) *FailureError {
	return &FailureError{Stage: StageAnalysis, Kind: kind, Err: err}
}

// NewImageError は画像生成段階の FailureError を生成します。
func NewImageError(kind FailureKind, err error) *FailureError {
	return &FailureError{Stage: StageImage, Kind: kind, Err: err}
}

func (e *FailureError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s failed (%s)", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s failed (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *FailureError) Unwrap() error { return e.Err }

// Is は段階ごとのセンチネル (ErrAnalysisFailed / ErrImageFailed) との比較を可能にします。
func (e *FailureError) Is(target error) bool {
	switch target {
	case ErrAnalysisFailed:
		return e.Stage == StageAnalysis
	case ErrImageFailed:
		return e.Stage == StageImage
	}
	return false
}

// KindOf は err に含まれる FailureError の分類を返します。
func KindOf(err error) (FailureKind, bool) {
	var fe *FailureError
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return "", false
}
