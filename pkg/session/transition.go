package session

import (
	"errors"
	"fmt"

	"github.com/shouni/saju-soulmate/pkg/domain"
)

// Event は状態遷移を引き起こす入力です。
type Event string

const (
	EventSubmit       Event = "submit"
	EventAnalysisDone Event = "analysis_done"
	EventImageDone    Event = "image_done"
	EventFailed       Event = "failed"
	EventReset        Event = "reset"
)

// ErrIllegalTransition は現在の状態では受け付けられないイベントを示します。
var ErrIllegalTransition = errors.New("illegal state transition")

var transitions = map[domain.AppStatus]map[Event]domain.AppStatus{
	domain.StatusIdle: {
		EventSubmit: domain.StatusAnalyzing,
		EventReset:  domain.StatusIdle,
	},
	domain.StatusAnalyzing: {
		EventAnalysisDone: domain.StatusGeneratingImage,
		EventFailed:       domain.StatusError,
		EventReset:        domain.StatusIdle, // 実行中のリセットはキャンセル扱い
	},
	domain.StatusGeneratingImage: {
		EventImageDone: domain.StatusSuccess,
		EventFailed:    domain.StatusError,
		EventReset:     domain.StatusIdle,
	},
	domain.StatusSuccess: {
		EventReset: domain.StatusIdle,
	},
	domain.StatusError: {
		EventReset: domain.StatusIdle,
	},
}

// Transition は状態とイベントから次の状態を返す純粋関数です。
func Transition(from domain.AppStatus, ev Event) (domain.AppStatus, error) {
	next, ok := transitions[from][ev]
	if !ok {
		return from, fmt.Errorf("%w: %s -(%s)->", ErrIllegalTransition, from, ev)
	}
	return next, nil
}
