package session

import (
	"errors"

	"github.com/shouni/saju-soulmate/pkg/domain"
)

// 画面に表示する文言。失敗原因の詳細は出さない。
const (
	MsgMissingBirthDate = "생년월일을 입력해주세요."
	MsgAnalysisFailed   = "천생연분 분석 중 오류가 발생했습니다."
	MsgImageFailed      = "이미지 생성 중 오류가 발생했습니다."
	MsgGenericFailure   = "오류가 발생했습니다. 다시 시도해주세요."

	MsgAnalyzing       = "사주팔자(四柱八字)를 분석 중입니다..."
	MsgGeneratingImage = "용신(用神)의 기운을 담아 그리는 중..."
)

// UserMessage はエラーを利用者向けの汎用メッセージに変換します。
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrMissingBirthDate):
		return MsgMissingBirthDate
	case errors.Is(err, domain.ErrAnalysisFailed):
		return MsgAnalysisFailed
	case errors.Is(err, domain.ErrImageFailed):
		return MsgImageFailed
	default:
		return MsgGenericFailure
	}
}

// LoadingMessage は実行中の状態に対応する案内文を返します。
func LoadingMessage(s domain.AppStatus) string {
	switch s {
	case domain.StatusAnalyzing:
		return MsgAnalyzing
	case domain.StatusGeneratingImage:
		return MsgGeneratingImage
	}
	return ""
}
