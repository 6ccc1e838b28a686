package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Gender は利用者の性別です。
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// ErrMissingBirthDate は生年月日が未入力のまま送信されたことを示します。
var ErrMissingBirthDate = errors.New("birth date is required")

// ParseGender はフォーム入力値を Gender に変換します。
func ParseGender(s string) (Gender, error) {
	switch Gender(strings.ToLower(strings.TrimSpace(s))) {
	case GenderMale:
		return GenderMale, nil
	case GenderFemale:
		return GenderFemale, nil
	default:
		return "", fmt.Errorf("unknown gender: %q", s)
	}
}

// Opposite は天生縁分として想定する相手の性別を返します。
func (g Gender) Opposite() Gender {
	if g == GenderMale {
		return GenderFemale
	}
	return GenderMale
}

// UserProfile はフォームで入力される利用者の出生情報です。
type UserProfile struct {
	BirthDate string `json:"birthDate"` // YYYY-MM-DD（陽暦）
	BirthTime string `json:"birthTime"` // HH:MM、KnowsTime が false の場合は無視される
	Gender    Gender `json:"gender"`
	KnowsTime bool   `json:"knowsTime"`
}

// NewUserProfile はフォーム初期化時のデフォルト値を返します。
func NewUserProfile() UserProfile {
	return UserProfile{Gender: GenderFemale}
}

// Validate は送信前の検証を行います。必須なのは生年月日のみです。
func (p UserProfile) Validate() error {
	if strings.TrimSpace(p.BirthDate) == "" {
		return ErrMissingBirthDate
	}
	return nil
}

// Time は出生時刻を返します。時刻不明の場合は ok=false です。
func (p UserProfile) Time() (string, bool) {
	if !p.KnowsTime || strings.TrimSpace(p.BirthTime) == "" {
		return "", false
	}
	return strings.TrimSpace(p.BirthTime), true
}

// SoulmateGender は相手の性別を返します。
func (p UserProfile) SoulmateGender() Gender {
	return p.Gender.Opposite()
}
