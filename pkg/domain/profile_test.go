package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserProfile_Validate(t *testing.T) {
	t.Run("生年月日が空ならエラー", func(t *testing.T) {
		p := NewUserProfile()
		assert.ErrorIs(t, p.Validate(), ErrMissingBirthDate)

		p.BirthDate = "   "
		assert.ErrorIs(t, p.Validate(), ErrMissingBirthDate)
	})

	t.Run("生年月日だけで通る", func(t *testing.T) {
		p := NewUserProfile()
		p.BirthDate = "1990-05-15"
		assert.NoError(t, p.Validate())
	})
}

func TestNewUserProfile_Defaults(t *testing.T) {
	p := NewUserProfile()
	assert.Equal(t, GenderFemale, p.Gender)
	assert.False(t, p.KnowsTime)
	assert.Empty(t, p.BirthDate)
	assert.Empty(t, p.BirthTime)
}

func TestUserProfile_Time(t *testing.T) {
	p := UserProfile{BirthDate: "1990-05-15", BirthTime: "13:30", KnowsTime: false}
	_, ok := p.Time()
	assert.False(t, ok, "KnowsTime=false なら時刻は送らない")

	p.KnowsTime = true
	tm, ok := p.Time()
	assert.True(t, ok)
	assert.Equal(t, "13:30", tm)

	p.BirthTime = ""
	_, ok = p.Time()
	assert.False(t, ok, "時刻が空なら不明扱い")
}

func TestGender(t *testing.T) {
	assert.Equal(t, GenderMale, GenderFemale.Opposite())
	assert.Equal(t, GenderFemale, GenderMale.Opposite())

	g, err := ParseGender(" Male ")
	require.NoError(t, err)
	assert.Equal(t, GenderMale, g)

	_, err = ParseGender("other")
	assert.Error(t, err)
}

func TestFailureError(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("wrapped: %w", NewAnalysisError(KindMalformedPayload, cause))

	assert.ErrorIs(t, err, ErrAnalysisFailed)
	assert.NotErrorIs(t, err, ErrImageFailed)
	assert.ErrorIs(t, err, cause)

	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindMalformedPayload, kind)

	imgErr := NewImageError(KindNoImage, nil)
	assert.ErrorIs(t, imgErr, ErrImageFailed)
	assert.Contains(t, imgErr.Error(), "no_image")
}
