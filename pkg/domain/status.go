package domain

// AppStatus は画面全体の進行状態です。
type AppStatus string

const (
	StatusIdle            AppStatus = "IDLE"
	StatusAnalyzing       AppStatus = "ANALYZING"
	StatusGeneratingImage AppStatus = "GENERATING_IMAGE"
	StatusSuccess         AppStatus = "SUCCESS"
	StatusError           AppStatus = "ERROR"
)

// InFlight はリモート呼び出しの途中であるかを返します。
func (s AppStatus) InFlight() bool {
	return s == StatusAnalyzing || s == StatusGeneratingImage
}

// Terminal は SUCCESS か ERROR のどちらかであるかを返します。
func (s AppStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}
