// Package prompt は天生縁分分析に使うシステム指示とユーザープロンプトを組み立てます。
package prompt

import (
	"fmt"
	"strings"

	"github.com/shouni/saju-soulmate/pkg/domain"
	"google.golang.org/genai"
)

const (
	// FieldAnalysis と FieldImagePrompt はレスポンス JSON の必須フィールド名です。
	FieldAnalysis    = "koreanAnalysis"
	FieldImagePrompt = "imagePrompt"

	// TimeUnknownMarker は出生時刻が不明な場合にプロンプトへ埋め込む文言です。
	TimeUnknownMarker = "출생 시간: 정보 없음 (삼주 분석)"

	// ImagePromptPrefix は画像プロンプトの書き出しとして指示する英文です。
	ImagePromptPrefix = "Photorealistic portrait of a Korean person"
)

// SystemInstruction はテキストモデルに与える固定のシステム指示です。
const SystemInstruction = `
당신은 사주명리학(Saju Myeongrihak)을 기반으로 천생연분의 상세 프로필을 분석해주는 AI 전문가입니다.
사용자는 자신의 천생연분에 대해 **직업, 구체적인 외모(키, 스타일), 성격, 분위기** 등 실질적인 정보를 원합니다.
추상적인 운세 풀이가 아닌, 실제로 소개팅 주선자가 상대방을 상세히 소개하듯이 설명해주세요.

분석 논리 (Internal Logic):
1. 사용자의 사주에서 부족한 오행(용신)을 찾습니다.
2. 그 오행을 직업과 물상으로 변환합니다. (예: 금(Metal) 부족 -> 금융/IT/의료 분야, 세련된 정장 스타일)
3. 외모 묘사 시 한국인의 평균적인 특징을 고려하되, 사주 기운에 맞는 구체적인 키(cm)와 인상을 제시합니다.

작성 가이드라인:
- **명확한 구분**: 성격, 외모, 직업, 특징을 명확한 헤더로 구분하여 작성합니다.
- **구체적 예시**: "성실하다"보다는 "매사 신중하고 돌다리도 두들겨 보는 성격"처럼 묘사합니다.
- **외모 디테일**: 단순 "잘생겼다"가 아닌 "쌍커풀 없는 담백한 눈매에 178cm 정도의 키"와 같이 묘사합니다.

이미지 생성 규칙:
- 반드시 "` + ImagePromptPrefix + `..."으로 시작
- 분석된 '천생연분의 외모'와 '패션 스타일'을 영문 프롬프트에 정확히 반영
`

// Section は koreanAnalysis に含めるよう指示する見出しです。
type Section struct {
	Emoji   string
	Title   string
	Bullets []string
}

// Sections は出力に要求する5つの項目です。順序は表示順と一致します。
var Sections = []Section{
	{"🔮", "나의 부족한 기운", []string{
		"내 사주에서 보완이 필요한 오행이나 기운 간단 요약",
	}},
	{"❤️", "천생연분의 성격", []string{
		"구체적인 성향 (예: 조심성, 대담함, 다정함 등)",
		"장점과 매력 포인트",
	}},
	{"✨", "천생연분의 외모 & 스타일", []string{
		"**예상 키**: (예: 175~180cm, 아담한 편 등)",
		"**인상**: (예: 강아지상, 차가운 도시 남/녀 느낌)",
		"**패션**: (예: 댄디한 수트핏, 편안한 캐주얼, 모던 시크)",
	}},
	{"💼", "추천 직업군", []string{
		"상대방의 기운(오행)과 잘 맞는 현실적인 직업 2~3가지 (예: 공무원, 개발자, 디자이너)",
	}},
	{"🧩", "그 사람의 특징 및 분위기", []string{
		"함께 있을 때 느껴지는 안정감이나 에너지",
		"이 사람을 알아보는 힌트",
	}},
}

// genderLabel は命式上の性別表記です。
func genderLabel(g domain.Gender) string {
	if g == domain.GenderMale {
		return "남성 (건명)"
	}
	return "여성 (곤명)"
}

// soulmateLabel は相手の性別の英語表記です。
func soulmateLabel(g domain.Gender) string {
	if g == domain.GenderMale {
		return "Male"
	}
	return "Female"
}

// TimeLine は出生時刻の行を返します。時刻不明なら TimeUnknownMarker です。
func TimeLine(p domain.UserProfile) string {
	if t, ok := p.Time(); ok {
		return "출생 시간: " + t
	}
	return TimeUnknownMarker
}

// Build は利用者の出生情報からユーザープロンプトを組み立てます。
func Build(p domain.UserProfile) string {
	var b strings.Builder

	b.WriteString("[사용자 정보]\n")
	fmt.Fprintf(&b, "양력: %s\n", strings.TrimSpace(p.BirthDate))
	b.WriteString(TimeLine(p) + "\n")
	fmt.Fprintf(&b, "성별: %s\n\n", genderLabel(p.Gender))

	fmt.Fprintf(&b, "위 사용자의 사주를 분석하여 천생연분(%s)의 상세 프로필을 작성해주세요.\n\n", soulmateLabel(p.SoulmateGender()))

	fmt.Fprintf(&b, "[출력 요구사항 - %s 필드]\n", FieldAnalysis)
	fmt.Fprintf(&b, "다음 %d가지 항목을 이모지와 함께 구분하여 작성하세요:\n\n", len(Sections))
	for i, s := range Sections {
		fmt.Fprintf(&b, "%d. %s **%s**\n", i+1, s.Emoji, s.Title)
		for _, bullet := range s.Bullets {
			fmt.Fprintf(&b, "   - %s\n", bullet)
		}
		b.WriteString("\n")
	}

	b.WriteString("[이미지 프롬프트]\n")
	fmt.Fprintf(&b, "위 '%s' 항목을 바탕으로 고품질 한국인 실사 이미지를 생성할 수 있는 영문 프롬프트 작성.\n", Sections[2].Title)

	return b.String()
}

// ResponseSchema はテキストモデルに要求する2フィールドの JSON スキーマです。
func ResponseSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			FieldAnalysis: {
				Type:        genai.TypeString,
				Description: "직업, 외모, 성격 등이 항목별로 정리된 상세 분석 결과",
			},
			FieldImagePrompt: {
				Type:        genai.TypeString,
				Description: "천생연분 실사 이미지 생성을 위한 상세 영문 프롬프트 (Korean aesthetics)",
			},
		},
		Required: []string{FieldAnalysis, FieldImagePrompt},
	}
}
