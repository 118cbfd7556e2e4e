package utils

import (
	"fmt"
	"math/rand"
	"strings"
	"unicode"

	"github.com/ThomasAlban/figured-bass/internal/domain"
	"github.com/ThomasAlban/figured-bass/internal/music"
	"github.com/mozillazg/go-pinyin"
)

var letters = []rune("abcdefghijklmnopqrstuvwxyz")
var digits = "0123456789"

// GenerateSlug 把标题转换成 url 中使用的标识，汉字按拼音转换，其余字符只保留字母和数字
// 返回的 slug 至少包含一个非数字字符
func GenerateSlug(title string) string {
	words := []string{}
	current := strings.Builder{}

	flush := func() {
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}

	for _, r := range title {
		switch {
		case unicode.Is(unicode.Han, r):
			flush()
			words = append(words, pinyin.LazyConvert(string(r), nil)...)
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			current.WriteRune(unicode.ToLower(r))
		default:
			flush()
		}
	}
	flush()

	if len(words) == 0 {
		return "harmonization"
	}
	slug := strings.Join(words, "-")
	// 纯数字的 slug 会被当作任务 id 解析
	if strings.IndexFunc(slug, func(r rune) bool { return !unicode.IsDigit(r) }) < 0 {
		slug = "harmonization-" + slug
	}
	return slug
}

func GenerateRandomID(letterLength int, digitLength int) string {
	random_id := make([]rune, letterLength+digitLength)
	for i := range random_id {
		if i < letterLength {
			random_id[i] = letters[rand.Intn(len(letters))]
		} else {
			random_id[i] = rune(digits[rand.Intn(len(digits))])
		}
	}
	return string(random_id)
}

var commonTitles = []string{
	"练习", "小步舞曲", "众赞歌", "咏叹调", "前奏曲", "终止式", "模进",
}

var commonKeys = []domain.Key{
	{Tonic: "C", Tonality: "major"},
	{Tonic: "G", Tonality: "major"},
	{Tonic: "D", Tonality: "major"},
	{Tonic: "F", Tonality: "major"},
	{Tonic: "Bb", Tonality: "major"},
	{Tonic: "A", Tonality: "minor"},
	{Tonic: "E", Tonality: "minor"},
	{Tonic: "D", Tonality: "minor"},
}

var commonFigures = [][]string{
	{"5", "3"},
	{"5", "3"},
	{"6", "3"},
	{"6", "4"},
}

// GenerateRandomExercise 在调内随机生成一条低音声部，音高落在 [E2, C4] 之间
func GenerateRandomExercise(length int) *domain.HarmonizationJob {
	key := commonKeys[rand.Intn(len(commonKeys))]
	ks, _ := ValidateKey(key) // commonKeys 中的调号都是合法的
	scale := ks.Scale()

	lo := music.NewPitch(music.E, music.Natural, 2)
	hi := music.NewPitch(music.C, music.Natural, 4)

	bassLine := make([]domain.FiguredNote, 0, length)
	for len(bassLine) < length {
		pc := scale[rand.Intn(len(scale))]
		p := music.PitchOf(pc, 2+rand.Intn(2))
		if !p.InRange(lo, hi) {
			continue
		}

		figures := commonFigures[rand.Intn(len(commonFigures))]
		// 以主音开始和结束
		if len(bassLine) == 0 || len(bassLine) == length-1 {
			p = music.PitchOf(scale[0], 3)
			figures = []string{"5", "3"}
		}

		bassLine = append(bassLine, domain.FiguredNote{
			Bass:    p.String(),
			Figures: append([]string{}, figures...),
		})
	}

	title := fmt.Sprintf("%s%s", commonTitles[rand.Intn(len(commonTitles))], GenerateRandomID(0, 3))

	return &domain.HarmonizationJob{
		Title:    title,
		Key:      key,
		BassLine: bassLine,
		Status:   domain.JobStatusPending,
	}
}
