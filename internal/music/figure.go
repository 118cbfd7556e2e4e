package music

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var ErrInvalidFigure = errors.New("无效的数字低音标记")

// FigureInterval 是数字低音中的一个数字，例如 "6#" 表示低音上方升高的六度
type FigureInterval struct {
	Number     int
	Accidental Accidental
}

func (fi FigureInterval) String() string {
	return strconv.Itoa(fi.Number) + fi.Accidental.String()
}

// ParseFigureInterval 解析 "6"、"6#"、"#6"、"b3" 等写法，单独的 "#" 或 "b" 表示三度
func ParseFigureInterval(s string) (FigureInterval, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return FigureInterval{}, fmt.Errorf("%w: 不能为空", ErrInvalidFigure)
	}

	accidental := Natural
	for _, sign := range []string{"#", "♯", "b", "♭"} {
		if rest, ok := strings.CutPrefix(s, sign); ok {
			accidental, _ = parseAccidental(sign)
			s = rest
			break
		}
		if rest, ok := strings.CutSuffix(s, sign); ok {
			accidental, _ = parseAccidental(sign)
			s = rest
			break
		}
	}

	if s == "" && accidental != Natural {
		return FigureInterval{Number: 3, Accidental: accidental}, nil
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return FigureInterval{}, fmt.Errorf("%w: %q", ErrInvalidFigure, s)
	}
	if n < 2 {
		return FigureInterval{}, fmt.Errorf("%w: 音程必须不小于 2，实际为 %d", ErrInvalidFigure, n)
	}

	return FigureInterval{Number: n, Accidental: accidental}, nil
}

// Figure 是一个低音音符及其上方的数字
type Figure struct {
	Bass      Pitch
	Intervals []FigureInterval
}

func NewFigure(bass Pitch, intervals []FigureInterval) Figure {
	sorted := append([]FigureInterval{}, intervals...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Number < sorted[j].Number
	})
	return Figure{Bass: bass, Intervals: sorted}
}

// PitchClasses 根据调号求出该位置允许出现的音级，低音的音级总在第一个
func (f Figure) PitchClasses(key KeySignature) []PitchClass {
	classes := []PitchClass{f.Bass.Class}
	bassLetter := f.Bass.Class.Letter

	for _, interval := range f.Intervals {
		// 按音名往上数，超过八度的音程折回八度以内
		letter := bassLetter.Add(interval.Number - 1)

		var pc PitchClass
		switch interval.Accidental {
		case Sharp:
			pc = FromSemitone(key.degreeSemitone(letter)+1, Sharp)
		case Flat:
			pc = FromSemitone(key.degreeSemitone(letter)-1, Flat)
		default:
			pc = key.classFor(letter)
		}

		duplicated := false
		for _, c := range classes {
			if c.SameAs(pc) {
				duplicated = true
				break
			}
		}
		if !duplicated {
			classes = append(classes, pc)
		}
	}

	return classes
}
