package music

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownKey = errors.New("不支持的调号")

type Tonality string

const (
	Major Tonality = "major"
	Minor Tonality = "minor"
)

func ParseTonality(s string) (Tonality, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "major", "大调":
		return Major, nil
	case "minor", "小调":
		return Minor, nil
	}
	return "", fmt.Errorf("%w: 未知的调式 %q", ErrUnknownKey, s)
}

var (
	majorScale = [7]int{0, 2, 4, 5, 7, 9, 11}
	minorScale = [7]int{0, 2, 3, 5, 7, 8, 10}
)

// 五度圈中使用升号 / 降号的主音，下标即调号中升降号的个数
var (
	majorSharpKeys = []PitchClass{{C, Natural}, {G, Natural}, {D, Natural}, {A, Natural}, {E, Natural}, {B, Natural}, {F, Sharp}}
	majorFlatKeys  = []PitchClass{{C, Natural}, {F, Natural}, {B, Flat}, {E, Flat}, {A, Flat}, {D, Flat}, {G, Flat}}
	minorSharpKeys = []PitchClass{{A, Natural}, {E, Natural}, {B, Natural}, {F, Sharp}, {C, Sharp}, {G, Sharp}, {D, Sharp}}
	minorFlatKeys  = []PitchClass{{A, Natural}, {D, Natural}, {G, Natural}, {C, Natural}, {F, Natural}, {B, Flat}, {E, Flat}}
)

type KeySignature struct {
	Tonic      PitchClass
	Tonality   Tonality
	Accidental Accidental // 调号使用升号还是降号
	Number     int        // 调号中升降号的个数
}

func NewKeySignature(tonic PitchClass, tonality Tonality) (KeySignature, error) {
	var sharpKeys, flatKeys []PitchClass
	switch tonality {
	case Major:
		sharpKeys, flatKeys = majorSharpKeys, majorFlatKeys
	case Minor:
		sharpKeys, flatKeys = minorSharpKeys, minorFlatKeys
	default:
		return KeySignature{}, fmt.Errorf("%w: 未知的调式 %q", ErrUnknownKey, tonality)
	}

	// 按拼写查找，升号调优先
	for i, k := range sharpKeys {
		if k == tonic {
			return KeySignature{Tonic: tonic, Tonality: tonality, Accidental: Sharp, Number: i}, nil
		}
	}
	for i, k := range flatKeys {
		if k == tonic {
			return KeySignature{Tonic: tonic, Tonality: tonality, Accidental: Flat, Number: i}, nil
		}
	}

	return KeySignature{}, fmt.Errorf("%w: %s %s", ErrUnknownKey, tonic, tonality)
}

func (k KeySignature) offsets() [7]int {
	if k.Tonality == Minor {
		return minorScale
	}
	return majorScale
}

// degreeSemitone 返回调内以 letter 为音名的那个音的半音数
func (k KeySignature) degreeSemitone(letter Letter) int {
	i := mod(int(letter)-int(k.Tonic.Letter), 7)
	return mod(k.Tonic.Semitone()+k.offsets()[i], 12)
}

// classFor 返回调内以 letter 为音名的音级
func (k KeySignature) classFor(letter Letter) PitchClass {
	s := k.degreeSemitone(letter)
	diff := mod(s-letter.Semitone()+6, 12) - 6
	if diff < -1 || diff > 1 {
		return FromSemitone(s, k.Accidental)
	}
	return NewPitchClass(letter, Accidental(diff))
}

// Scale 返回从主音开始的七个音级，每个音名恰好出现一次
func (k KeySignature) Scale() []PitchClass {
	scale := make([]PitchClass, 7)
	for i := range scale {
		scale[i] = k.classFor(k.Tonic.Letter.Add(i))
	}
	return scale
}

func (k KeySignature) String() string {
	return k.Tonic.String() + " " + string(k.Tonality)
}
