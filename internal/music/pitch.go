package music

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidPitch = errors.New("无效的音高")

type Letter int

const (
	C Letter = iota
	D
	E
	F
	G
	A
	B
)

var letterNames = [7]string{"C", "D", "E", "F", "G", "A", "B"}

// 各音名在自然状态下的半音数
var letterSemitones = [7]int{0, 2, 4, 5, 7, 9, 11}

func (l Letter) String() string {
	return letterNames[l]
}

func (l Letter) Semitone() int {
	return letterSemitones[l]
}

// Add 返回往上数 n 个音名后的音名（n 可以为负）
func (l Letter) Add(n int) Letter {
	return Letter(mod(int(l)+n, 7))
}

func ParseLetter(s string) (Letter, error) {
	for i, name := range letterNames {
		if strings.EqualFold(s, name) {
			return Letter(i), nil
		}
	}
	return 0, fmt.Errorf("%w: 未知的音名 %q", ErrInvalidPitch, s)
}

type Accidental int

const (
	Flat    Accidental = -1
	Natural Accidental = 0
	Sharp   Accidental = 1
)

func (a Accidental) String() string {
	switch a {
	case Sharp:
		return "#"
	case Flat:
		return "b"
	default:
		return ""
	}
}

func parseAccidental(s string) (Accidental, bool) {
	switch s {
	case "":
		return Natural, true
	case "#", "♯":
		return Sharp, true
	case "b", "♭":
		return Flat, true
	}
	return Natural, false
}

type PitchClass struct {
	Letter     Letter
	Accidental Accidental
}

// 以半音数为下标的拼写表，naturalSpelling 中 -1 表示该半音没有自然音的拼写
var (
	naturalSpelling = [12]Letter{C, -1, D, -1, E, F, -1, G, -1, A, -1, B}
	sharpSpelling   = [12]PitchClass{
		{C, Natural}, {C, Sharp}, {D, Natural}, {D, Sharp}, {E, Natural}, {F, Natural},
		{F, Sharp}, {G, Natural}, {G, Sharp}, {A, Natural}, {A, Sharp}, {B, Natural},
	}
	flatSpelling = [12]PitchClass{
		{C, Natural}, {D, Flat}, {D, Natural}, {E, Flat}, {E, Natural}, {F, Natural},
		{G, Flat}, {G, Natural}, {A, Flat}, {A, Natural}, {B, Flat}, {B, Natural},
	}
)

// NewPitchClass 创建音级，如果存在不带升降号的等音拼写则优先使用（例如 E# -> F）
func NewPitchClass(letter Letter, accidental Accidental) PitchClass {
	s := mod(letter.Semitone()+int(accidental), 12)
	if natural := naturalSpelling[s]; natural >= 0 {
		return PitchClass{Letter: natural}
	}
	return PitchClass{Letter: letter, Accidental: accidental}
}

// FromSemitone 根据半音数返回音级，黑键按照 preferred 选择升号或降号拼写
func FromSemitone(semitone int, preferred Accidental) PitchClass {
	s := mod(semitone, 12)
	if preferred == Flat {
		return flatSpelling[s]
	}
	return sharpSpelling[s]
}

func (pc PitchClass) Semitone() int {
	return mod(pc.Letter.Semitone()+int(pc.Accidental), 12)
}

// SameAs 判断两个音级是否等音
func (pc PitchClass) SameAs(other PitchClass) bool {
	return pc.Semitone() == other.Semitone()
}

func (pc PitchClass) String() string {
	return pc.Letter.String() + pc.Accidental.String()
}

func ParsePitchClass(s string) (PitchClass, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return PitchClass{}, fmt.Errorf("%w: 音级不能为空", ErrInvalidPitch)
	}
	letter, err := ParseLetter(s[:1])
	if err != nil {
		return PitchClass{}, err
	}
	accidental, ok := parseAccidental(s[1:])
	if !ok {
		return PitchClass{}, fmt.Errorf("%w: 未知的变音记号 %q", ErrInvalidPitch, s[1:])
	}
	return NewPitchClass(letter, accidental), nil
}

// Pitch 为带八度的绝对音高，C4 为中央 C
type Pitch struct {
	Class  PitchClass
	Octave int
}

// NewPitch 创建绝对音高，规范化拼写时保持绝对音高不变（B#3 -> C4，Cb4 -> B3）
func NewPitch(letter Letter, accidental Accidental, octave int) Pitch {
	abs := letter.Semitone() + int(accidental) + 12*octave
	return Pitch{
		Class:  NewPitchClass(letter, accidental),
		Octave: floorDiv(abs, 12),
	}
}

// PitchOf 以已规范化的音级和八度构造音高
func PitchOf(pc PitchClass, octave int) Pitch {
	return Pitch{Class: pc, Octave: octave}
}

func (p Pitch) Semitones() int {
	return p.Class.Semitone() + 12*p.Octave
}

// DistanceTo 返回从 p 到 other 的有符号半音数（other 更高时为正）
func (p Pitch) DistanceTo(other Pitch) int {
	return other.Semitones() - p.Semitones()
}

func (p Pitch) SemitonesBetween(other Pitch) int {
	d := p.DistanceTo(other)
	if d < 0 {
		return -d
	}
	return d
}

// InRange 判断 p 是否位于 [lo, hi] 之间（包含两端）
func (p Pitch) InRange(lo, hi Pitch) bool {
	return lo.DistanceTo(p) >= 0 && p.DistanceTo(hi) >= 0
}

// Equal 按绝对音高比较，等音视为相同
func (p Pitch) Equal(other Pitch) bool {
	return p.Semitones() == other.Semitones()
}

func (p Pitch) String() string {
	return p.Class.String() + strconv.Itoa(p.Octave)
}

func (p Pitch) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Pitch) UnmarshalText(text []byte) error {
	parsed, err := ParsePitch(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParsePitch 解析形如 "F#3"、"Bb2"、"C4" 的音高
func ParsePitch(s string) (Pitch, error) {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, func(r rune) bool {
		return r == '-' || (r >= '0' && r <= '9')
	})
	if i <= 0 {
		return Pitch{}, fmt.Errorf("%w: 缺少八度 %q", ErrInvalidPitch, s)
	}
	letter, err := ParseLetter(s[:1])
	if err != nil {
		return Pitch{}, err
	}
	accidental, ok := parseAccidental(s[1:i])
	if !ok {
		return Pitch{}, fmt.Errorf("%w: 未知的变音记号 %q", ErrInvalidPitch, s[1:i])
	}
	octave, err := strconv.Atoi(s[i:])
	if err != nil {
		return Pitch{}, fmt.Errorf("%w: 无效的八度 %q", ErrInvalidPitch, s[i:])
	}
	return NewPitch(letter, accidental, octave), nil
}

func mod(a, n int) int {
	return ((a % n) + n) % n
}

func floorDiv(a, n int) int {
	q := a / n
	if a%n != 0 && a < 0 {
		q--
	}
	return q
}
