package harmonizer

import (
	"errors"
	"fmt"
	"math"

	"github.com/ThomasAlban/figured-bass/internal/music"
)

var (
	ErrInvalidParameters    = errors.New("无效的演化参数")
	ErrUnsatisfiableVoicing = errors.New("无法为低音生成合法的和弦")
	ErrEmptyBassLine        = errors.New("低音声部不能为空")
)

const DefaultMaxAttempts = 10000

// BassPosition: 低音声部中的一个位置，低音固定，上方三个声部只能从 Permitted 中取音
type BassPosition struct {
	Bass      music.Pitch
	Permitted []music.PitchClass // 总是包含低音的音级
}

// NewBassPosition 对音级去重，并保证低音的音级在其中
func NewBassPosition(bass music.Pitch, permitted []music.PitchClass) BassPosition {
	classes := []music.PitchClass{bass.Class}
	for _, pc := range permitted {
		if !containsClass(classes, pc) {
			classes = append(classes, pc)
		}
	}
	return BassPosition{Bass: bass, Permitted: classes}
}

// Chord: 某个位置上的四声部和弦
type Chord struct {
	S music.Pitch `json:"soprano"`
	A music.Pitch `json:"alto"`
	T music.Pitch `json:"tenor"`
	B music.Pitch `json:"bass"`
}

// Voices 按照从低到高（低音、次中音、中音、高音）的顺序返回各声部
func (c Chord) Voices() [4]music.Pitch {
	return [4]music.Pitch{c.B, c.T, c.A, c.S}
}

// Realisation: 整条低音的一种配和声方案
type Realisation struct {
	Chords []Chord `json:"chords"`
	Score  int     `json:"score"`
}

// Generation: 一代种群
type Generation struct {
	Realisations []*Realisation
}

// ProgressFunc 在每一代演化完成后被调用
type ProgressFunc func(generation int, bestScore int)

// 演化参数
type Parameters struct {
	TotalGenerations     int     // 总代数
	PopulationSize       int     // 种群大小
	NonMutatedFraction   float64 // 原样保留到下一代的比例
	MutateThriceFraction float64 // 每个产生三个变异后代的比例
	MutateTwiceFraction  float64 // 每个产生两个变异后代的比例
	MaxAttempts          int     // 生成单个和弦时的最大尝试次数，0 表示使用默认值
	Seed                 uint64  // 随机数种子，0 表示随机
}

// counts 返回保留个数、变异三次的个数、变异两次的个数
func (p *Parameters) counts() (nonMutated, thrice, twice int) {
	size := float64(p.PopulationSize)
	return int(size * p.NonMutatedFraction), int(size * p.MutateThriceFraction), int(size * p.MutateTwiceFraction)
}

func (p *Parameters) Validate() error {
	if p.TotalGenerations < 1 {
		return fmt.Errorf("%w: 总代数必须至少为 1", ErrInvalidParameters)
	}
	if p.PopulationSize < 1 {
		return fmt.Errorf("%w: 种群大小必须至少为 1", ErrInvalidParameters)
	}
	if p.MaxAttempts < 0 {
		return fmt.Errorf("%w: 最大尝试次数不能为负数", ErrInvalidParameters)
	}

	fractions := []struct {
		name  string
		value float64
	}{
		{"保留比例", p.NonMutatedFraction},
		{"变异三次比例", p.MutateThriceFraction},
		{"变异两次比例", p.MutateTwiceFraction},
	}
	for _, f := range fractions {
		// NaN 与任何数比较都为 false，需要单独排除
		if math.IsNaN(f.value) || f.value < 0 || f.value >= 1 {
			return fmt.Errorf("%w: %s必须在 [0, 1) 之间，实际为 %v", ErrInvalidParameters, f.name, f.value)
		}
	}

	nonMutated, thrice, twice := p.counts()
	if thrice*3+twice*2+nonMutated >= p.PopulationSize {
		return fmt.Errorf("%w: 保留与变异产生的个体数 (%d) 必须小于种群大小 (%d)", ErrInvalidParameters, thrice*3+twice*2+nonMutated, p.PopulationSize)
	}

	return nil
}
