package utils

import (
	"errors"
	"fmt"

	"github.com/ThomasAlban/figured-bass/internal/domain"
	"github.com/ThomasAlban/figured-bass/internal/harmonizer"
	"github.com/ThomasAlban/figured-bass/internal/music"
)

// 没有标记的低音按原位三和弦处理
var defaultFigures = []string{"5", "3"}

func ValidateKey(key domain.Key) (music.KeySignature, error) {
	tonic, err := music.ParsePitchClass(key.Tonic)
	if err != nil {
		return music.KeySignature{}, fmt.Errorf("主音 %q 格式错误", key.Tonic)
	}

	tonality, err := music.ParseTonality(key.Tonality)
	if err != nil {
		return music.KeySignature{}, fmt.Errorf("调式 %q 不存在，只支持 major 或 minor", key.Tonality)
	}

	ks, err := music.NewKeySignature(tonic, tonality)
	if err != nil {
		return music.KeySignature{}, fmt.Errorf("不支持的调号 %s %s", tonic, tonality)
	}

	return ks, nil
}

func ValidateBassLine(bassLine []domain.FiguredNote) ([]music.Figure, error) {
	if len(bassLine) == 0 {
		return nil, errors.New("低音声部不能为空")
	}

	figures := make([]music.Figure, len(bassLine))
	for i, note := range bassLine {
		bass, err := music.ParsePitch(note.Bass)
		if err != nil {
			return nil, fmt.Errorf("第 %d 个低音 %q 格式错误", i+1, note.Bass)
		}

		marks := note.Figures
		if len(marks) == 0 {
			marks = defaultFigures
		}

		intervals := make([]music.FigureInterval, len(marks))
		for j, mark := range marks {
			interval, err := music.ParseFigureInterval(mark)
			if err != nil {
				return nil, fmt.Errorf("第 %d 个低音的数字标记 %q 格式错误", i+1, mark)
			}
			intervals[j] = interval
		}

		figures[i] = music.NewFigure(bass, intervals)
	}

	return figures, nil
}

// BuildPositions 校验调号与低音声部，并展开成演化算法所需的输入
func BuildPositions(key domain.Key, bassLine []domain.FiguredNote) ([]harmonizer.BassPosition, error) {
	ks, err := ValidateKey(key)
	if err != nil {
		return nil, err
	}

	figures, err := ValidateBassLine(bassLine)
	if err != nil {
		return nil, err
	}

	positions := harmonizer.PositionsFromFigures(ks, figures)
	for i, pos := range positions {
		// 上方只有三个声部，再加上低音最多只能容纳四个音级
		if len(pos.Permitted) > 4 {
			return nil, fmt.Errorf("第 %d 个低音的数字标记包含 %d 个音级，最多只能有 4 个", i+1, len(pos.Permitted))
		}
	}

	return positions, nil
}

func ValidateOptimizerParameters(p domain.OptimizerParameters) error {
	if err := p.ToHarmonizer().Validate(); err != nil {
		return fmt.Errorf("演化参数不合法: %w", err)
	}
	return nil
}
