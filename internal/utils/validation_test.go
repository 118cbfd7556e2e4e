package utils

import (
	"testing"

	"github.com/ThomasAlban/figured-bass/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateKey(t *testing.T) {
	ks, err := ValidateKey(domain.Key{Tonic: "G", Tonality: "major"})
	require.NoError(t, err)
	assert.Equal(t, 1, ks.Number)

	ks, err = ValidateKey(domain.Key{Tonic: "Eb", Tonality: "大调"})
	require.NoError(t, err)
	assert.Equal(t, 3, ks.Number)

	for _, key := range []domain.Key{
		{Tonic: "H", Tonality: "major"},
		{Tonic: "C", Tonality: "lydian"},
		{Tonic: "D#", Tonality: "major"},
	} {
		_, err := ValidateKey(key)
		assert.Error(t, err, key)
	}
}

func TestValidateBassLine(t *testing.T) {
	figures, err := ValidateBassLine([]domain.FiguredNote{
		{Bass: "E3", Figures: []string{"5", "3"}},
		{Bass: "F#3", Figures: []string{"6#", "3"}},
		{Bass: "C3"},
	})
	require.NoError(t, err)
	require.Len(t, figures, 3)
	assert.Len(t, figures[2].Intervals, 2, "没有标记时按原位三和弦处理")

	_, err = ValidateBassLine(nil)
	assert.EqualError(t, err, "低音声部不能为空")

	_, err = ValidateBassLine([]domain.FiguredNote{{Bass: "E3"}, {Bass: "X3"}})
	assert.EqualError(t, err, `第 2 个低音 "X3" 格式错误`)

	_, err = ValidateBassLine([]domain.FiguredNote{{Bass: "E3", Figures: []string{"6", "?"}}})
	assert.EqualError(t, err, `第 1 个低音的数字标记 "?" 格式错误`)
}

func TestBuildPositions(t *testing.T) {
	positions, err := BuildPositions(domain.Key{Tonic: "G", Tonality: "major"}, []domain.FiguredNote{
		{Bass: "B2", Figures: []string{"5", "#3"}},
		{Bass: "C3", Figures: []string{"7", "5", "3"}},
	})
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.Len(t, positions[0].Permitted, 3)
	assert.Len(t, positions[1].Permitted, 4)

	_, err = BuildPositions(domain.Key{Tonic: "G", Tonality: "major"}, []domain.FiguredNote{
		{Bass: "C3", Figures: []string{"9", "7", "5", "3"}},
	})
	assert.Error(t, err)
}

func TestValidateOptimizerParameters(t *testing.T) {
	valid := domain.OptimizerParameters{TotalGenerations: 10, PopulationSize: 100, NonMutatedFraction: 0.1, MutateThriceFraction: 0.2, MutateTwiceFraction: 0.1}
	assert.NoError(t, ValidateOptimizerParameters(valid))

	invalid := valid
	invalid.MutateThriceFraction = 0.5
	assert.Error(t, ValidateOptimizerParameters(invalid))
}
