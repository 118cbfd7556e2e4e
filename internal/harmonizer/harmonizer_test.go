package harmonizer

import (
	"context"
	"math"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/ThomasAlban/figured-bass/internal/music"
)

func TestParametersValidate(t *testing.T) {
	valid := Parameters{TotalGenerations: 100, PopulationSize: 2000, NonMutatedFraction: 0.1, MutateThriceFraction: 0.2, MutateTwiceFraction: 0.1}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(p *Parameters)
	}{
		{"没有代数", func(p *Parameters) { p.TotalGenerations = 0 }},
		{"种群为空", func(p *Parameters) { p.PopulationSize = 0 }},
		{"比例为负", func(p *Parameters) { p.NonMutatedFraction = -0.1 }},
		{"比例为 1", func(p *Parameters) { p.MutateTwiceFraction = 1 }},
		{"比例为 NaN", func(p *Parameters) { p.NonMutatedFraction = math.NaN() }},
		{"比例为正无穷", func(p *Parameters) { p.MutateThriceFraction = math.Inf(1) }},
		{"最大尝试次数为负", func(p *Parameters) { p.MaxAttempts = -1 }},
		// 200*3 + 200*2 + 400 = 1400 >= 1000
		{"变异个数超出种群", func(p *Parameters) {
			p.PopulationSize = 1000
			p.NonMutatedFraction = 0.4
			p.MutateThriceFraction = 0.2
			p.MutateTwiceFraction = 0.2
		}},
		// 恰好等于种群大小也不合法：0 + 2*2 + 4 = 8
		{"变异个数等于种群", func(p *Parameters) {
			p.PopulationSize = 8
			p.NonMutatedFraction = 0.5
			p.MutateThriceFraction = 0
			p.MutateTwiceFraction = 0.25
		}},
	}

	for _, tt := range tests {
		p := valid
		tt.mutate(&p)
		assert.ErrorIs(t, p.Validate(), ErrInvalidParameters, tt.name)
	}
}

func TestNewRejectsInvalidInput(t *testing.T) {
	p := &Parameters{TotalGenerations: 1, PopulationSize: 10, NonMutatedFraction: 0.5, MutateThriceFraction: 0.5}
	_, err := New(p, []BassPosition{{Bass: music.NewPitch(music.C, music.Natural, 3), Permitted: []music.PitchClass{{Letter: music.C}}}})
	assert.ErrorIs(t, err, ErrInvalidParameters)

	p = &Parameters{TotalGenerations: 1, PopulationSize: 10}
	_, err = New(p, nil)
	assert.ErrorIs(t, err, ErrEmptyBassLine)

	tooMany := BassPosition{
		Bass: music.NewPitch(music.C, music.Natural, 3),
		Permitted: []music.PitchClass{
			{Letter: music.C}, {Letter: music.D}, {Letter: music.E}, {Letter: music.F}, {Letter: music.G},
		},
	}
	_, err = New(p, []BassPosition{tooMany})
	assert.ErrorIs(t, err, ErrUnsatisfiableVoicing)

	// 低音自身的音级必须在允许的音级中
	missingBass := BassPosition{
		Bass:      music.NewPitch(music.C, music.Natural, 3),
		Permitted: []music.PitchClass{{Letter: music.D}, {Letter: music.F}, {Letter: music.A}},
	}
	_, err = New(p, []BassPosition{missingBass})
	assert.ErrorIs(t, err, ErrUnsatisfiableVoicing)
}

type GenerationSuite struct {
	suite.Suite
	positions []BassPosition
	params    *Parameters
	h         *Harmonizer
}

func (s *GenerationSuite) SetupTest() {
	s.positions = exercisePositions(s.T())
	s.params = &Parameters{
		TotalGenerations:     5,
		PopulationSize:       50,
		NonMutatedFraction:   0.1,
		MutateThriceFraction: 0.2,
		MutateTwiceFraction:  0.1,
		Seed:                 7,
	}
	h, err := New(s.params, s.positions)
	s.Require().NoError(err)
	s.h = h
}

func (s *GenerationSuite) TestFirstGenerationIsFresh() {
	gen, err := s.h.nextGeneration(nil)
	s.Require().NoError(err)
	s.Len(gen.Realisations, s.params.PopulationSize)
	for _, r := range gen.Realisations {
		s.Len(r.Chords, len(s.positions))
		s.Equal(Score(r.Chords), r.Score)
	}
}

func (s *GenerationSuite) TestNextGenerationKeepsSizeAndElite() {
	prev, err := s.h.nextGeneration(nil)
	s.Require().NoError(err)

	next, err := s.h.nextGeneration(prev)
	s.Require().NoError(err)
	s.Len(next.Realisations, s.params.PopulationSize, "每一代的个体数必须等于种群大小")

	scores := make([]int, len(prev.Realisations))
	for i, r := range prev.Realisations {
		scores[i] = r.Score
	}
	sort.Ints(scores)

	nonMutated, _, _ := s.params.counts()
	s.Require().Equal(5, nonMutated)

	threshold := scores[s.params.PopulationSize-nonMutated]
	for _, r := range next.Realisations[:nonMutated] {
		s.GreaterOrEqual(r.Score, threshold, "保留下来的精英不能低于上一代的第 N 名")
		s.Contains(prev.Realisations, r, "精英必须原样保留")
	}

	for _, r := range next.Realisations {
		s.Equal(Score(r.Chords), r.Score)
	}
}

func (s *GenerationSuite) TestBestNeverDecreasesWithElitism() {
	best := -1 << 31
	for gen := 0; gen < s.params.TotalGenerations; gen++ {
		next, err := s.h.nextGeneration(s.h.current)
		s.Require().NoError(err)
		s.h.current = next

		score := s.h.Best().Score
		s.GreaterOrEqual(score, best)
		best = score
	}
}

func (s *GenerationSuite) TestNextGenerationWithoutElite() {
	s.params.NonMutatedFraction = 0
	prev, err := s.h.nextGeneration(nil)
	s.Require().NoError(err)

	next, err := s.h.nextGeneration(prev)
	s.Require().NoError(err)
	s.Len(next.Realisations, s.params.PopulationSize)
}

func TestGenerationSuite(t *testing.T) {
	suite.Run(t, new(GenerationSuite))
}

func TestRunReportsEveryGeneration(t *testing.T) {
	positions := exercisePositions(t)
	params := &Parameters{
		TotalGenerations:     8,
		PopulationSize:       40,
		NonMutatedFraction:   0.1,
		MutateThriceFraction: 0.2,
		MutateTwiceFraction:  0.1,
		Seed:                 3,
	}
	h, err := New(params, positions)
	require.NoError(t, err)

	var generations, scores []int
	h.SetProgressFunc(func(generation int, bestScore int) {
		generations = append(generations, generation)
		scores = append(scores, bestScore)
	})

	best, err := h.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, best)

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, generations)
	assert.Equal(t, scores[len(scores)-1], best.Score)
	assert.Equal(t, Score(best.Chords), best.Score)
	assert.True(t, sort.IntsAreSorted(scores), "有精英保留时每代最高分不会下降")

	for i, c := range best.Chords {
		assertValidChord(t, positions[i], c)
	}
}

func TestRunWithSameSeedIsReproducible(t *testing.T) {
	positions := exercisePositions(t)
	run := func() *Realisation {
		h, err := New(&Parameters{TotalGenerations: 4, PopulationSize: 30, NonMutatedFraction: 0.1, MutateThriceFraction: 0.1, MutateTwiceFraction: 0.1, Seed: 99}, positions)
		require.NoError(t, err)
		best, err := h.Run(context.Background())
		require.NoError(t, err)
		return best
	}

	assert.Equal(t, run(), run())
}

func TestRunCancelled(t *testing.T) {
	h := newTestHarmonizer(t, exercisePositions(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	best, err := h.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, best)
}

func TestRunUnsatisfiable(t *testing.T) {
	positions := append(exercisePositions(t), position(t, "C5", "C"))
	h, err := New(&Parameters{TotalGenerations: 2, PopulationSize: 4, MaxAttempts: 100, Seed: 5}, positions)
	require.NoError(t, err)

	_, err = h.Run(context.Background())
	assert.ErrorIs(t, err, ErrUnsatisfiableVoicing)
}

func TestRender(t *testing.T) {
	r := &Realisation{Chords: []Chord{
		chord(t, "G4", "D4", "B3", "G2"),
		chord(t, "F#4", "D4", "A3", "D3"),
	}}

	lines := strings.Split(strings.TrimRight(Render(r), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "G4    F#4   ", lines[0])
	assert.Equal(t, "D4    D4    ", lines[1])
	assert.Equal(t, "B3    A3    ", lines[2])
	assert.Equal(t, "G2    D3    ", lines[3])
}

func TestPositionsFromFigures(t *testing.T) {
	key, err := music.NewKeySignature(music.PitchClass{Letter: music.G}, music.Major)
	require.NoError(t, err)

	figures := []music.Figure{
		music.NewFigure(pitch(t, "E3"), []music.FigureInterval{{Number: 5}, {Number: 3}}),
		music.NewFigure(pitch(t, "B2"), []music.FigureInterval{{Number: 5}, {Number: 3, Accidental: music.Sharp}}),
	}

	positions := PositionsFromFigures(key, figures)
	require.Len(t, positions, 2)
	assert.Equal(t, pitch(t, "B2"), positions[1].Bass)
	assert.Len(t, positions[1].Permitted, 3)
	assert.True(t, containsClass(positions[1].Permitted, music.PitchClass{Letter: music.D, Accidental: music.Sharp}))
}
