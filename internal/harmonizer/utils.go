package harmonizer

import "github.com/ThomasAlban/figured-bass/internal/music"

func containsClass(classes []music.PitchClass, pc music.PitchClass) bool {
	for _, c := range classes {
		if c.SameAs(pc) {
			return true
		}
	}
	return false
}

func bestOf(realisations []*Realisation) *Realisation {
	if len(realisations) == 0 {
		return nil
	}
	best := realisations[0]
	for _, r := range realisations[1:] {
		if r.Score > best.Score {
			best = r
		}
	}
	return best
}

// PositionsFromFigures 根据调号把数字低音展开成每个位置允许的音级
func PositionsFromFigures(key music.KeySignature, figures []music.Figure) []BassPosition {
	positions := make([]BassPosition, len(figures))
	for i, f := range figures {
		positions[i] = NewBassPosition(f.Bass, f.PitchClasses(key))
	}
	return positions
}
