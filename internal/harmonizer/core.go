package harmonizer

import (
	"fmt"

	"github.com/ThomasAlban/figured-bass/internal/music"
)

// 生成和弦时各声部必须满足的音域
var (
	sopranoRange = [2]music.Pitch{music.NewPitch(music.C, music.Natural, 4), music.NewPitch(music.G, music.Natural, 5)}
	altoRange    = [2]music.Pitch{music.NewPitch(music.G, music.Natural, 3), music.NewPitch(music.C, music.Natural, 5)}
	tenorRange   = [2]music.Pitch{music.NewPitch(music.C, music.Natural, 3), music.NewPitch(music.G, music.Natural, 4)}
)

// 评分时各声部的舒适音域，超出会被扣分
var (
	sopranoPreferred = [2]music.Pitch{music.NewPitch(music.E, music.Natural, 4), music.NewPitch(music.E, music.Natural, 5)}
	altoPreferred    = [2]music.Pitch{music.NewPitch(music.B, music.Natural, 3), music.NewPitch(music.B, music.Natural, 4)}
	tenorPreferred   = [2]music.Pitch{music.NewPitch(music.G, music.Natural, 3), music.NewPitch(music.G, music.Natural, 4)}
)

const (
	doublingPenalty      = -25
	parallelPenalty      = -100
	outOfPreferredRange  = -5
	sopranoStepWeight    = -10
	sopranoStepBonus     = 40
	innerVoiceStepWeight = -5
	innerVoiceStepBonus  = 20
	perfectFifth         = 7
)

// randomNoteAbove 从 permitted 中随机选一个音级，八度取 lower 的八度，若因此低于 lower 则升高一个八度
func (h *Harmonizer) randomNoteAbove(lower music.Pitch, permitted []music.PitchClass) music.Pitch {
	pc := permitted[h.rng.IntN(len(permitted))]
	note := music.PitchOf(pc, lower.Octave)
	if lower.DistanceTo(note) < 0 {
		note.Octave++
	}
	return note
}

// generateChord 用拒绝采样为第 index 个位置生成一个合法的和弦
func (h *Harmonizer) generateChord(index int, pos BassPosition) (Chord, error) {
	if len(pos.Permitted) == 0 || len(pos.Permitted) > 4 {
		return Chord{}, fmt.Errorf("%w: 第 %d 个低音 %s 允许的音级数量为 %d", ErrUnsatisfiableVoicing, index, pos.Bass, len(pos.Permitted))
	}

	for attempt := 0; attempt < h.maxAttempts; attempt++ {
		b := pos.Bass
		t := h.randomNoteAbove(b, pos.Permitted)
		a := h.randomNoteAbove(t, pos.Permitted)
		s := h.randomNoteAbove(a, pos.Permitted)

		// 所有允许的音级都要出现在某个声部中
		covered := true
		for _, pc := range pos.Permitted {
			if !s.Class.SameAs(pc) && !a.Class.SameAs(pc) && !t.Class.SameAs(pc) && !b.Class.SameAs(pc) {
				covered = false
				break
			}
		}
		if !covered {
			continue
		}

		// 所有声部都要在音域内
		if !s.InRange(sopranoRange[0], sopranoRange[1]) ||
			!a.InRange(altoRange[0], altoRange[1]) ||
			!t.InRange(tenorRange[0], tenorRange[1]) {
			continue
		}

		return Chord{S: s, A: a, T: t, B: b}, nil
	}

	return Chord{}, fmt.Errorf("%w: 第 %d 个低音 %s 在 %d 次尝试后仍未找到", ErrUnsatisfiableVoicing, index, pos.Bass, h.maxAttempts)
}

/**
 * 计算和弦序列的得分（越高越好）
 * 1. 相邻声部同音扣分
 * 2. 从第二个和弦开始，按各声部与前一个和弦的音程奖励级进、惩罚大跳
 * 3. 平行八度（同度）和平行五度各扣一次分
 * 4. 各声部超出舒适音域扣分
 */
func Score(chords []Chord) int {
	score := 0
	var prev *Chord

	for i := range chords {
		chord := &chords[i]

		if chord.B.Equal(chord.T) {
			score += doublingPenalty
		}
		if chord.T.Equal(chord.A) {
			score += doublingPenalty
		}
		if chord.A.Equal(chord.S) {
			score += doublingPenalty
		}

		if prev != nil {
			score += sopranoStepWeight*prev.S.SemitonesBetween(chord.S) + sopranoStepBonus
			score += innerVoiceStepWeight*prev.A.SemitonesBetween(chord.A) + innerVoiceStepBonus
			score += innerVoiceStepWeight*prev.T.SemitonesBetween(chord.T) + innerVoiceStepBonus

			if hasParallelOctaves(prev, chord) {
				score += parallelPenalty
			}
			if hasParallelFifths(prev, chord) {
				score += parallelPenalty
			}
		}

		if !chord.S.InRange(sopranoPreferred[0], sopranoPreferred[1]) {
			score += outOfPreferredRange
		}
		if !chord.A.InRange(altoPreferred[0], altoPreferred[1]) {
			score += outOfPreferredRange
		}
		if !chord.T.InRange(tenorPreferred[0], tenorPreferred[1]) {
			score += outOfPreferredRange
		}

		prev = chord
	}

	return score
}

// hasParallelOctaves: 任意两个声部在前后两个和弦中都是同一音级
func hasParallelOctaves(prev, cur *Chord) bool {
	pv, cv := prev.Voices(), cur.Voices()
	for i := 0; i < len(pv); i++ {
		for j := i + 1; j < len(pv); j++ {
			if pv[i].Class.SameAs(pv[j].Class) && cv[i].Class.SameAs(cv[j].Class) {
				return true
			}
		}
	}
	return false
}

// hasParallelFifths: 任意两个声部在前后两个和弦中都是从低声部往上恰好纯五度
func hasParallelFifths(prev, cur *Chord) bool {
	pv, cv := prev.Voices(), cur.Voices()
	for i := 0; i < len(pv); i++ {
		for j := i + 1; j < len(pv); j++ {
			if pv[i].DistanceTo(pv[j]) == perfectFifth && cv[i].DistanceTo(cv[j]) == perfectFifth {
				return true
			}
		}
	}
	return false
}

// newRealisation 为每个位置独立生成和弦并计算得分
func (h *Harmonizer) newRealisation() (*Realisation, error) {
	chords := make([]Chord, len(h.positions))
	for i, pos := range h.positions {
		chord, err := h.generateChord(i, pos)
		if err != nil {
			return nil, err
		}
		chords[i] = chord
	}

	return &Realisation{
		Chords: chords,
		Score:  Score(chords),
	}, nil
}

// mutate 复制 r，随机选出三个不同的位置重新生成和弦，然后重新计算得分
// 序列不足三个位置时全部重新生成
func (h *Harmonizer) mutate(r *Realisation) (*Realisation, error) {
	chords := make([]Chord, len(r.Chords))
	copy(chords, r.Chords)

	n := min(mutatedPositions, len(chords))
	for _, i := range h.rng.Perm(len(chords))[:n] {
		chord, err := h.generateChord(i, h.positions[i])
		if err != nil {
			return nil, err
		}
		chords[i] = chord
	}

	return &Realisation{
		Chords: chords,
		Score:  Score(chords),
	}, nil
}
