package harmonizer

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
)

const mutatedPositions = 3

type Harmonizer struct {
	parameters  *Parameters
	positions   []BassPosition
	maxAttempts int
	rng         *rand.Rand
	progress    ProgressFunc

	current *Generation // 只保留最新的一代
}

func New(parameters *Parameters, positions []BassPosition) (*Harmonizer, error) {
	if err := parameters.Validate(); err != nil {
		return nil, err
	}
	if len(positions) == 0 {
		return nil, ErrEmptyBassLine
	}
	for i, pos := range positions {
		if len(pos.Permitted) == 0 || len(pos.Permitted) > 4 {
			return nil, fmt.Errorf("%w: 第 %d 个低音 %s 允许的音级数量为 %d", ErrUnsatisfiableVoicing, i, pos.Bass, len(pos.Permitted))
		}
		if !containsClass(pos.Permitted, pos.Bass.Class) {
			return nil, fmt.Errorf("%w: 第 %d 个低音 %s 的音级不在允许的音级中", ErrUnsatisfiableVoicing, i, pos.Bass)
		}
	}

	maxAttempts := parameters.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = DefaultMaxAttempts
	}

	var rng *rand.Rand
	if parameters.Seed == 0 {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	} else {
		rng = rand.New(rand.NewPCG(parameters.Seed, parameters.Seed))
	}

	return &Harmonizer{
		parameters:  parameters,
		positions:   positions,
		maxAttempts: maxAttempts,
		rng:         rng,
	}, nil
}

// SetProgressFunc 设置每一代结束后的回调
func (h *Harmonizer) SetProgressFunc(f ProgressFunc) {
	h.progress = f
}

// Run 演化 TotalGenerations 代，返回最后一代中得分最高的方案
// ctx 被取消时返回当前一代中最好的方案（可能为 nil）以及 ctx.Err()
func (h *Harmonizer) Run(ctx context.Context) (*Realisation, error) {
	for gen := 0; gen < h.parameters.TotalGenerations; gen++ {
		select {
		case <-ctx.Done():
			return h.Best(), ctx.Err()
		default:
		}

		next, err := h.nextGeneration(h.current)
		if err != nil {
			return h.Best(), err
		}
		h.current = next

		best := h.Best()
		slog.Debug("完成一代演化", "generation", gen, "bestScore", best.Score)
		if h.progress != nil {
			h.progress(gen, best.Score)
		}
	}

	return h.Best(), nil
}

// Best 返回当前一代中得分最高的方案，得分相同时取靠前的
func (h *Harmonizer) Best() *Realisation {
	if h.current == nil {
		return nil
	}
	return bestOf(h.current.Realisations)
}

// nextGeneration 由上一代产生新一代；没有上一代时全部随机生成
func (h *Harmonizer) nextGeneration(prev *Generation) (*Generation, error) {
	size := h.parameters.PopulationSize
	realisations := make([]*Realisation, 0, size)

	if prev == nil {
		for i := 0; i < size; i++ {
			r, err := h.newRealisation()
			if err != nil {
				return nil, err
			}
			realisations = append(realisations, r)
		}
		return &Generation{Realisations: realisations}, nil
	}

	// 按得分从低到高排序，高分的在末尾
	sorted := make([]*Realisation, len(prev.Realisations))
	copy(sorted, prev.Realisations)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score < sorted[j].Score
	})

	nonMutated, thrice, twice := h.parameters.counts()
	if thrice*3+twice*2+nonMutated >= size || thrice+twice > len(sorted) || nonMutated > len(sorted) {
		return nil, fmt.Errorf("%w: 保留 %d 个，变异三次 %d 个，变异两次 %d 个，种群大小 %d", ErrInvalidParameters, nonMutated, thrice, twice, size)
	}

	// 保留精英，方案创建后不会再被修改，因此可以直接共享
	realisations = append(realisations, sorted[len(sorted)-nonMutated:]...)

	// 从最高分开始依次取出父本进行变异，精英同样可以作为父本
	top := len(sorted) - 1
	for _, group := range []struct{ parents, children int }{{thrice, 3}, {twice, 2}} {
		for i := 0; i < group.parents; i++ {
			parent := sorted[top]
			top--
			for j := 0; j < group.children; j++ {
				child, err := h.mutate(parent)
				if err != nil {
					return nil, err
				}
				realisations = append(realisations, child)
			}
		}
	}

	// 剩余的名额用全新的方案填满
	remaining := size - nonMutated - thrice*3 - twice*2
	for i := 0; i < remaining; i++ {
		r, err := h.newRealisation()
		if err != nil {
			return nil, err
		}
		realisations = append(realisations, r)
	}

	return &Generation{Realisations: realisations}, nil
}
