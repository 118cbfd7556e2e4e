package domain

import (
	"fmt"
	"time"

	"github.com/ThomasAlban/figured-bass/internal/harmonizer"
)

type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusFailed  JobStatus = "failed"
)

type Key struct {
	Tonic    string `json:"tonic"`
	Tonality string `json:"tonality"`
}

// FiguredNote: 低音声部中的一个音以及它的数字标记，例如 {"bass": "F#3", "figures": ["6#", "3"]}
type FiguredNote struct {
	Bass    string   `json:"bass"`
	Figures []string `json:"figures"`
}

type OptimizerParameters struct {
	TotalGenerations     int     `json:"totalGenerations"`
	PopulationSize       int     `json:"populationSize"`
	NonMutatedFraction   float64 `json:"nonMutatedFraction"`
	MutateThriceFraction float64 `json:"mutateThriceFraction"`
	MutateTwiceFraction  float64 `json:"mutateTwiceFraction"`
	MaxAttempts          int     `json:"maxAttempts"`
	Seed                 uint64  `json:"seed"`
}

func (p OptimizerParameters) ToHarmonizer() *harmonizer.Parameters {
	return &harmonizer.Parameters{
		TotalGenerations:     p.TotalGenerations,
		PopulationSize:       p.PopulationSize,
		NonMutatedFraction:   p.NonMutatedFraction,
		MutateThriceFraction: p.MutateThriceFraction,
		MutateTwiceFraction:  p.MutateTwiceFraction,
		MaxAttempts:          p.MaxAttempts,
		Seed:                 p.Seed,
	}
}

type HarmonizationJob struct {
	ID           int64               `json:"id"`
	Title        string              `json:"title"`
	Slug         string              `json:"slug"`
	Key          Key                 `json:"key"`
	BassLine     []FiguredNote       `json:"bassLine"`
	Parameters   OptimizerParameters `json:"parameters"`
	Status       JobStatus           `json:"status"`
	Score        *int                `json:"score"` // 任务完成前为空
	Chords       []harmonizer.Chord  `json:"chords"`
	Rendered     string              `json:"rendered"`
	ErrorMessage string              `json:"errorMessage"`
	NotifyEmail  string              `json:"notifyEmail"`
	CreatedAt    time.Time           `json:"createdAt"`
	UpdatedAt    time.Time           `json:"updatedAt"`
	Version      int32               `json:"-"`
}

// HarmonizationMessage: api 发送给 worker 的消息
type HarmonizationMessage struct {
	JobID int64 `json:"jobID"`
}

// HarmonizationProgress: worker 写入 redis 的演化进度
type HarmonizationProgress struct {
	Generation       int `json:"generation"`
	TotalGenerations int `json:"totalGenerations"`
	BestScore        int `json:"bestScore"`
}

func HarmonizationProgressKey(jobID int64) string {
	return fmt.Sprintf("harmonization_%d_progress", jobID)
}
