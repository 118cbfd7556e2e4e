package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ThomasAlban/figured-bass/internal/domain"
	"github.com/ThomasAlban/figured-bass/internal/harmonizer"
	"github.com/ThomasAlban/figured-bass/internal/seed"
	"github.com/ThomasAlban/figured-bass/internal/utils"
)

// 与 POST /harmonizations 的请求体相同，parameters 由命令行参数给出
type input struct {
	Title    string               `json:"title"`
	Key      domain.Key           `json:"key"`
	BassLine []domain.FiguredNote `json:"bassLine"`
}

func main() {
	var params harmonizer.Parameters
	var inputPath string
	var verbose bool

	flag.IntVar(&params.TotalGenerations, "generations", 100, "总代数")
	flag.IntVar(&params.PopulationSize, "population", 2000, "种群大小")
	flag.Float64Var(&params.NonMutatedFraction, "non-mutated", 0.1, "原样保留到下一代的比例")
	flag.Float64Var(&params.MutateThriceFraction, "thrice", 0.2, "产生三个变异后代的比例")
	flag.Float64Var(&params.MutateTwiceFraction, "twice", 0.1, "产生两个变异后代的比例")
	flag.IntVar(&params.MaxAttempts, "max-attempts", harmonizer.DefaultMaxAttempts, "生成单个和弦时的最大尝试次数")
	flag.Uint64Var(&params.Seed, "seed", 0, "随机数种子，0 表示随机")
	flag.StringVar(&inputPath, "input", "", "JSON 格式的数字低音文件，为空时使用内置的 G 大调练习")
	flag.BoolVar(&verbose, "v", false, "输出每一代的调试日志")
	flag.Parse()

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	in, err := loadInput(inputPath)
	if err != nil {
		logger.Error("无法读取数字低音", "error", err)
		os.Exit(1)
	}

	positions, err := utils.BuildPositions(in.Key, in.BassLine)
	if err != nil {
		logger.Error("数字低音不合法", "error", err)
		os.Exit(1)
	}

	h, err := harmonizer.New(&params, positions)
	if err != nil {
		logger.Error("无法创建演化器", "error", err)
		os.Exit(1)
	}

	h.SetProgressFunc(func(generation int, bestScore int) {
		logger.Info("演化进度", "generation", generation+1, "total", params.TotalGenerations, "bestScore", bestScore)
	})

	// CTRL+C 时输出当前最好的方案
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	best, err := h.Run(ctx)
	if err != nil && best == nil {
		logger.Error("演化失败", "error", err)
		os.Exit(1)
	}
	if err != nil {
		logger.Warn("演化被中断，输出当前最好的方案", "error", err)
	}

	fmt.Printf("%s（%s %s），得分 %d\n\n", in.Title, in.Key.Tonic, in.Key.Tonality, best.Score)
	fmt.Print(harmonizer.Render(best))
}

func loadInput(path string) (*input, error) {
	if path == "" {
		job := seed.GMajorExercise()
		return &input{Title: job.Title, Key: job.Key, BassLine: job.BassLine}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	in := &input{}
	if err := json.Unmarshal(data, in); err != nil {
		return nil, fmt.Errorf("无法解析 %s: %w", path, err)
	}
	return in, nil
}
