package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/ThomasAlban/figured-bass/internal/config"
	"github.com/ThomasAlban/figured-bass/internal/domain"
	"github.com/ThomasAlban/figured-bass/internal/infra"
	"github.com/ThomasAlban/figured-bass/internal/repository"
	"github.com/ThomasAlban/figured-bass/internal/seed"
	"github.com/ThomasAlban/figured-bass/internal/utils"
)

func main() {
	var op int
	var n int
	var length int

	flag.IntVar(&op, "op", 0, "要执行的操作 (1: 插入随机练习, 2: 插入内置示例)")
	flag.IntVar(&n, "n", 5, "要插入的记录数量")
	flag.IntVar(&length, "length", 8, "随机练习中低音的个数")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 读取配置文件
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("无法读取配置文件", slog.String("error", err.Error()))
		os.Exit(1)
	}

	dbpool, err := infra.OpenDatabase(cfg)
	if err != nil {
		logger.Error("数据库不可用", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()

	repo := repository.NewRepository(cfg, dbpool)

	params := domain.OptimizerParameters{
		TotalGenerations:     cfg.Optimizer.TotalGenerations,
		PopulationSize:       cfg.Optimizer.PopulationSize,
		NonMutatedFraction:   cfg.Optimizer.NonMutatedFraction,
		MutateThriceFraction: cfg.Optimizer.MutateThriceFraction,
		MutateTwiceFraction:  cfg.Optimizer.MutateTwiceFraction,
		MaxAttempts:          cfg.Optimizer.MaxAttempts,
	}

	// 执行操作
	switch op {
	case 0:
		slog.Error("未指定操作")
	case 1:
		if n <= 0 || length <= 0 {
			slog.Error("请输入合法的练习数量和长度")
			return
		}

		cnt := 0
		for i := 0; i < n; i++ {
			job := utils.GenerateRandomExercise(length)
			if err := seed.InsertJob(repo, job, params); err != nil {
				slog.Error("无法插入练习", slog.String("error", err.Error()))
				continue
			}
			cnt++
		}

		slog.Info("插入随机练习成功", slog.Int("count", cnt))
	case 2:
		seed.SeedExamples(repo, params)
	default:
		slog.Error("指定的操作非法")
	}
}
