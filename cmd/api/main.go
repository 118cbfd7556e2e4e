package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThomasAlban/figured-bass/internal/config"
	"github.com/ThomasAlban/figured-bass/internal/domain"
	"github.com/ThomasAlban/figured-bass/internal/handler"
	"github.com/ThomasAlban/figured-bass/internal/infra"
	"github.com/ThomasAlban/figured-bass/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

// ensureInitialAdmin 管理员只用于删除任务，启动时按配置创建
func ensureInitialAdmin(cfg *config.Config, repo *repository.Repository) (bool, error) {
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(cfg.InitialAdmin.Password), bcrypt.DefaultCost)
	if err != nil {
		return false, fmt.Errorf("无法生成初始管理员密码哈希: %w", err)
	}

	return repo.EnsureUser(&domain.User{
		Username:     cfg.InitialAdmin.Username,
		PasswordHash: string(passwordHash),
		FullName:     cfg.InitialAdmin.FullName,
		Email:        cfg.InitialAdmin.Email,
		Role:         domain.RoleAdmin,
	})
}

func main() {
	/**********************************************
	 * 创建 logger
	 **********************************************/
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	/**********************************************
	 * 加载配置
	 **********************************************/
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("无法加载配置文件", "error", err)
		return
	}

	/**********************************************
	 * 连接数据库、rabbitmq 和 redis
	 **********************************************/
	dbpool, err := infra.OpenDatabase(cfg)
	if err != nil {
		logger.Error("数据库不可用", "error", err)
		return
	}
	defer dbpool.Close()

	// api 只向队列发布任务
	queue, err := infra.OpenJobQueue(cfg)
	if err != nil {
		logger.Error("任务队列不可用", "error", err)
		return
	}
	defer queue.Close()

	rdb, err := infra.OpenRedis(cfg)
	if err != nil {
		logger.Error("redis 不可用", "error", err)
		return
	}
	defer rdb.Close()

	repo := repository.NewRepository(cfg, dbpool)

	created, err := ensureInitialAdmin(cfg, repo)
	if err != nil {
		logger.Error("无法创建初始管理员", "error", err)
		return
	}
	if created {
		logger.Info("已创建初始管理员", "username", cfg.InitialAdmin.Username)
	}

	/**********************************************
	 * 创建 handler
	 **********************************************/
	h, err := handler.NewHandler(cfg, repo, queue.Channel, rdb)
	if err != nil {
		logger.Error("无法创建 handler", "error", err)
		return
	}
	h.RegisterRoutes()

	/**********************************************
	 * 启动 HTTP 服务器
	 **********************************************/
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      h.Mux,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("配和声服务正在监听", "port", cfg.Server.Port)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != http.ErrServerClosed {
			logger.Error("HTTP 服务器异常退出", "error", err)
		}
		return
	case <-ctx.Done():
	}
	logger.Info("收到退出信号，等待进行中的预览请求完成...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("关闭服务器失败", "error", err)
		return
	}
	logger.Info("配和声服务已关闭")
}
