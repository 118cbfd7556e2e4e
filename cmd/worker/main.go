package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"text/template"
	"time"

	"github.com/ThomasAlban/figured-bass/internal/config"
	"github.com/ThomasAlban/figured-bass/internal/domain"
	"github.com/ThomasAlban/figured-bass/internal/harmonizer"
	"github.com/ThomasAlban/figured-bass/internal/infra"
	"github.com/ThomasAlban/figured-bass/internal/repository"
	"github.com/ThomasAlban/figured-bass/internal/utils"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/wneessen/go-mail"
)

var doneMailTemplate = template.Must(template.New("done").Parse(`配和声任务「{{.Title}}」已完成（{{.Slug}}），得分 {{.Score}}。

{{.Rendered}}`))

var failedMailTemplate = template.Must(template.New("failed").Parse(`配和声任务「{{.Title}}」（{{.Slug}}）运行失败：{{.ErrorMessage}}
`))

type worker struct {
	cfg        *config.Config
	logger     *slog.Logger
	repo       *repository.Repository
	rdb        *redis.Client
	mailClient *mail.Client // 为空时不发送通知邮件
}

func main() {
	/**********************************************
	 * 创建 logger
	 **********************************************/
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	/**********************************************
	 * 读取配置文件
	 **********************************************/
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("无法读取配置文件", slog.String("error", err.Error()))
		return
	}

	/**********************************************
	 * 连接数据库和 redis
	 **********************************************/
	dbpool, err := infra.OpenDatabase(cfg)
	if err != nil {
		logger.Error("数据库不可用", slog.String("error", err.Error()))
		return
	}
	defer dbpool.Close()

	rdb, err := infra.OpenRedis(cfg)
	if err != nil {
		logger.Error("redis 不可用", slog.String("error", err.Error()))
		return
	}
	defer rdb.Close()

	/**********************************************
	 * 创建邮件客户端
	 **********************************************/
	var client *mail.Client
	if cfg.Email.SMTP.Host != "" {
		client, err = mail.NewClient(cfg.Email.SMTP.Host,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithSSL(),
			mail.WithPort(cfg.Email.SMTP.Port),
			mail.WithUsername(cfg.Email.SMTP.Username),
			mail.WithPassword(cfg.Email.SMTP.Password),
		)
		if err != nil {
			logger.Error("无法创建邮件客户端", slog.String("error", err.Error()))
			return
		}
		defer client.Close()

		// 验证邮件客户端是否连接成功
		dialCtx, dialCancel := context.WithTimeout(context.Background(), time.Duration(cfg.Email.SMTP.DialTimeout)*time.Second)
		defer dialCancel()
		if err := client.DialWithContext(dialCtx); err != nil {
			logger.Error("无法连接到邮件服务器", slog.String("error", err.Error()))
			return
		}
	} else {
		logger.Warn("没有配置邮件服务器，任务完成后不会发送通知邮件")
	}

	/**********************************************
	 * 连接任务队列
	 **********************************************/
	queue, err := infra.OpenJobQueue(cfg)
	if err != nil {
		logger.Error("任务队列不可用", slog.String("error", err.Error()))
		return
	}
	defer queue.Close()
	ch := queue.Channel

	// 演化算法很耗时，每次只取一条消息
	if err := ch.Qos(1, 0, false); err != nil {
		logger.Error("无法设置预取数量", slog.String("error", err.Error()))
		return
	}

	msgs, err := ch.Consume(
		queue.Queue.Name, // 队列
		"",               // 消费者标识，由 RabbitMQ 自动分配
		false,            // 手动确认
		false,            // 是否独占队列
		false,            // 必须设置为 false，RabbitMQ 不支持这个参数
		false,            // 是否不等待
		nil,              // 额外参数
	)
	if err != nil {
		logger.Error("无法消费消息", slog.String("error", err.Error()))
		return
	}

	w := &worker{
		cfg:        cfg,
		logger:     logger,
		repo:       repository.NewRepository(cfg, dbpool),
		rdb:        rdb,
		mailClient: client,
	}

	// 监听 CTRL+C
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// 用于关闭 goroutine 的上下文，同时用于中断正在运行的演化
	ctx, cancel := context.WithCancel(context.Background())
	wg := sync.WaitGroup{}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					logger.Error("消息通道已关闭")
					return
				}
				w.handleMessage(ctx, msg)
			}
		}
	}()

	logger.Info("等待配和声任务...（按 CTRL+C 退出）")
	<-sigChan

	// 优雅退出
	slog.Info("正在关闭 harmonization worker...")
	cancel()
	wg.Wait()
	slog.Info("harmonization worker 已成功关闭")
}

func (w *worker) handleMessage(ctx context.Context, msg amqp.Delivery) {
	w.logger.Info("收到消息", slog.String("message", string(msg.Body)))

	message := domain.HarmonizationMessage{}
	if err := json.Unmarshal(msg.Body, &message); err != nil {
		w.logger.Error("消息反序列化失败", slog.String("error", err.Error()))
		_ = msg.Nack(false, false)
		return
	}

	job, err := w.repo.GetHarmonizationJobByID(message.JobID)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// 任务在运行前已经被删除
			w.logger.Warn("配和声任务不存在", slog.Int64("jobID", message.JobID))
			_ = msg.Ack(false)
		default:
			w.logger.Error("无法获取配和声任务", slog.String("error", err.Error()))
			_ = msg.Nack(false, true)
		}
		return
	}

	if job.Status == domain.JobStatusDone || job.Status == domain.JobStatusFailed {
		w.logger.Warn("配和声任务已经结束，跳过", slog.Int64("jobID", job.ID), slog.String("status", string(job.Status)))
		_ = msg.Ack(false)
		return
	}

	job.Status = domain.JobStatusRunning
	if err := w.repo.UpdateHarmonizationJob(job); err != nil {
		w.logger.Error("无法更新任务状态", slog.Int64("jobID", job.ID), slog.String("error", err.Error()))
		_ = msg.Nack(false, true)
		return
	}

	best, runErr := w.run(ctx, job)
	if runErr != nil && ctx.Err() != nil {
		// worker 正在关闭，任务放回队列等待下次运行
		job.Status = domain.JobStatusPending
		if err := w.repo.UpdateHarmonizationJob(job); err != nil {
			w.logger.Error("无法重置任务状态", slog.Int64("jobID", job.ID), slog.String("error", err.Error()))
		}
		_ = msg.Nack(false, true)
		return
	}

	if runErr != nil {
		w.logger.Error("演化失败", slog.Int64("jobID", job.ID), slog.String("error", runErr.Error()))
		job.Status = domain.JobStatusFailed
		job.ErrorMessage = runErr.Error()
	} else {
		score := best.Score
		job.Status = domain.JobStatusDone
		job.Score = &score
		job.Chords = best.Chords
		job.Rendered = harmonizer.Render(best)
		w.logger.Info("演化完成", slog.Int64("jobID", job.ID), slog.Int("score", score))
	}

	if err := w.repo.UpdateHarmonizationJob(job); err != nil {
		w.logger.Error("无法保存演化结果", slog.Int64("jobID", job.ID), slog.String("error", err.Error()))
		_ = msg.Nack(false, true)
		return
	}

	if err := w.notify(job); err != nil {
		// 邮件发送失败不影响任务结果
		w.logger.Error("通知邮件发送失败", slog.Int64("jobID", job.ID), slog.String("error", err.Error()))
	}

	_ = msg.Ack(false)
}

func (w *worker) run(ctx context.Context, job *domain.HarmonizationJob) (*harmonizer.Realisation, error) {
	positions, err := utils.BuildPositions(job.Key, job.BassLine)
	if err != nil {
		return nil, err
	}

	h, err := harmonizer.New(job.Parameters.ToHarmonizer(), positions)
	if err != nil {
		return nil, err
	}

	total := job.Parameters.TotalGenerations
	h.SetProgressFunc(func(generation int, bestScore int) {
		w.saveProgress(job.ID, domain.HarmonizationProgress{
			Generation:       generation + 1,
			TotalGenerations: total,
			BestScore:        bestScore,
		})
	})

	return h.Run(ctx)
}

// saveProgress 进度只用于展示，写入失败时只记录日志
func (w *worker) saveProgress(jobID int64, progress domain.HarmonizationProgress) {
	data, err := json.Marshal(progress)
	if err != nil {
		w.logger.Error("进度序列化失败", slog.String("error", err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(w.cfg.Redis.OperationTimeout)*time.Second)
	defer cancel()

	expiration := time.Duration(w.cfg.Redis.ProgressExpiration) * time.Second
	if err := w.rdb.Set(ctx, domain.HarmonizationProgressKey(jobID), data, expiration).Err(); err != nil {
		w.logger.Error("无法写入演化进度", slog.Int64("jobID", jobID), slog.String("error", err.Error()))
	}
}

func (w *worker) notify(job *domain.HarmonizationJob) error {
	if w.mailClient == nil || job.NotifyEmail == "" {
		return nil
	}

	m := mail.NewMsg()
	if err := m.From(w.cfg.Email.SMTP.Username); err != nil {
		return err
	}
	if err := m.To(job.NotifyEmail); err != nil {
		return err
	}

	switch job.Status {
	case domain.JobStatusDone:
		data := domain.HarmonizationDoneMailData{Title: job.Title, Slug: job.Slug, Score: *job.Score, Rendered: job.Rendered}
		if err := m.SetBodyTextTemplate(doneMailTemplate, data); err != nil {
			return err
		}
		m.Subject("数字低音配和声 - 任务完成")
	case domain.JobStatusFailed:
		data := domain.HarmonizationFailedMailData{Title: job.Title, Slug: job.Slug, ErrorMessage: job.ErrorMessage}
		if err := m.SetBodyTextTemplate(failedMailTemplate, data); err != nil {
			return err
		}
		m.Subject("数字低音配和声 - 任务失败")
	default:
		return fmt.Errorf("任务状态 %s 不需要发送邮件", job.Status)
	}

	return w.mailClient.DialAndSend(m)
}
