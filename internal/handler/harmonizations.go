package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ThomasAlban/figured-bass/internal/domain"
	"github.com/ThomasAlban/figured-bass/internal/harmonizer"
	"github.com/ThomasAlban/figured-bass/internal/utils"
	"github.com/jackc/pgx/v5/pgconn"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
)

type keyRequest struct {
	Tonic    string `json:"tonic" validate:"required"`
	Tonality string `json:"tonality" validate:"required"`
}

type figuredNoteRequest struct {
	Bass    string   `json:"bass" validate:"required"`
	Figures []string `json:"figures" validate:"max=6"`
}

// 没有给出的参数使用配置中的默认值
type parametersRequest struct {
	TotalGenerations     *int     `json:"totalGenerations" validate:"omitempty,min=1"`
	PopulationSize       *int     `json:"populationSize" validate:"omitempty,min=1,max=100000"`
	NonMutatedFraction   *float64 `json:"nonMutatedFraction" validate:"omitempty,gte=0,lt=1"`
	MutateThriceFraction *float64 `json:"mutateThriceFraction" validate:"omitempty,gte=0,lt=1"`
	MutateTwiceFraction  *float64 `json:"mutateTwiceFraction" validate:"omitempty,gte=0,lt=1"`
	MaxAttempts          *int     `json:"maxAttempts" validate:"omitempty,min=0"`
	Seed                 *uint64  `json:"seed"`
}

type harmonizationRequest struct {
	Title       string               `json:"title" validate:"required,max=100"`
	Key         keyRequest           `json:"key"`
	BassLine    []figuredNoteRequest `json:"bassLine" validate:"required,min=1,max=200,dive"`
	Parameters  *parametersRequest   `json:"parameters"`
	NotifyEmail string               `json:"notifyEmail" validate:"omitempty,email"`
}

func (req *harmonizationRequest) key() domain.Key {
	return domain.Key{Tonic: req.Key.Tonic, Tonality: req.Key.Tonality}
}

func (req *harmonizationRequest) bassLine() []domain.FiguredNote {
	notes := make([]domain.FiguredNote, len(req.BassLine))
	for i, n := range req.BassLine {
		notes[i] = domain.FiguredNote{Bass: n.Bass, Figures: n.Figures}
	}
	return notes
}

func (h *Handler) resolveParameters(req *parametersRequest) domain.OptimizerParameters {
	opt := h.config.Optimizer
	p := domain.OptimizerParameters{
		TotalGenerations:     opt.TotalGenerations,
		PopulationSize:       opt.PopulationSize,
		NonMutatedFraction:   opt.NonMutatedFraction,
		MutateThriceFraction: opt.MutateThriceFraction,
		MutateTwiceFraction:  opt.MutateTwiceFraction,
		MaxAttempts:          opt.MaxAttempts,
	}
	if req == nil {
		return p
	}

	if req.TotalGenerations != nil {
		p.TotalGenerations = *req.TotalGenerations
	}
	if req.PopulationSize != nil {
		p.PopulationSize = *req.PopulationSize
	}
	if req.NonMutatedFraction != nil {
		p.NonMutatedFraction = *req.NonMutatedFraction
	}
	if req.MutateThriceFraction != nil {
		p.MutateThriceFraction = *req.MutateThriceFraction
	}
	if req.MutateTwiceFraction != nil {
		p.MutateTwiceFraction = *req.MutateTwiceFraction
	}
	if req.MaxAttempts != nil {
		p.MaxAttempts = *req.MaxAttempts
	}
	if req.Seed != nil {
		p.Seed = *req.Seed
	}
	return p
}

// readHarmonizationRequest 读取并校验请求，失败时已经写入了响应
func (h *Handler) readHarmonizationRequest(w http.ResponseWriter, r *http.Request) (*harmonizationRequest, []harmonizer.BassPosition, domain.OptimizerParameters, bool) {
	var req harmonizationRequest

	if err := h.readJSON(w, r, &req); err != nil {
		h.badRequest(w, r, err)
		return nil, nil, domain.OptimizerParameters{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return nil, nil, domain.OptimizerParameters{}, false
	}

	positions, err := utils.BuildPositions(req.key(), req.bassLine())
	if err != nil {
		h.badRequest(w, r, err)
		return nil, nil, domain.OptimizerParameters{}, false
	}

	params := h.resolveParameters(req.Parameters)
	if err := utils.ValidateOptimizerParameters(params); err != nil {
		h.badRequest(w, r, err)
		return nil, nil, domain.OptimizerParameters{}, false
	}

	return &req, positions, params, true
}

func (h *Handler) CreateHarmonization(w http.ResponseWriter, r *http.Request) {
	req, _, params, ok := h.readHarmonizationRequest(w, r)
	if !ok {
		return
	}

	// 生成 slug，重复时追加随机后缀
	slug := utils.GenerateSlug(req.Title)
	exists, err := h.repository.CheckSlugIfExists(slug)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}
	if exists {
		slug = slug + "-" + utils.GenerateRandomID(0, 6)
	}

	job := &domain.HarmonizationJob{
		Title:       req.Title,
		Slug:        slug,
		Key:         req.key(),
		BassLine:    req.bassLine(),
		Parameters:  params,
		Status:      domain.JobStatusPending,
		NotifyEmail: req.NotifyEmail,
	}

	if err := h.repository.CreateHarmonizationJob(job); err != nil {
		var pgErr *pgconn.PgError
		switch {
		case errors.As(err, &pgErr):
			switch pgErr.ConstraintName {
			case "harmonization_jobs_slug_key":
				h.errorResponse(w, r, "任务标识已存在，请重试")
			default:
				h.internalServerError(w, r, err)
			}
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	// 把任务发送到消息队列中，由 worker 运行演化算法
	body, err := json.Marshal(domain.HarmonizationMessage{JobID: job.ID})
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(h.config.RabbitMQ.PublishTimeout)*time.Second)
	defer cancel()

	if err := h.jobChannel.PublishWithContext(
		ctx,
		"",
		h.config.RabbitMQ.Queue,
		true,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	); err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "创建配和声任务成功", job)
}

func (h *Handler) GetAllHarmonizations(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.repository.GetAllHarmonizationJobs()
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "获取所有配和声任务成功", jobs)
}

func (h *Handler) GetHarmonization(w http.ResponseWriter, r *http.Request) {
	job := r.Context().Value(HarmonizationJobCtx).(*domain.HarmonizationJob)

	h.successResponse(w, r, "获取配和声任务成功", job)
}

func (h *Handler) GetHarmonizationProgress(w http.ResponseWriter, r *http.Request) {
	job := r.Context().Value(HarmonizationJobCtx).(*domain.HarmonizationJob)

	ctx, cancel := context.WithTimeout(r.Context(), time.Duration(h.config.Redis.OperationTimeout)*time.Second)
	defer cancel()

	raw, err := h.redisClient.Get(ctx, domain.HarmonizationProgressKey(job.ID)).Bytes()
	if err != nil {
		switch {
		case errors.Is(err, redis.Nil):
			h.successResponse(w, r, "暂无演化进度", nil)
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	var progress domain.HarmonizationProgress
	if err := json.Unmarshal(raw, &progress); err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "获取演化进度成功", progress)
}

func (h *Handler) DeleteHarmonization(w http.ResponseWriter, r *http.Request) {
	job := r.Context().Value(HarmonizationJobCtx).(*domain.HarmonizationJob)

	if err := h.repository.DeleteHarmonizationJob(job.ID); err != nil {
		h.internalServerError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), time.Duration(h.config.Redis.OperationTimeout)*time.Second)
	defer cancel()

	if err := h.redisClient.Del(ctx, domain.HarmonizationProgressKey(job.ID)).Err(); err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "删除配和声任务成功", nil)
}

type previewResponse struct {
	Realisation *harmonizer.Realisation `json:"realisation"`
	Rendered    string                  `json:"rendered"`
	Generations int                     `json:"generations"`
}

func (h *Handler) PreviewHarmonization(w http.ResponseWriter, r *http.Request) {
	_, positions, params, ok := h.readHarmonizationRequest(w, r)
	if !ok {
		return
	}

	// 预览是同步运行的，代数不能超过配置中的上限
	if params.TotalGenerations > h.config.Optimizer.MaxPreviewGenerations {
		params.TotalGenerations = h.config.Optimizer.MaxPreviewGenerations
	}

	hz, err := harmonizer.New(params.ToHarmonizer(), positions)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}

	best, err := hz.Run(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, harmonizer.ErrUnsatisfiableVoicing):
			h.errorResponse(w, r, err.Error())
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			h.errorResponse(w, r, "请求已取消")
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	h.successResponse(w, r, "预览配和声成功", previewResponse{
		Realisation: best,
		Rendered:    harmonizer.Render(best),
		Generations: params.TotalGenerations,
	})
}
