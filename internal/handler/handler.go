package handler

import (
	"github.com/ThomasAlban/figured-bass/internal/config"
	"github.com/ThomasAlban/figured-bass/internal/domain"
	"github.com/ThomasAlban/figured-bass/internal/repository"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
)

type Handler struct {
	validate    *validator.Validate
	config      *config.Config
	repository  *repository.Repository
	translator  ut.Translator
	jobChannel  *amqp.Channel
	redisClient *redis.Client

	Mux *chi.Mux
}

func NewHandler(cfg *config.Config, repo *repository.Repository, jobCh *amqp.Channel, rdb *redis.Client) (*Handler, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	zh := zh.New()
	uni := ut.New(zh, zh)
	trans, _ := uni.GetTranslator("zh")
	if err := zh_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, err
	}

	return &Handler{
		validate:    validate,
		config:      cfg,
		repository:  repo,
		translator:  trans,
		jobChannel:  jobCh,
		redisClient: rdb,

		Mux: chi.NewRouter(),
	}, nil
}

func (h *Handler) RegisterRoutes() {
	h.Mux.Use(h.logger)
	h.Mux.Use(h.recoverer)

	// 认证相关
	h.Mux.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
	})

	h.Mux.Route("/harmonizations", func(r chi.Router) {
		r.Post("/", h.CreateHarmonization)
		r.Get("/", h.GetAllHarmonizations)
		r.Post("/preview", h.PreviewHarmonization) // 同步运行，不会写入数据库
		r.Route("/{option}", func(r chi.Router) {
			r.With(h.harmonizationJob).Get("/", h.GetHarmonization)
			r.With(h.harmonizationJob).Get("/progress", h.GetHarmonizationProgress)
			// 删除必须要在登录后才允许调用
			r.With(h.auth, h.RequiredRole([]domain.Role{domain.RoleAdmin}), h.harmonizationJob).Delete("/", h.DeleteHarmonization)
		})
	})
}
