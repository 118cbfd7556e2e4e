package seed

import (
	"errors"
	"log/slog"

	"github.com/ThomasAlban/figured-bass/internal/domain"
	"github.com/ThomasAlban/figured-bass/internal/repository"
	"github.com/ThomasAlban/figured-bass/internal/utils"
	"github.com/jackc/pgx/v5/pgconn"
)

func note(bass string, figures ...string) domain.FiguredNote {
	return domain.FiguredNote{Bass: bass, Figures: figures}
}

// GMajorExercise: G 大调（以 E 小调开始和结束）的数字低音练习
func GMajorExercise() *domain.HarmonizationJob {
	return &domain.HarmonizationJob{
		Title: "G 大调练习",
		Key:   domain.Key{Tonic: "G", Tonality: "major"},
		BassLine: []domain.FiguredNote{
			note("E3", "5", "3"),
			note("F#3", "6#", "3"),
			note("G3", "6", "3"),
			note("D#3", "6", "3"),
			note("E3", "5", "3"),
			note("B2", "5", "3#"),
			note("C3", "5", "3"),
			note("C3", "6", "3"),
			note("B2", "5", "3#"),
			note("A2", "6", "3"),
			note("G2", "6", "3"),
			note("A2", "5", "3"),
			note("B2", "6", "4"),
			note("B2", "5", "3#"),
			note("E3", "5", "3"),
		},
		Status: domain.JobStatusPending,
	}
}

// EFlatMajorExercise: 降 E 大调的数字低音练习
func EFlatMajorExercise() *domain.HarmonizationJob {
	return &domain.HarmonizationJob{
		Title: "降 E 大调练习",
		Key:   domain.Key{Tonic: "Eb", Tonality: "major"},
		BassLine: []domain.FiguredNote{
			note("Eb3", "5", "3"),
			note("F3", "6", "3"),
			note("G3", "6", "3"),
			note("Ab3", "5", "3"),
			note("Bb3", "6", "4"),
			note("Bb2", "5", "3"),
			note("C3", "5", "3"),
			note("G2", "6", "4"),
			note("Ab2", "6", "3"),
			note("Eb3", "5", "3"),
			note("D3", "6", "3"),
			note("C3", "5", "3"),
			note("Ab2", "6", "3"),
			note("Bb2", "5", "3"),
			note("Eb3", "5", "3"),
		},
		Status: domain.JobStatusPending,
	}
}

func Examples() []*domain.HarmonizationJob {
	return []*domain.HarmonizationJob{GMajorExercise(), EFlatMajorExercise()}
}

// InsertJob 生成 slug 并写入数据库，slug 重复时追加随机后缀
func InsertJob(r *repository.Repository, job *domain.HarmonizationJob, params domain.OptimizerParameters) error {
	if _, err := utils.BuildPositions(job.Key, job.BassLine); err != nil {
		return err
	}

	job.Parameters = params
	job.Slug = utils.GenerateSlug(job.Title)

	exists, err := r.CheckSlugIfExists(job.Slug)
	if err != nil {
		return err
	}
	if exists {
		job.Slug = job.Slug + "-" + utils.GenerateRandomID(0, 6)
	}

	return r.CreateHarmonizationJob(job)
}

func SeedExamples(r *repository.Repository, params domain.OptimizerParameters) {
	cnt := 0
	for _, job := range Examples() {
		if err := InsertJob(r, job, params); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.ConstraintName == "harmonization_jobs_slug_key" {
				slog.Warn("示例已存在", "title", job.Title)
				continue
			}
			slog.Error("插入示例失败", "title", job.Title, "error", err)
			continue
		}
		cnt++
	}

	slog.Info("插入示例完成", "count", cnt)
}
