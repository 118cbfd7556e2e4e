package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThomasAlban/figured-bass/internal/domain"
	"github.com/ThomasAlban/figured-bass/internal/harmonizer"
)

const harmonizationJobColumns = `
	id,
	title,
	slug,
	key_signature,
	bass_line,
	parameters,
	status,
	score,
	chords,
	rendered,
	error_message,
	notify_email,
	created_at,
	updated_at,
	version
`

type rowScanner interface {
	Scan(dest ...any) error
}

// jsonb 列先读成字节再反序列化
func scanHarmonizationJob(row rowScanner) (*domain.HarmonizationJob, error) {
	job := &domain.HarmonizationJob{}
	var key, bassLine, parameters, chords []byte

	dst := []any{
		&job.ID,
		&job.Title,
		&job.Slug,
		&key,
		&bassLine,
		&parameters,
		&job.Status,
		&job.Score,
		&chords,
		&job.Rendered,
		&job.ErrorMessage,
		&job.NotifyEmail,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.Version,
	}
	if err := row.Scan(dst...); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(key, &job.Key); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(bassLine, &job.BassLine); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(parameters, &job.Parameters); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(chords, &job.Chords); err != nil {
		return nil, err
	}

	return job, nil
}

func (r *Repository) CreateHarmonizationJob(job *domain.HarmonizationJob) error {
	query := `
		INSERT INTO harmonization_jobs (
			title,
			slug,
			key_signature,
			bass_line,
			parameters,
			status,
			notify_email
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at, version
	`

	key, err := json.Marshal(job.Key)
	if err != nil {
		return err
	}
	bassLine, err := json.Marshal(job.BassLine)
	if err != nil {
		return err
	}
	parameters, err := json.Marshal(job.Parameters)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	args := []any{job.Title, job.Slug, key, bassLine, parameters, job.Status, job.NotifyEmail}
	dst := []any{&job.ID, &job.CreatedAt, &job.UpdatedAt, &job.Version}
	if err := r.dbpool.QueryRowContext(ctx, query, args...).Scan(dst...); err != nil {
		return err
	}

	return nil
}

func (r *Repository) GetHarmonizationJobByID(id int64) (*domain.HarmonizationJob, error) {
	query := `SELECT ` + harmonizationJobColumns + ` FROM harmonization_jobs WHERE id = $1`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	return scanHarmonizationJob(r.dbpool.QueryRowContext(ctx, query, id))
}

func (r *Repository) GetHarmonizationJobBySlug(slug string) (*domain.HarmonizationJob, error) {
	query := `SELECT ` + harmonizationJobColumns + ` FROM harmonization_jobs WHERE slug = $1`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	return scanHarmonizationJob(r.dbpool.QueryRowContext(ctx, query, slug))
}

func (r *Repository) GetAllHarmonizationJobs() ([]*domain.HarmonizationJob, error) {
	query := `SELECT ` + harmonizationJobColumns + ` FROM harmonization_jobs ORDER BY created_at DESC, id DESC`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	rows, err := r.dbpool.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []*domain.HarmonizationJob{}
	for rows.Next() {
		job, err := scanHarmonizationJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return jobs, nil
}

// UpdateHarmonizationJob 更新任务的状态与结果，版本号不一致时返回 sql.ErrNoRows
func (r *Repository) UpdateHarmonizationJob(job *domain.HarmonizationJob) error {
	query := `
		UPDATE harmonization_jobs
		SET
			status = $1,
			score = $2,
			chords = $3,
			rendered = $4,
			error_message = $5,
			updated_at = NOW(),
			version = version + 1
		WHERE id = $6 AND version = $7
		RETURNING updated_at, version
	`

	if job.Chords == nil {
		job.Chords = []harmonizer.Chord{}
	}
	chords, err := json.Marshal(job.Chords)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	args := []any{job.Status, job.Score, chords, job.Rendered, job.ErrorMessage, job.ID, job.Version}
	if err := r.dbpool.QueryRowContext(ctx, query, args...).Scan(&job.UpdatedAt, &job.Version); err != nil {
		return err
	}

	return nil
}

func (r *Repository) DeleteHarmonizationJob(id int64) error {
	query := `
		DELETE FROM harmonization_jobs WHERE id = $1
	`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	if _, err := r.dbpool.ExecContext(ctx, query, id); err != nil {
		return err
	}

	return nil
}

func (r *Repository) CheckSlugIfExists(slug string) (bool, error) {
	isExists := false

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	query := `
		SELECT EXISTS (SELECT 1 FROM harmonization_jobs WHERE slug = $1)
	`
	if err := r.dbpool.QueryRowContext(ctx, query, slug).Scan(&isExists); err != nil {
		return false, err
	}

	return isExists, nil
}
