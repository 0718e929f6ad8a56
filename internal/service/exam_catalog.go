package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/proctorexam/internal/config"
	"github.com/stemsi/proctorexam/internal/model"
)

// ExamSource is the authoritative exam lookup behind the cache.
type ExamSource interface {
	GetDefinition(ctx context.Context, id uuid.UUID) (*model.ExamDefinition, error)
	ListOpenExamIDs(ctx context.Context, now time.Time) ([]uuid.UUID, error)
}

// ExamCatalogService serves exam definitions from Redis and falls back to
// PostgreSQL on a miss, writing the result back. A Redis failure degrades to
// the database path.
type ExamCatalogService struct {
	src ExamSource
	rdb *redis.Client
	ttl time.Duration
	log zerolog.Logger
}

// NewExamCatalogService creates a new ExamCatalogService.
func NewExamCatalogService(src ExamSource, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *ExamCatalogService {
	return &ExamCatalogService{
		src: src,
		rdb: rdb,
		ttl: ttl,
		log: log.With().Str("component", "exam_catalog").Logger(),
	}
}

// GetDefinition returns the exam with its question set.
func (s *ExamCatalogService) GetDefinition(ctx context.Context, id uuid.UUID) (*model.ExamDefinition, error) {
	key := config.CacheKey.ExamDefinitionKey(id.String())

	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var exam model.ExamDefinition
		if err := json.Unmarshal(data, &exam); err == nil {
			return &exam, nil
		}
		s.log.Warn().Str("exam_id", id.String()).Msg("Corrupt cached exam, reloading")
	} else if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Exam cache unavailable, using database")
	}

	exam, err := s.src.GetDefinition(ctx, id)
	if err != nil {
		return nil, err
	}

	// Self-heal: write back for the next reader.
	if err := s.store(ctx, exam); err != nil {
		s.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Failed to cache exam")
	}
	return exam, nil
}

// Invalidate drops the cached copy of an exam.
func (s *ExamCatalogService) Invalidate(ctx context.Context, id uuid.UUID) error {
	return s.rdb.Del(ctx, config.CacheKey.ExamDefinitionKey(id.String())).Err()
}

// Prewarm loads every exam that has not closed yet into Redis so the first
// wave of students does not stampede the database.
func (s *ExamCatalogService) Prewarm(ctx context.Context, now time.Time) error {
	ids, err := s.src.ListOpenExamIDs(ctx, now)
	if err != nil {
		return fmt.Errorf("list open exams: %w", err)
	}
	if len(ids) == 0 {
		s.log.Info().Msg("No open exams to prewarm")
		return nil
	}

	s.log.Info().Int("count", len(ids)).Msg("Prewarming open exams...")

	warmed := 0
	for _, id := range ids {
		exam, err := s.src.GetDefinition(ctx, id)
		if err != nil {
			s.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Failed to load exam, skipping")
			continue
		}
		if err := s.store(ctx, exam); err != nil {
			s.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Failed to warm exam, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(ids)).
		Msg("Prewarming complete")
	return nil
}

func (s *ExamCatalogService) store(ctx context.Context, exam *model.ExamDefinition) error {
	data, err := json.Marshal(exam)
	if err != nil {
		return fmt.Errorf("marshal exam: %w", err)
	}
	return s.rdb.Set(ctx, config.CacheKey.ExamDefinitionKey(exam.ID.String()), data, s.ttl).Err()
}
