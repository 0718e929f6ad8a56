package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/stemsi/proctorexam/internal/config"
	"github.com/stemsi/proctorexam/internal/database"
	"github.com/stemsi/proctorexam/internal/logger"
	"github.com/stemsi/proctorexam/internal/model"
	"github.com/stemsi/proctorexam/internal/repository"
)

func main() {
	var (
		title    string
		start    string
		duration int
		authorID int
	)
	flag.StringVar(&title, "title", "Sample Exam", "Exam title")
	flag.StringVar(&start, "start", "now", `Scheduled start, RFC3339 or "now"`)
	flag.IntVar(&duration, "duration", 60, "Duration in minutes")
	flag.IntVar(&authorID, "author", 1, "Staff user ID recorded as question bank author")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	scheduled := time.Now().UTC().Truncate(time.Minute)
	if start != "now" {
		t, err := time.Parse(time.RFC3339, start)
		if err != nil {
			log.Fatal().Err(err).Str("start", start).Msg("Invalid start time")
		}
		scheduled = t
	}
	if duration <= 0 {
		log.Fatal().Int("duration", duration).Msg("Duration must be positive")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	exam := &model.ExamDefinition{
		Title:           title,
		ScheduledStart:  scheduled,
		DurationMinutes: duration,
		Questions:       sampleQuestions(),
	}

	if err := repository.NewExamRepository(pool).Seed(ctx, exam, authorID); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed exam")
	}

	fmt.Println("=== Exam seeded ===")
	fmt.Printf("ID:        %s\n", exam.ID)
	fmt.Printf("Title:     %s\n", exam.Title)
	fmt.Printf("Start:     %s\n", exam.ScheduledStart.Format(time.RFC3339))
	fmt.Printf("Duration:  %d minutes\n", exam.DurationMinutes)
	fmt.Printf("Questions: %d (%d points)\n", len(exam.Questions), exam.PointsPossible())
	for _, q := range exam.Questions {
		fmt.Printf("  %s  %-12s %s\n", q.ID, q.QuestionType, q.QuestionText)
	}
}

func sampleQuestions() []model.Question {
	return []model.Question{
		{
			QuestionType:  model.QuestionTypeMCQ,
			QuestionText:  "Which planet is closest to the sun?",
			Options:       []string{"Venus", "Mercury", "Mars", "Earth"},
			CorrectAnswer: model.Key("Mercury"),
			Points:        1,
			OrderNum:      1,
		},
		{
			QuestionType:  model.QuestionTypeMCQ,
			QuestionText:  "What is 7 x 8?",
			Options:       []string{"54", "56", "58", "64"},
			CorrectAnswer: model.Key("56"),
			Points:        1,
			OrderNum:      2,
		},
		{
			QuestionType:  model.QuestionTypeShortAnswer,
			QuestionText:  "What is the capital of France?",
			CorrectAnswer: model.Key("Paris"),
			Explanation:   "Answers are compared exactly, including case.",
			Points:        2,
			OrderNum:      3,
		},
		{
			QuestionType:  model.QuestionTypeEssay,
			QuestionText:  "Name the chemical symbol for water.",
			CorrectAnswer: model.Key("H2O"),
			Points:        3,
			OrderNum:      4,
		},
	}
}
