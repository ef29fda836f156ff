package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
	"pmsf-backend/internal/apperr"
	"pmsf-backend/internal/domain"
	"pmsf-backend/internal/metrics"
	"pmsf-backend/internal/ports"
)

// QuizService runs the quiz slice. It shares nothing with the checklist
// domain beyond storage and auth.
type QuizService struct {
	Store  ports.QuizStore
	Tx     ports.UnitOfWork
	Logger *slog.Logger
}

type QuestionInput struct {
	Text          string
	CorrectAnswer string
	Score         decimal.Decimal
	WrongAnswers  []string
}

type QuizInput struct {
	Subject         string
	PassingMarks    decimal.Decimal
	TimeType        domain.QuizTimeType
	TotalTime       *int
	TimePerQuestion *int
	Questions       []QuestionInput
}

type AnswerInput struct {
	QuestionID int64
	Answer     string
}

func (s QuizService) List(ctx context.Context) ([]domain.Quiz, error) {
	quizzes, err := s.Store.ListActive(ctx)
	if err != nil {
		return nil, apperr.Internal("failed to fetch quizzes", err)
	}
	return quizzes, nil
}

func (s QuizService) Get(ctx context.Context, id int64) (*domain.Quiz, error) {
	q, err := s.Store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, apperr.NotFound("Quiz not found")
		}
		return nil, apperr.Internal("failed to fetch quiz", err)
	}
	return q, nil
}

// Create stores a quiz and its questions in one transaction. The total
// score is the sum of the question scores.
func (s QuizService) Create(ctx context.Context, in QuizInput, actor string) (int64, error) {
	quiz, questions, err := buildQuiz(in)
	if err != nil {
		return 0, err
	}
	quiz.CreatedBy = actor
	quiz.LastEditedBy = actor

	var id int64
	err = s.Tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if id, err = s.Store.Create(ctx, quiz); err != nil {
			return err
		}
		return s.Store.ReplaceQuestions(ctx, id, questions)
	})
	if err != nil {
		return 0, apperr.Internal("failed to create quiz", err)
	}
	s.Logger.Info("quiz created", "quiz_id", id, "questions", len(questions), "by", actor)
	return id, nil
}

// Update rewrites the quiz header and replaces every question.
func (s QuizService) Update(ctx context.Context, id int64, in QuizInput, actor string) error {
	quiz, questions, err := buildQuiz(in)
	if err != nil {
		return err
	}
	quiz.ID = id
	quiz.LastEditedBy = actor

	err = s.Tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.Store.Update(ctx, quiz); err != nil {
			return err
		}
		return s.Store.ReplaceQuestions(ctx, id, questions)
	})
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return apperr.NotFound("Quiz not found")
		}
		return apperr.Internal("failed to update quiz", err)
	}
	return nil
}

func (s QuizService) Delete(ctx context.Context, id int64) error {
	if err := s.Store.Deactivate(ctx, id); err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return apperr.NotFound("Quiz not found")
		}
		return apperr.Internal("failed to delete quiz", err)
	}
	return nil
}

// SubmitAttempt scores the answers against the stored quiz and records the
// attempt. An answer is correct when it equals the correct answer after
// trimming; the attempt passes when the score reaches the passing marks.
func (s QuizService) SubmitAttempt(ctx context.Context, quizID int64, userID string, answers []AnswerInput, timeTaken *int) (*domain.QuizAttempt, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperr.Validation("userId is required", nil)
	}
	quiz, err := s.Get(ctx, quizID)
	if err != nil {
		return nil, err
	}

	given := make(map[int64]string, len(answers))
	known := make(map[int64]bool, len(quiz.Questions))
	for _, q := range quiz.Questions {
		known[q.ID] = true
	}
	var unknown []string
	for _, a := range answers {
		if !known[a.QuestionID] {
			unknown = append(unknown, fmt.Sprintf("question %d is not part of quiz %d", a.QuestionID, quizID))
			continue
		}
		given[a.QuestionID] = a.Answer
	}
	if len(unknown) > 0 {
		return nil, apperr.Validation("Invalid answers", unknown)
	}

	attempt := domain.QuizAttempt{
		QuizID:           quizID,
		Subject:          quiz.Subject,
		UserID:           userID,
		ScoreObtained:    decimal.Zero,
		TotalScore:       quiz.TotalScore,
		PassingMarks:     quiz.PassingMarks,
		TotalQuestions:   len(quiz.Questions),
		TimeTakenSeconds: timeTaken,
	}
	for _, q := range quiz.Questions {
		answer := strings.TrimSpace(given[q.ID])
		ans := domain.AttemptAnswer{
			QuestionID:    q.ID,
			QuestionText:  q.Text,
			UserAnswer:    answer,
			CorrectAnswer: q.CorrectAnswer,
			ScoreAwarded:  decimal.Zero,
			MaxScore:      q.Score,
		}
		if answer != "" {
			attempt.QuestionsAnswered++
		}
		if answer != "" && answer == strings.TrimSpace(q.CorrectAnswer) {
			ans.IsCorrect = true
			ans.ScoreAwarded = q.Score
			attempt.ScoreObtained = attempt.ScoreObtained.Add(q.Score)
		}
		attempt.Answers = append(attempt.Answers, ans)
	}
	attempt.Passed = attempt.ScoreObtained.GreaterThanOrEqual(attempt.PassingMarks)

	err = s.Tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		attempt.ID, err = s.Store.CreateAttempt(ctx, attempt)
		return err
	})
	if err != nil {
		return nil, apperr.Internal("failed to submit quiz attempt", err)
	}

	result := "failed"
	if attempt.Passed {
		result = "passed"
	}
	metrics.QuizAttempts.WithLabelValues(result).Inc()
	return &attempt, nil
}

func (s QuizService) Attempt(ctx context.Context, id int64) (*domain.QuizAttempt, error) {
	a, err := s.Store.Attempt(ctx, id)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, apperr.NotFound("Attempt not found")
		}
		return nil, apperr.Internal("failed to fetch attempt", err)
	}
	return a, nil
}

func (s QuizService) AttemptsByUser(ctx context.Context, userID string) ([]domain.QuizAttempt, error) {
	items, err := s.Store.AttemptsByUser(ctx, strings.TrimSpace(userID))
	if err != nil {
		return nil, apperr.Internal("failed to fetch attempts", err)
	}
	return items, nil
}

func (s QuizService) Statistics(ctx context.Context, quizID int64) (*domain.QuizStatistics, error) {
	st, err := s.Store.Statistics(ctx, quizID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, apperr.NotFound("Quiz not found")
		}
		return nil, apperr.Internal("failed to fetch statistics", err)
	}
	return st, nil
}

func buildQuiz(in QuizInput) (domain.Quiz, []domain.QuizQuestion, error) {
	var msgs []string
	subject := strings.TrimSpace(in.Subject)
	if subject == "" {
		msgs = append(msgs, "subject is required")
	}
	if len(in.Questions) == 0 {
		msgs = append(msgs, "at least one question is required")
	}

	timeType := in.TimeType
	if timeType == "" {
		timeType = domain.QuizTimeNone
	}
	switch timeType {
	case domain.QuizTimeNone:
	case domain.QuizTimeTotal:
		if in.TotalTime == nil || *in.TotalTime <= 0 {
			msgs = append(msgs, "totalTime must be positive when timeType is total")
		}
	case domain.QuizTimePerQuestion:
		if in.TimePerQuestion == nil || *in.TimePerQuestion <= 0 {
			msgs = append(msgs, "timePerQuestion must be positive when timeType is per_question")
		}
	default:
		msgs = append(msgs, fmt.Sprintf("invalid timeType %q", timeType))
	}

	total := decimal.Zero
	questions := make([]domain.QuizQuestion, 0, len(in.Questions))
	for i, q := range in.Questions {
		text := strings.TrimSpace(q.Text)
		correct := strings.TrimSpace(q.CorrectAnswer)
		if text == "" {
			msgs = append(msgs, fmt.Sprintf("question %d: text is required", i+1))
		}
		if correct == "" {
			msgs = append(msgs, fmt.Sprintf("question %d: correct answer is required", i+1))
		}
		if !q.Score.IsPositive() {
			msgs = append(msgs, fmt.Sprintf("question %d: score must be positive", i+1))
		}
		wrong := make([]string, 0, len(q.WrongAnswers))
		for _, w := range q.WrongAnswers {
			w = strings.TrimSpace(w)
			if w == "" {
				continue
			}
			if w == correct {
				msgs = append(msgs, fmt.Sprintf("question %d: wrong answer repeats the correct answer", i+1))
			}
			wrong = append(wrong, w)
		}
		total = total.Add(q.Score)
		questions = append(questions, domain.QuizQuestion{
			Text:            text,
			NumberOfChoices: len(wrong) + 1,
			CorrectAnswer:   correct,
			Score:           q.Score,
			Order:           i + 1,
			WrongAnswers:    wrong,
		})
	}
	if in.PassingMarks.IsNegative() || in.PassingMarks.GreaterThan(total) {
		msgs = append(msgs, "passingMarks must be between 0 and the total score")
	}
	if len(msgs) > 0 {
		return domain.Quiz{}, nil, apperr.Validation("Validation failed", msgs)
	}

	quiz := domain.Quiz{
		Subject:         subject,
		PassingMarks:    in.PassingMarks,
		TotalScore:      total,
		TimeType:        timeType,
		TotalTime:       in.TotalTime,
		TimePerQuestion: in.TimePerQuestion,
		IsActive:        true,
	}
	if timeType != domain.QuizTimeTotal {
		quiz.TotalTime = nil
	}
	if timeType != domain.QuizTimePerQuestion {
		quiz.TimePerQuestion = nil
	}
	return quiz, questions, nil
}
