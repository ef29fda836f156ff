package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"pmsf-backend/internal/db"
	"pmsf-backend/internal/domain"
)

type QuizRepository struct {
	DB *db.Postgres
}

const quizColumns = `
	q.id, q.subject, q.passing_marks, q.total_score, q.time_type, q.total_time, q.time_per_question,
	q.created_by, q.last_edited_by, q.is_active, q.created_at, q.updated_at
`

func (r QuizRepository) ListActive(ctx context.Context) ([]domain.Quiz, error) {
	rows, err := r.DB.Conn(ctx).Query(ctx, `
		SELECT `+quizColumns+`,
			(SELECT COUNT(*) FROM quiz_questions qq WHERE qq.quiz_id = q.id)
		FROM quizzes q
		WHERE q.is_active
		ORDER BY q.created_at DESC, q.id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.Quiz
	for rows.Next() {
		var (
			q        domain.Quiz
			timeType string
		)
		if err := rows.Scan(
			&q.ID, &q.Subject, &q.PassingMarks, &q.TotalScore, &timeType, &q.TotalTime, &q.TimePerQuestion,
			&q.CreatedBy, &q.LastEditedBy, &q.IsActive, &q.CreatedAt, &q.UpdatedAt, &q.QuestionCount,
		); err != nil {
			return nil, err
		}
		q.TimeType = domain.QuizTimeType(timeType)
		items = append(items, q)
	}
	return items, rows.Err()
}

// Get loads an active quiz with its ordered questions and wrong answers.
func (r QuizRepository) Get(ctx context.Context, id int64) (*domain.Quiz, error) {
	conn := r.DB.Conn(ctx)
	var (
		q        domain.Quiz
		timeType string
	)
	err := conn.QueryRow(ctx, `SELECT `+quizColumns+` FROM quizzes q WHERE q.id=$1 AND q.is_active`, id).Scan(
		&q.ID, &q.Subject, &q.PassingMarks, &q.TotalScore, &timeType, &q.TotalTime, &q.TimePerQuestion,
		&q.CreatedBy, &q.LastEditedBy, &q.IsActive, &q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	q.TimeType = domain.QuizTimeType(timeType)

	rows, err := conn.Query(ctx, `
		SELECT qq.id, qq.quiz_id, qq.question_text, qq.number_of_choices, qq.correct_answer, qq.score, qq.question_order,
			COALESCE(
				(SELECT array_agg(wa.answer_text ORDER BY wa.answer_order) FROM question_wrong_answers wa WHERE wa.question_id = qq.id),
				'{}'
			)
		FROM quiz_questions qq
		WHERE qq.quiz_id=$1
		ORDER BY qq.question_order, qq.id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var qq domain.QuizQuestion
		if err := rows.Scan(&qq.ID, &qq.QuizID, &qq.Text, &qq.NumberOfChoices, &qq.CorrectAnswer, &qq.Score, &qq.Order, &qq.WrongAnswers); err != nil {
			return nil, err
		}
		q.Questions = append(q.Questions, qq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	q.QuestionCount = len(q.Questions)
	return &q, nil
}

func (r QuizRepository) Create(ctx context.Context, q domain.Quiz) (int64, error) {
	var id int64
	err := r.DB.Conn(ctx).QueryRow(ctx, `
		INSERT INTO quizzes (subject, passing_marks, total_score, time_type, total_time, time_per_question, created_by, last_edited_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
		RETURNING id
	`, q.Subject, q.PassingMarks, q.TotalScore, string(q.TimeType), q.TotalTime, q.TimePerQuestion, q.CreatedBy).Scan(&id)
	return id, err
}

func (r QuizRepository) Update(ctx context.Context, q domain.Quiz) error {
	tag, err := r.DB.Conn(ctx).Exec(ctx, `
		UPDATE quizzes
		SET subject=$2, passing_marks=$3, total_score=$4, time_type=$5, total_time=$6, time_per_question=$7,
			last_edited_by=$8, updated_at=now()
		WHERE id=$1 AND is_active
	`, q.ID, q.Subject, q.PassingMarks, q.TotalScore, string(q.TimeType), q.TotalTime, q.TimePerQuestion, q.LastEditedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceQuestions drops the quiz's questions and inserts the given ones.
// Call inside WithTx.
func (r QuizRepository) ReplaceQuestions(ctx context.Context, quizID int64, questions []domain.QuizQuestion) error {
	conn := r.DB.Conn(ctx)
	if _, err := conn.Exec(ctx, `DELETE FROM quiz_questions WHERE quiz_id=$1`, quizID); err != nil {
		return err
	}

	ids := make([]int64, len(questions))
	batch := &pgx.Batch{}
	for i, qq := range questions {
		i := i
		batch.Queue(`
			INSERT INTO quiz_questions (quiz_id, question_text, number_of_choices, correct_answer, score, question_order)
			VALUES ($1,$2,$3,$4,$5,$6)
			RETURNING id
		`, quizID, qq.Text, qq.NumberOfChoices, qq.CorrectAnswer, qq.Score, qq.Order).QueryRow(func(row pgx.Row) error {
			return row.Scan(&ids[i])
		})
	}
	if err := execBatch(ctx, conn, batch); err != nil {
		return err
	}

	answers := &pgx.Batch{}
	for i, qq := range questions {
		for j, text := range qq.WrongAnswers {
			answers.Queue(`
				INSERT INTO question_wrong_answers (question_id, answer_text, answer_order) VALUES ($1,$2,$3)
			`, ids[i], text, j+1)
		}
	}
	return execBatch(ctx, conn, answers)
}

func (r QuizRepository) Deactivate(ctx context.Context, id int64) error {
	tag, err := r.DB.Conn(ctx).Exec(ctx, `UPDATE quizzes SET is_active=FALSE, updated_at=now() WHERE id=$1 AND is_active`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateAttempt stores the attempt header and its answers. Call inside WithTx.
func (r QuizRepository) CreateAttempt(ctx context.Context, a domain.QuizAttempt) (int64, error) {
	conn := r.DB.Conn(ctx)
	var id int64
	err := conn.QueryRow(ctx, `
		INSERT INTO quiz_attempts
			(quiz_id, user_id, score_obtained, total_score, passing_marks, passed, questions_answered, total_questions, time_taken, attempted_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9, now())
		RETURNING id
	`, a.QuizID, a.UserID, a.ScoreObtained, a.TotalScore, a.PassingMarks, a.Passed, a.QuestionsAnswered, a.TotalQuestions, a.TimeTakenSeconds).Scan(&id)
	if err != nil {
		return 0, err
	}

	batch := &pgx.Batch{}
	for i, ans := range a.Answers {
		batch.Queue(`
			INSERT INTO attempt_answers
				(attempt_id, question_id, question_text, user_answer, correct_answer, is_correct, score_awarded, max_score, answer_order)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, id, ans.QuestionID, ans.QuestionText, ans.UserAnswer, ans.CorrectAnswer, ans.IsCorrect, ans.ScoreAwarded, ans.MaxScore, i+1)
	}
	if err := execBatch(ctx, conn, batch); err != nil {
		return 0, err
	}
	return id, nil
}

const attemptColumns = `
	a.id, a.quiz_id, q.subject, a.user_id, a.score_obtained, a.total_score, a.passing_marks, a.passed,
	a.questions_answered, a.total_questions, a.time_taken, a.attempted_at
`

func scanAttempt(row pgx.Row) (*domain.QuizAttempt, error) {
	var a domain.QuizAttempt
	if err := row.Scan(
		&a.ID, &a.QuizID, &a.Subject, &a.UserID, &a.ScoreObtained, &a.TotalScore, &a.PassingMarks, &a.Passed,
		&a.QuestionsAnswered, &a.TotalQuestions, &a.TimeTakenSeconds, &a.AttemptedAt,
	); err != nil {
		return nil, err
	}
	return &a, nil
}

// Attempt loads one attempt with its answers in answer order.
func (r QuizRepository) Attempt(ctx context.Context, id int64) (*domain.QuizAttempt, error) {
	conn := r.DB.Conn(ctx)
	a, err := scanAttempt(conn.QueryRow(ctx, `
		SELECT `+attemptColumns+`
		FROM quiz_attempts a
		JOIN quizzes q ON q.id = a.quiz_id
		WHERE a.id=$1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rows, err := conn.Query(ctx, `
		SELECT question_id, question_text, user_answer, correct_answer, is_correct, score_awarded, max_score
		FROM attempt_answers
		WHERE attempt_id=$1
		ORDER BY answer_order
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var ans domain.AttemptAnswer
		if err := rows.Scan(&ans.QuestionID, &ans.QuestionText, &ans.UserAnswer, &ans.CorrectAnswer, &ans.IsCorrect, &ans.ScoreAwarded, &ans.MaxScore); err != nil {
			return nil, err
		}
		a.Answers = append(a.Answers, ans)
	}
	return a, rows.Err()
}

func (r QuizRepository) AttemptsByUser(ctx context.Context, userID string) ([]domain.QuizAttempt, error) {
	rows, err := r.DB.Conn(ctx).Query(ctx, `
		SELECT `+attemptColumns+`
		FROM quiz_attempts a
		JOIN quizzes q ON q.id = a.quiz_id
		WHERE a.user_id=$1
		ORDER BY a.attempted_at DESC, a.id DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.QuizAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *a)
	}
	return items, rows.Err()
}

func (r QuizRepository) Statistics(ctx context.Context, quizID int64) (*domain.QuizStatistics, error) {
	var s domain.QuizStatistics
	err := r.DB.Conn(ctx).QueryRow(ctx, `
		SELECT q.id, q.subject,
			COUNT(a.id),
			COUNT(a.id) FILTER (WHERE a.passed),
			COALESCE(ROUND(AVG(a.score_obtained), 2), 0),
			CASE WHEN COUNT(a.id) = 0 THEN 0
				ELSE ROUND(COUNT(a.id) FILTER (WHERE a.passed) * 100.0 / COUNT(a.id), 2) END
		FROM quizzes q
		LEFT JOIN quiz_attempts a ON a.quiz_id = q.id
		WHERE q.id=$1
		GROUP BY q.id, q.subject
	`, quizID).Scan(&s.QuizID, &s.Subject, &s.TotalAttempts, &s.PassedCount, &s.AverageScore, &s.PassRate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}
