package handler

import (
	"log/slog"
	"math/rand"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"pmsf-backend/internal/domain"
	"pmsf-backend/internal/server/authctx"
	"pmsf-backend/internal/service"
)

// QuizHandler serves quiz authoring and quiz attempts.
type QuizHandler struct {
	Service *service.QuizService
	Logger  *slog.Logger
}

// RegisterRoutes mounts the authoring routes, guarded by quiz.manage.
func (h QuizHandler) RegisterRoutes(r chi.Router) {
	r.Post("/quizzes", h.create)
	r.Post("/quizzes/import", h.importQuestions)
	r.Get("/quizzes/{id}", h.get)
	r.Put("/quizzes/{id}", h.update)
	r.Delete("/quizzes/{id}", h.delete)
	r.Get("/quizzes/{id}/statistics", h.statistics)
}

// RegisterAttemptRoutes mounts the routes used while taking quizzes,
// guarded by quiz.attempt.
func (h QuizHandler) RegisterAttemptRoutes(r chi.Router) {
	r.Get("/quizzes", h.list)
	r.Get("/quizzes/{id}/take", h.take)
	r.Post("/quiz-attempts", h.submitAttempt)
	r.Get("/quiz-attempts/user/{userId}", h.attemptsByUser)
	r.Get("/quiz-attempts/{id}", h.attempt)
}

type questionJSON struct {
	ID            int64       `json:"id,omitempty"`
	QuestionText  string      `json:"questionText" validate:"required"`
	CorrectAnswer string      `json:"correctAnswer" validate:"required"`
	Score         flexDecimal `json:"score"`
	WrongAnswers  []string    `json:"wrongAnswers"`
}

type quizRequest struct {
	Subject         string         `json:"subject" validate:"required,max=200"`
	PassingMarks    flexDecimal    `json:"passingMarks"`
	TimeType        string         `json:"timeType" validate:"omitempty,oneof=total per_question none"`
	TotalTime       *int           `json:"totalTime"`
	TimePerQuestion *int           `json:"timePerQuestion"`
	Questions       []questionJSON `json:"questions" validate:"required,min=1,dive"`
}

func (q quizRequest) input() service.QuizInput {
	in := service.QuizInput{
		Subject:         q.Subject,
		PassingMarks:    q.PassingMarks.Decimal,
		TimeType:        domain.QuizTimeType(q.TimeType),
		TotalTime:       q.TotalTime,
		TimePerQuestion: q.TimePerQuestion,
	}
	if in.TimeType == "" {
		in.TimeType = domain.QuizTimeNone
	}
	for _, qq := range q.Questions {
		in.Questions = append(in.Questions, service.QuestionInput{
			Text:          qq.QuestionText,
			CorrectAnswer: qq.CorrectAnswer,
			Score:         qq.Score.Decimal,
			WrongAnswers:  qq.WrongAnswers,
		})
	}
	return in
}

func quizSummary(q domain.Quiz) map[string]any {
	return map[string]any{
		"id":              q.ID,
		"subject":         q.Subject,
		"passingMarks":    q.PassingMarks,
		"totalScore":      q.TotalScore,
		"timeType":        string(q.TimeType),
		"totalTime":       q.TotalTime,
		"timePerQuestion": q.TimePerQuestion,
		"questionCount":   q.QuestionCount,
		"createdBy":       q.CreatedBy,
		"lastEditedBy":    q.LastEditedBy,
		"createdAt":       q.CreatedAt,
		"updatedAt":       q.UpdatedAt,
	}
}

func attemptResponse(a domain.QuizAttempt) map[string]any {
	answers := make([]map[string]any, 0, len(a.Answers))
	for _, ans := range a.Answers {
		answers = append(answers, map[string]any{
			"questionId":    ans.QuestionID,
			"questionText":  ans.QuestionText,
			"userAnswer":    ans.UserAnswer,
			"correctAnswer": ans.CorrectAnswer,
			"isCorrect":     ans.IsCorrect,
			"scoreAwarded":  ans.ScoreAwarded,
			"maxScore":      ans.MaxScore,
		})
	}
	return map[string]any{
		"id":                a.ID,
		"quizId":            a.QuizID,
		"subject":           a.Subject,
		"userId":            a.UserID,
		"scoreObtained":     a.ScoreObtained,
		"totalScore":        a.TotalScore,
		"passingMarks":      a.PassingMarks,
		"passed":            a.Passed,
		"questionsAnswered": a.QuestionsAnswered,
		"totalQuestions":    a.TotalQuestions,
		"timeTaken":         a.TimeTakenSeconds,
		"attemptedAt":       a.AttemptedAt,
		"answers":           answers,
	}
}

func (h QuizHandler) list(w http.ResponseWriter, r *http.Request) {
	quizzes, err := h.Service.List(r.Context())
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	resp := make([]map[string]any, 0, len(quizzes))
	for _, q := range quizzes {
		resp = append(resp, quizSummary(q))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h QuizHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	q, err := h.Service.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	questions := make([]questionJSON, 0, len(q.Questions))
	for _, qq := range q.Questions {
		questions = append(questions, questionJSON{
			ID:            qq.ID,
			QuestionText:  qq.Text,
			CorrectAnswer: qq.CorrectAnswer,
			Score:         flexDecimal{qq.Score},
			WrongAnswers:  nonNil(qq.WrongAnswers),
		})
	}
	resp := quizSummary(*q)
	resp["questions"] = questions
	writeJSON(w, http.StatusOK, resp)
}

// take returns the quiz without answers. Choices are shuffled per request.
func (h QuizHandler) take(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	q, err := h.Service.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	questions := make([]map[string]any, 0, len(q.Questions))
	for _, qq := range q.Questions {
		choices := append([]string{qq.CorrectAnswer}, qq.WrongAnswers...)
		rand.Shuffle(len(choices), func(i, j int) { choices[i], choices[j] = choices[j], choices[i] })
		questions = append(questions, map[string]any{
			"id":           qq.ID,
			"questionText": qq.Text,
			"score":        qq.Score,
			"choices":      choices,
		})
	}
	resp := quizSummary(*q)
	resp["questions"] = questions
	writeJSON(w, http.StatusOK, resp)
}

func (h QuizHandler) create(w http.ResponseWriter, r *http.Request) {
	var req quizRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	id, err := h.Service.Create(r.Context(), req.input(), actorName(r))
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	writeMessage(w, http.StatusCreated, "Quiz created successfully", map[string]any{"id": id})
}

func (h QuizHandler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req quizRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	if err := h.Service.Update(r.Context(), id, req.input(), actorName(r)); err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	writeMessage(w, http.StatusOK, "Quiz updated successfully", map[string]any{"id": id})
}

func (h QuizHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.Service.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	writeMessage(w, http.StatusOK, "Quiz deleted successfully", nil)
}

// importQuestions parses an uploaded csv or xlsx sheet into questions the
// editor can review before saving.
func (h QuizHandler) importQuestions(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()
	f, fh, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer f.Close()

	questions, err := service.ImportQuestions(fh.Filename, f)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	out := make([]questionJSON, 0, len(questions))
	for _, q := range questions {
		out = append(out, questionJSON{
			QuestionText:  q.Text,
			CorrectAnswer: q.CorrectAnswer,
			Score:         flexDecimal{q.Score},
			WrongAnswers:  nonNil(q.WrongAnswers),
		})
	}
	writeMessage(w, http.StatusOK, "Questions imported successfully", map[string]any{
		"questions": out,
		"count":     len(out),
	})
}

func (h QuizHandler) statistics(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	st, err := h.Service.Statistics(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"quizId":        st.QuizID,
		"subject":       st.Subject,
		"totalAttempts": st.TotalAttempts,
		"passedCount":   st.PassedCount,
		"averageScore":  st.AverageScore,
		"passRate":      st.PassRate,
	})
}

func (h QuizHandler) submitAttempt(w http.ResponseWriter, r *http.Request) {
	user := authctx.FromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req struct {
		QuizID    int64 `json:"quizId" validate:"required,gt=0"`
		TimeTaken *int  `json:"timeTaken" validate:"omitempty,gte=0"`
		Answers   []struct {
			QuestionID int64  `json:"questionId" validate:"required,gt=0"`
			Answer     string `json:"answer"`
		} `json:"answers" validate:"dive"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	answers := make([]service.AnswerInput, len(req.Answers))
	for i, a := range req.Answers {
		answers[i] = service.AnswerInput{QuestionID: a.QuestionID, Answer: a.Answer}
	}
	attempt, err := h.Service.SubmitAttempt(r.Context(), req.QuizID, user.Username, answers, req.TimeTaken)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	writeMessage(w, http.StatusCreated, "Quiz attempt submitted", attemptResponse(*attempt))
}

func (h QuizHandler) attempt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	a, err := h.Service.Attempt(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	if !canSeeAttempts(r, a.UserID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	writeJSON(w, http.StatusOK, attemptResponse(*a))
}

func (h QuizHandler) attemptsByUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if !canSeeAttempts(r, userID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	items, err := h.Service.AttemptsByUser(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	resp := make([]map[string]any, 0, len(items))
	total := decimal.Zero
	for _, a := range items {
		resp = append(resp, attemptResponse(a))
		total = total.Add(a.ScoreObtained)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"attempts":   resp,
		"totalScore": total,
	})
}

// canSeeAttempts allows users to read their own attempts; admins read all.
func canSeeAttempts(r *http.Request, owner string) bool {
	u := authctx.FromContext(r.Context())
	if u == nil {
		return false
	}
	return u.Username == owner || u.HasRole(string(domain.RoleAdmin))
}
