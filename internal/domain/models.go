package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Enumerations
const (
	RoleAdmin UserRole = "Admin"

	StatusYes ItemStatus = "Yes"
	StatusNo  ItemStatus = "No"
	StatusNA  ItemStatus = "NA"

	LifecycleActive  LifecycleState = "active"
	LifecycleDeleted LifecycleState = "deleted"

	LoginSuccess LoginStatus = "Success"
	LoginFailed  LoginStatus = "Failed"

	QuizTimeTotal       QuizTimeType = "total"
	QuizTimePerQuestion QuizTimeType = "per_question"
	QuizTimeNone        QuizTimeType = "none"
)

// Permission names granted to roles.
const (
	PermChecklistManage = "checklist.manage"
	PermVisitSubmit     = "visit.submit"
	PermVisitView       = "visit.view"
	PermQuizManage      = "quiz.manage"
	PermQuizAttempt     = "quiz.attempt"
)

type UserRole string
type ItemStatus string
type LifecycleState string
type LoginStatus string
type QuizTimeType string

// Valid reports whether s is one of Yes, No or NA.
func (s ItemStatus) Valid() bool {
	switch s {
	case StatusYes, StatusNo, StatusNA:
		return true
	}
	return false
}

func (s LifecycleState) Valid() bool {
	return s == LifecycleActive || s == LifecycleDeleted
}

type User struct {
	ID                  int64
	Username            string
	Email               string
	FullName            string
	PasswordHash        string
	IsActive            bool
	FailedLoginAttempts int
	LockedUntil         *time.Time
	LastLoginAt         *time.Time
	PasswordChangedAt   *time.Time
	CreatedAt           time.Time
	Roles               []string
}

// LockedAt reports whether the account lock is still in force at now.
func (u User) LockedAt(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

type Role struct {
	ID              int64
	Name            string
	Description     string
	IsActive        bool
	CreatedAt       time.Time
	UserCount       int
	PermissionCount int
}

type Permission struct {
	ID            int64
	Name          string
	ComponentName string
	Description   string
	IsActive      bool
}

type LoginAudit struct {
	ID            int64
	UserID        *int64
	Username      string
	Status        LoginStatus
	FailureReason string
	IPAddress     string
	UserAgent     string
	LoggedAt      time.Time
}

type Branch struct {
	Code     string
	Name     string
	Division string
	Region   string
	Area     string
}

// ChecklistItem is one row of the evaluation catalog.
type ChecklistItem struct {
	Code           int64
	MasterCategory string
	Category       string
	ActivityText   string
	Weight         decimal.Decimal
	DefaultStatus  ItemStatus
	Responsibility string
	Remarks        string
	State          LifecycleState
	SortIndex      int
	CreatedAt      time.Time
	CreatedBy      string
}

type Visit struct {
	ID          int64
	BranchCode  string
	BranchName  string
	Division    string
	Region      string
	Area        string
	Month       int
	Quarter     int
	Year        int
	VisitedAt   time.Time
	VisitedBy   string
	ApprovedBy  string
	CreatedAt   time.Time
	CreatedBy   string
	Score       decimal.Decimal
}

// Period returns the quarter key of the visit.
func (v Visit) Period() Period {
	return Period{Year: v.Year, Quarter: v.Quarter}
}

// VisitItemResult is the snapshot of one checklist item inside a visit.
type VisitItemResult struct {
	VisitID        int64
	Code           int64
	MasterCategory string
	Category       string
	ActivityText   string
	Weight         decimal.Decimal
	Status         ItemStatus
	Responsibility string
	Remarks        string
	ResultValue    decimal.Decimal
	ImageLinks     [3]string
	VideoLink      string
	SortIndex      int
	CreatedAt      time.Time
	CreatedBy      string
}

type Quiz struct {
	ID              int64
	Subject         string
	PassingMarks    decimal.Decimal
	TotalScore      decimal.Decimal
	TimeType        QuizTimeType
	TotalTime       *int
	TimePerQuestion *int
	CreatedBy       string
	LastEditedBy    string
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
	QuestionCount   int
	Questions       []QuizQuestion
}

type QuizQuestion struct {
	ID              int64
	QuizID          int64
	Text            string
	NumberOfChoices int
	CorrectAnswer   string
	Score           decimal.Decimal
	Order           int
	WrongAnswers    []string
}

type QuizAttempt struct {
	ID                int64
	QuizID            int64
	Subject           string
	UserID            string
	ScoreObtained     decimal.Decimal
	TotalScore        decimal.Decimal
	PassingMarks      decimal.Decimal
	Passed            bool
	QuestionsAnswered int
	TotalQuestions    int
	TimeTakenSeconds  *int
	AttemptedAt       time.Time
	Answers           []AttemptAnswer
}

type AttemptAnswer struct {
	QuestionID    int64
	QuestionText  string
	UserAnswer    string
	CorrectAnswer string
	IsCorrect     bool
	ScoreAwarded  decimal.Decimal
	MaxScore      decimal.Decimal
}

type QuizStatistics struct {
	QuizID        int64
	Subject       string
	TotalAttempts int
	PassedCount   int
	AverageScore  decimal.Decimal
	PassRate      decimal.Decimal
}
