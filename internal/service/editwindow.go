package service

import (
	"time"

	"pmsf-backend/internal/domain"
)

// GraceDays is the last day of a month on which the previous month's visit
// may still be corrected.
const GraceDays = 7

type EditState string

const (
	EditStateNoVisit  EditState = "no_visit"
	EditStateEditable EditState = "editable"
	EditStateLocked   EditState = "locked"
)

// EditDecision is the outcome of the edit-window policy for one
// (branch, quarter, year) key.
type EditDecision struct {
	State        EditState
	CanEdit      bool
	VisitAllowed bool
	Message      string
	Existing     *domain.Visit
}

// EvaluateEditWindow decides whether a visit key may be created or edited
// today. existing is nil when no visit is stored for the key.
func EvaluateEditWindow(existing *domain.Visit, today time.Time) EditDecision {
	if existing == nil {
		return EditDecision{
			State:        EditStateNoVisit,
			VisitAllowed: true,
			Message:      "No existing entry for this quarter. New entry allowed.",
		}
	}

	curYear, curMonth := today.Year(), int(today.Month())
	stored := existing.Year*12 + existing.Month
	current := curYear*12 + curMonth

	switch {
	case stored < current:
		if existing.Year == curYear && today.Day() <= GraceDays {
			return EditDecision{
				State:        EditStateEditable,
				CanEdit:      true,
				VisitAllowed: true,
				Message:      "Entry already done for this quarter (previous month). Edit allowed until 7th of current month.",
				Existing:     existing,
			}
		}
		return EditDecision{
			State:    EditStateLocked,
			Message:  "Entry already done for this quarter (previous month). Edit period expired (allowed only until 7th).",
			Existing: existing,
		}
	case stored == current:
		return EditDecision{
			State:        EditStateEditable,
			CanEdit:      true,
			VisitAllowed: true,
			Message:      "Entry already done for this quarter (current month). Edit allowed.",
			Existing:     existing,
		}
	default:
		return EditDecision{
			State:        EditStateEditable,
			CanEdit:      true,
			VisitAllowed: true,
			Message:      "Entry already done for this quarter. Edit allowed.",
			Existing:     existing,
		}
	}
}
