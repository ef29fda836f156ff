package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"pmsf-backend/internal/apperr"
	"pmsf-backend/internal/domain"
	"pmsf-backend/internal/service"
)

// VisitHandler serves visit entry, editing and the read-only viewer.
type VisitHandler struct {
	Service  *service.VisitService
	Location *time.Location
	Logger   *slog.Logger
}

// RegisterEntryRoutes mounts the routes that create or change visits.
func (h VisitHandler) RegisterEntryRoutes(r chi.Router) {
	r.Get("/check-visit/{branchCode}", h.checkVisit)
	r.Post("/submit-pmsf-form", h.submit)
	r.Post("/update-pmsf-form", h.update)
}

// RegisterViewRoutes mounts the read-only routes.
func (h VisitHandler) RegisterViewRoutes(r chi.Router) {
	r.Get("/pmsf-data/{visitId}", h.byID)
	r.Get("/visit-data/{branchCode}/{year}/{quarter}", h.byPeriod)
	r.Get("/visit-data/{branchCode}/{year}/{quarter}/export", h.export)
	r.Get("/previous-quarter/{branchCode}/{year}/{quarter}", h.previousQuarter)
}

type activityJSON struct {
	Code           int64       `json:"code" validate:"required,gt=0"`
	MasterCat      string      `json:"masterCat" validate:"max=100"`
	Category       string      `json:"category" validate:"max=100"`
	Activity       string      `json:"activity" validate:"max=150"`
	Weightage      flexDecimal `json:"weightage"`
	VStatus        string      `json:"vStatus"`
	Responsibility string      `json:"responsibility" validate:"max=25"`
	Remarks        string      `json:"remarks" validate:"max=255"`
	ImgLink1       string      `json:"imglink1"`
	ImgLink2       string      `json:"imglink2"`
	ImgLink3       string      `json:"imglink3"`
	VideoLink      string      `json:"videolink"`
	Indexing       int         `json:"indexing"`
}

func (a activityJSON) input() service.ActivityInput {
	return service.ActivityInput{
		Code:           a.Code,
		MasterCategory: a.MasterCat,
		Category:       a.Category,
		ActivityText:   a.Activity,
		Weight:         a.Weightage.Decimal,
		Status:         domain.ItemStatus(a.VStatus),
		Responsibility: a.Responsibility,
		Remarks:        a.Remarks,
		ImageLinks:     [3]string{a.ImgLink1, a.ImgLink2, a.ImgLink3},
		VideoLink:      a.VideoLink,
		SortIndex:      a.Indexing,
	}
}

func activityInputs(in []activityJSON) []service.ActivityInput {
	out := make([]service.ActivityInput, len(in))
	for i, a := range in {
		out[i] = a.input()
	}
	return out
}

type itemResponse struct {
	Code           int64           `json:"code"`
	MasterCat      string          `json:"masterCat"`
	Category       string          `json:"category"`
	Activity       string          `json:"activity"`
	Weightage      decimal.Decimal `json:"weightage"`
	VStatus        string          `json:"vStatus"`
	Responsibility string          `json:"responsibility"`
	Remarks        string          `json:"remarks"`
	Result         decimal.Decimal `json:"result"`
	ImgLink1       string          `json:"imglink1"`
	ImgLink2       string          `json:"imglink2"`
	ImgLink3       string          `json:"imglink3"`
	VideoLink      string          `json:"videolink"`
	Indexing       int             `json:"indexing"`
}

func itemResponses(items []domain.VisitItemResult) []itemResponse {
	out := make([]itemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, itemResponse{
			Code:           it.Code,
			MasterCat:      it.MasterCategory,
			Category:       it.Category,
			Activity:       it.ActivityText,
			Weightage:      it.Weight,
			VStatus:        string(it.Status),
			Responsibility: it.Responsibility,
			Remarks:        it.Remarks,
			Result:         it.ResultValue,
			ImgLink1:       it.ImageLinks[0],
			ImgLink2:       it.ImageLinks[1],
			ImgLink3:       it.ImageLinks[2],
			VideoLink:      it.VideoLink,
			Indexing:       it.SortIndex,
		})
	}
	return out
}

func visitResponse(v domain.Visit) map[string]any {
	return map[string]any{
		"visitcode":     v.ID,
		"branchCode":    v.BranchCode,
		"branchName":    v.BranchName,
		"division":      v.Division,
		"region":        v.Region,
		"area":          v.Area,
		"month":         v.Month,
		"quarter":       v.Quarter,
		"year":          v.Year,
		"visitDateTime": v.VisitedAt,
		"visitedBy":     v.VisitedBy,
		"approvedBy":    v.ApprovedBy,
		"score":         v.Score,
	}
}

func detailResponse(d *service.VisitDetail) map[string]any {
	return map[string]any{
		"visit":      visitResponse(d.Visit),
		"activities": itemResponses(d.Items),
	}
}

func (h VisitHandler) checkVisit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	year, errY := strconv.Atoi(q.Get("visitYear"))
	quarter, errQ := strconv.Atoi(q.Get("visitQuarter"))
	if errY != nil || errQ != nil {
		writeError(w, http.StatusBadRequest, "Visit date details (month, quarter, year) are required")
		return
	}
	period := domain.Period{Year: year, Quarter: quarter}
	if m := q.Get("visitMonth"); m != "" {
		month, err := strconv.Atoi(m)
		if err != nil || !period.Contains(month) {
			writeError(w, http.StatusBadRequest, "visitMonth does not belong to visitQuarter")
			return
		}
	}

	out, err := h.Service.CheckVisit(r.Context(), chi.URLParam(r, "branchCode"), period)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	var existing any
	if v := out.Decision.Existing; v != nil {
		existing = visitResponse(*v)
	}
	writeMessage(w, http.StatusOK, out.Decision.Message, map[string]any{
		"existingVisit": existing,
		"state":         string(out.Decision.State),
		"canEdit":       out.Decision.CanEdit,
		"visitAllowed":  out.Decision.VisitAllowed,
		"pmsfData":      checklistItems(out.Checklist),
	})
}

func (h VisitHandler) submit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FormInfo struct {
			BranchCode       string `json:"branchCode" validate:"required,max=3"`
			BranchName       string `json:"branchName" validate:"max=100"`
			VisitDate        string `json:"visitDate"`
			ApprovedBy       string `json:"approvedBy" validate:"required,max=128"`
			Division         string `json:"division" validate:"max=20"`
			Region           string `json:"region" validate:"max=100"`
			Area             string `json:"area" validate:"max=100"`
			VisitOfficerName string `json:"visitOfficerName" validate:"max=128"`
		} `json:"formInfo"`
		Activities []activityJSON `json:"activities" validate:"required,min=1,dive"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	visitedAt, err := h.parseVisitDate(req.FormInfo.VisitDate)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}

	res, err := h.Service.Submit(r.Context(), service.VisitHeader{
		BranchCode:   req.FormInfo.BranchCode,
		BranchName:   req.FormInfo.BranchName,
		Division:     req.FormInfo.Division,
		Region:       req.FormInfo.Region,
		Area:         req.FormInfo.Area,
		VisitedAt:    visitedAt,
		ApprovedBy:   req.FormInfo.ApprovedBy,
		VisitOfficer: req.FormInfo.VisitOfficerName,
	}, activityInputs(req.Activities))
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	writeMessage(w, http.StatusCreated, "Form submitted successfully", map[string]any{
		"visitcode":     res.VisitID,
		"score":         res.Score,
		"insertedCount": res.Items,
	})
}

func (h VisitHandler) update(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VisitCode  int64          `json:"visitcode" validate:"required,gt=0"`
		Activities []activityJSON `json:"activities" validate:"required,min=1,dive"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	res, err := h.Service.Update(r.Context(), req.VisitCode, activityInputs(req.Activities))
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	writeMessage(w, http.StatusOK, "Form updated successfully", map[string]any{
		"visitcode":    res.VisitID,
		"score":        res.Score,
		"updatedCount": res.Updated,
	})
}

func (h VisitHandler) byID(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "visitId")
	if !ok {
		return
	}
	d, err := h.Service.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, detailResponse(d))
}

func (h VisitHandler) byPeriod(w http.ResponseWriter, r *http.Request) {
	branch, period, ok := periodParams(w, r)
	if !ok {
		return
	}
	d, err := h.Service.ByPeriod(r.Context(), branch, period)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, detailResponse(d))
}

func (h VisitHandler) export(w http.ResponseWriter, r *http.Request) {
	branch, period, ok := periodParams(w, r)
	if !ok {
		return
	}
	d, err := h.Service.ByPeriod(r.Context(), branch, period)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	t := table{
		Sheet: "Visit",
		Header: []string{"Branch", "Branch Name", "Quarter", "Year", "Visited At", "Visited By", "Score",
			"Code", "Master Category", "Category", "Activity", "Weight", "Status", "Responsibility", "Remarks", "Result"},
	}
	v := d.Visit
	for _, it := range d.Items {
		t.Rows = append(t.Rows, []any{
			v.BranchCode, v.BranchName, v.Quarter, v.Year, v.VisitedAt, v.VisitedBy, v.Score,
			it.Code, it.MasterCategory, it.Category, it.ActivityText, it.Weight, string(it.Status), it.Responsibility, it.Remarks, it.ResultValue,
		})
	}
	writeExport(w, r, fmt.Sprintf("visit_%s_Q%d_%d", v.BranchCode, v.Quarter, v.Year), t)
}

func (h VisitHandler) previousQuarter(w http.ResponseWriter, r *http.Request) {
	branch, period, ok := periodParams(w, r)
	if !ok {
		return
	}
	cmp, err := h.Service.PreviousQuarter(r.Context(), branch, period)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	if cmp.Visit == nil {
		writeMessage(w, http.StatusOK, "No previous quarter entry found", map[string]any{
			"previousEntry": nil,
			"year":          cmp.Period.Year,
			"quarter":       cmp.Period.Quarter,
		})
		return
	}
	byCode := make(map[string]itemResponse, len(cmp.Items))
	for code, it := range cmp.Items {
		byCode[strconv.FormatInt(code, 10)] = itemResponses([]domain.VisitItemResult{it})[0]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"previousEntry": map[string]any{
			"visit":           visitResponse(*cmp.Visit),
			"activities":      byCode,
			"previousNoCodes": cmp.Flagged,
		},
		"year":    cmp.Period.Year,
		"quarter": cmp.Period.Quarter,
	})
}

func periodParams(w http.ResponseWriter, r *http.Request) (string, domain.Period, bool) {
	branch := strings.TrimSpace(chi.URLParam(r, "branchCode"))
	year, errY := strconv.Atoi(chi.URLParam(r, "year"))
	quarter, errQ := strconv.Atoi(chi.URLParam(r, "quarter"))
	p := domain.Period{Year: year, Quarter: quarter}
	if branch == "" || errY != nil || errQ != nil || !p.Valid() {
		writeError(w, http.StatusBadRequest, "Branch code, year and quarter are required")
		return "", domain.Period{}, false
	}
	return branch, p, true
}

var visitDateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02"}

// parseVisitDate reads the form's visit date in the configured zone. An
// empty value means now.
func (h VisitHandler) parseVisitDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	loc := h.Location
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range visitDateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, apperr.Validation("invalid visitDate", map[string]string{"visitDate": "must be an ISO date or date-time"})
}
