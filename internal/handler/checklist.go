package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"pmsf-backend/internal/apperr"
	"pmsf-backend/internal/domain"
	"pmsf-backend/internal/server/authctx"
	"pmsf-backend/internal/service"
)

// ChecklistHandler serves the checklist master data under /pmsf-master.
type ChecklistHandler struct {
	Service *service.ChecklistService
	Logger  *slog.Logger
}

// RegisterReadRoutes mounts the listing for any signed-in user.
func (h ChecklistHandler) RegisterReadRoutes(r chi.Router) {
	r.Get("/pmsf-master", h.list)
}

// RegisterRoutes mounts the editor routes; callers guard them with the
// checklist.manage permission.
func (h ChecklistHandler) RegisterRoutes(r chi.Router) {
	r.Get("/pmsf-master/next-codes", h.nextCodes)
	r.Get("/pmsf-master/export", h.export)
	r.Post("/pmsf-master", h.add)
	r.Put("/pmsf-master/bulk-update", h.bulkUpdate)
	r.Post("/pmsf-master/sync", h.sync)
	r.Put("/pmsf-master/{code}", h.update)
	r.Delete("/pmsf-master/{code}", h.delete)
}

// checklistRecord keeps the column names the editor has always used.
type checklistRecord struct {
	Code           flexInt     `json:"Code"`
	MasterCat      string      `json:"MasterCat"`
	Category       string      `json:"Category"`
	Activity       string      `json:"Activity"`
	Remarks        string      `json:"Remarks"`
	Weightage      flexDecimal `json:"Weightage"`
	VStatus        string      `json:"V_Status"`
	Responsibility string      `json:"Responsibility"`
	CheckStatus    string      `json:"check_Status"`
	Indexing       flexInt     `json:"Indexing"`
}

func (c checklistRecord) input() service.ChecklistInput {
	return service.ChecklistInput{
		Code:           int64(c.Code),
		MasterCategory: c.MasterCat,
		Category:       c.Category,
		ActivityText:   c.Activity,
		Weight:         c.Weightage.Decimal,
		DefaultStatus:  domain.ItemStatus(c.VStatus),
		Responsibility: c.Responsibility,
		Remarks:        c.Remarks,
		State:          domain.LifecycleState(c.CheckStatus),
		SortIndex:      int(c.Indexing),
	}
}

type checklistResponse struct {
	Code           int64           `json:"Code"`
	MasterCat      string          `json:"MasterCat"`
	Category       string          `json:"Category"`
	Activity       string          `json:"Activity"`
	Remarks        string          `json:"Remarks"`
	Weightage      decimal.Decimal `json:"Weightage"`
	VStatus        string          `json:"V_Status"`
	Responsibility string          `json:"Responsibility"`
	CheckStatus    string          `json:"check_Status"`
	CreatedOn      time.Time       `json:"CreatedOn"`
	CreatedBy      string          `json:"CreatedBy"`
	Indexing       int             `json:"Indexing"`
}

func checklistItems(items []domain.ChecklistItem) []checklistResponse {
	out := make([]checklistResponse, 0, len(items))
	for _, it := range items {
		out = append(out, checklistResponse{
			Code:           it.Code,
			MasterCat:      it.MasterCategory,
			Category:       it.Category,
			Activity:       it.ActivityText,
			Remarks:        it.Remarks,
			Weightage:      it.Weight,
			VStatus:        string(it.DefaultStatus),
			Responsibility: it.Responsibility,
			CheckStatus:    string(it.State),
			CreatedOn:      it.CreatedAt,
			CreatedBy:      it.CreatedBy,
			Indexing:       it.SortIndex,
		})
	}
	return out
}

func actorName(r *http.Request) string {
	if u := authctx.FromContext(r.Context()); u != nil {
		return u.Username
	}
	return "system"
}

func (h ChecklistHandler) list(w http.ResponseWriter, r *http.Request) {
	items, err := h.Service.List(r.Context())
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, checklistItems(items))
}

func (h ChecklistHandler) nextCodes(w http.ResponseWriter, r *http.Request) {
	count, _ := strconv.Atoi(r.URL.Query().Get("count"))
	codes, err := h.Service.NextCodes(r.Context(), count)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"codes": codes})
}

func (h ChecklistHandler) add(w http.ResponseWriter, r *http.Request) {
	var req checklistRecord
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	code, err := h.Service.Add(r.Context(), req.input(), actorName(r))
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	writeMessage(w, http.StatusCreated, "Record added successfully", map[string]any{"Code": code})
}

func (h ChecklistHandler) update(w http.ResponseWriter, r *http.Request) {
	code, ok := pathID(w, r, "code")
	if !ok {
		return
	}
	var req checklistRecord
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := h.Service.Update(r.Context(), code, req.input()); err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	writeMessage(w, http.StatusOK, "Record updated successfully", nil)
}

func (h ChecklistHandler) delete(w http.ResponseWriter, r *http.Request) {
	code, ok := pathID(w, r, "code")
	if !ok {
		return
	}
	if err := h.Service.Delete(r.Context(), code); err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	writeMessage(w, http.StatusOK, "Record marked as deleted", nil)
}

func decodeRecords(r *http.Request) ([]service.ChecklistInput, error) {
	var body recordsBody[checklistRecord]
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, apperr.Validation("records array is required", nil)
	}
	out := make([]service.ChecklistInput, len(body))
	for i, rec := range body {
		out[i] = rec.input()
	}
	return out, nil
}

func (h ChecklistHandler) bulkUpdate(w http.ResponseWriter, r *http.Request) {
	rows, err := decodeRecords(r)
	if err == nil && len(rows) == 0 {
		err = apperr.Validation("records array is required", nil)
	}
	if err == nil {
		err = h.Service.BulkUpdate(r.Context(), rows)
	}
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	writeMessage(w, http.StatusOK, "Records updated successfully", map[string]any{"updated": len(rows)})
}

func (h ChecklistHandler) sync(w http.ResponseWriter, r *http.Request) {
	rows, err := decodeRecords(r)
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	results, err := h.Service.Sync(r.Context(), rows, actorName(r))
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	resp := make([]map[string]any, 0, len(results))
	for _, res := range results {
		resp = append(resp, map[string]any{
			"index":      res.Index,
			"clientCode": res.ClientCode,
			"Code":       res.Code,
			"action":     string(res.Action),
			"state":      string(res.State),
			"Indexing":   res.SortIndex,
		})
	}
	writeMessage(w, http.StatusOK, "Records synchronized successfully", resp)
}

func (h ChecklistHandler) export(w http.ResponseWriter, r *http.Request) {
	items, err := h.Service.List(r.Context())
	if err != nil {
		writeServiceError(w, r, h.Logger, err)
		return
	}
	t := table{
		Sheet:  "Checklist",
		Header: []string{"Code", "Index", "Master Category", "Category", "Activity", "Weight", "Default Status", "Responsibility", "Remarks"},
	}
	for _, it := range items {
		t.Rows = append(t.Rows, []any{
			it.Code, it.SortIndex, it.MasterCategory, it.Category, it.ActivityText,
			it.Weight, string(it.DefaultStatus), it.Responsibility, it.Remarks,
		})
	}
	writeExport(w, r, "pmsf_master", t)
}
