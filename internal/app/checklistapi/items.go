package checklistapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/checklist-api/project/internal/app/checklist"
)

type itemBody struct {
	Description *string    `json:"description"`
	Due         *Timestamp `json:"due"`
	Urgency     *int       `json:"urgency"`
	AssigneeID  *string    `json:"assignee_id"`
}

func (b itemBody) changes() checklist.ItemChanges {
	return checklist.ItemChanges{
		Description: b.Description,
		Due:         b.Due.ptr(),
		Urgency:     b.Urgency,
		AssigneeID:  b.AssigneeID,
	}
}

type itemRequest struct {
	Data struct {
		Attributes itemBody `json:"attributes"`
	} `json:"data"`
}

type bulkRequest struct {
	Data []struct {
		ID         string   `json:"id"`
		Action     string   `json:"action"`
		Attributes itemBody `json:"attributes"`
	} `json:"data"`
}

type bulkResult struct {
	ID     string `json:"id"`
	Action string `json:"action"`
	Status int    `json:"status"`
}

type completionRequest struct {
	Data []struct {
		ItemID string `json:"item_id"`
	} `json:"data"`
}

type completionResult struct {
	ID          string `json:"id"`
	ItemID      string `json:"item_id"`
	IsCompleted bool   `json:"is_completed"`
	ChecklistID string `json:"checklist_id"`
}

func (h *Handler) handleListItems(w http.ResponseWriter, r *http.Request) {
	p := parsePage(r)
	rows, total, err := h.Service.ListItems(r.Context(), p.page())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	data := make([]itemResource, 0, len(rows))
	for _, it := range rows {
		data = append(data, h.enc.item(it))
	}
	h.writeJSON(w, http.StatusOK, paginate(h.enc.baseURL, "/checklists/items", p, total, data))
}

func (h *Handler) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if !h.decode(w, r, &req) {
		return
	}
	attrs := req.Data.Attributes
	in := checklist.NewItem{
		Due:        attrs.Due.ptr(),
		Urgency:    attrs.Urgency,
		AssigneeID: attrs.AssigneeID,
	}
	if attrs.Description != nil {
		in.Description = *attrs.Description
	}
	_, item, err := h.Service.CreateItem(r.Context(), chi.URLParam(r, "checklistID"), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, single[itemResource]{Data: h.enc.item(item)})
}

func (h *Handler) handleGetItem(w http.ResponseWriter, r *http.Request) {
	_, item, err := h.Service.GetItem(r.Context(), chi.URLParam(r, "checklistID"), chi.URLParam(r, "itemID"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, single[itemResource]{Data: h.enc.item(item)})
}

func (h *Handler) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if !h.decode(w, r, &req) {
		return
	}
	_, item, err := h.Service.UpdateItem(r.Context(), chi.URLParam(r, "checklistID"), chi.URLParam(r, "itemID"), req.Data.Attributes.changes())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, single[itemResource]{Data: h.enc.item(item)})
}

func (h *Handler) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteItem(r.Context(), chi.URLParam(r, "checklistID"), chi.URLParam(r, "itemID")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleBulkItems(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if !h.decode(w, r, &req) {
		return
	}
	changes := make([]checklist.BulkItemChange, 0, len(req.Data))
	for _, entry := range req.Data {
		changes = append(changes, checklist.BulkItemChange{
			ID:      entry.ID,
			Action:  entry.Action,
			Changes: entry.Attributes.changes(),
		})
	}
	results, err := h.Service.BulkUpdateItems(r.Context(), chi.URLParam(r, "checklistID"), changes)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	data := make([]bulkResult, 0, len(results))
	for _, res := range results {
		data = append(data, bulkResult{ID: res.ID, Action: res.Action, Status: res.Status})
	}
	h.writeJSON(w, http.StatusOK, single[[]bulkResult]{Data: data})
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	h.setCompletion(w, r, true)
}

func (h *Handler) handleIncomplete(w http.ResponseWriter, r *http.Request) {
	h.setCompletion(w, r, false)
}

func (h *Handler) setCompletion(w http.ResponseWriter, r *http.Request, completed bool) {
	var req completionRequest
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.Data) == 0 {
		h.writeError(w, http.StatusUnprocessableEntity, checklist.ErrValidation.Error()+": data")
		return
	}
	ids := make([]string, 0, len(req.Data))
	for _, entry := range req.Data {
		ids = append(ids, entry.ItemID)
	}
	results, err := h.Service.SetCompletion(r.Context(), ids, completed)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	data := make([]completionResult, 0, len(results))
	for _, res := range results {
		data = append(data, completionResult{
			ID:          res.ItemID,
			ItemID:      res.ItemID,
			IsCompleted: res.IsCompleted,
			ChecklistID: res.ChecklistID,
		})
	}
	h.writeJSON(w, http.StatusOK, single[[]completionResult]{Data: data})
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	loc := time.UTC
	if tz := strings.TrimSpace(q.Get("tz")); tz != "" {
		parsed, err := time.LoadLocation(tz)
		if err != nil {
			h.writeError(w, http.StatusUnprocessableEntity, "unknown tz "+tz)
			return
		}
		loc = parsed
	}
	summary, err := h.Service.Summary(r.Context(), checklist.SummaryQuery{
		ObjectDomain: strings.TrimSpace(q.Get("object_domain")),
		Location:     loc,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, single[checklist.Summary]{Data: summary})
}
