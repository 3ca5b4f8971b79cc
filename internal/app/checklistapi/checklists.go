package checklistapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/checklist-api/project/internal/app/checklist"
)

type createChecklistRequest struct {
	Data struct {
		Attributes struct {
			ObjectDomain string     `json:"object_domain"`
			ObjectID     string     `json:"object_id"`
			Description  string     `json:"description"`
			Due          *Timestamp `json:"due"`
			Urgency      *int       `json:"urgency"`
			TaskID       *int       `json:"task_id"`
			Items        []string   `json:"items"`
		} `json:"attributes"`
	} `json:"data"`
}

type updateChecklistRequest struct {
	Data struct {
		Attributes struct {
			ObjectDomain string     `json:"object_domain"`
			ObjectID     string     `json:"object_id"`
			Description  string     `json:"description"`
			IsCompleted  *bool      `json:"is_completed"`
			CompletedAt  *Timestamp `json:"completed_at"`
		} `json:"attributes"`
	} `json:"data"`
}

type single[T any] struct {
	Data T `json:"data"`
}

func (h *Handler) handleListChecklists(w http.ResponseWriter, r *http.Request) {
	p := parsePage(r)
	rows, total, err := h.Service.ListChecklists(r.Context(), p.page())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	render := h.enc.checklist
	if r.URL.Query().Get("include") == "items" {
		render = h.enc.checklistWithItems
	}
	data := make([]checklistResource, 0, len(rows))
	for _, c := range rows {
		data = append(data, render(c))
	}
	h.writeJSON(w, http.StatusOK, paginate(h.enc.baseURL, "/checklists", p, total, data))
}

func (h *Handler) handleCreateChecklist(w http.ResponseWriter, r *http.Request) {
	var req createChecklistRequest
	if !h.decode(w, r, &req) {
		return
	}
	attrs := req.Data.Attributes
	c, err := h.Service.CreateChecklist(r.Context(), checklist.NewChecklist{
		ObjectDomain: attrs.ObjectDomain,
		ObjectID:     attrs.ObjectID,
		Description:  attrs.Description,
		Due:          attrs.Due.ptr(),
		Urgency:      attrs.Urgency,
		TaskID:       attrs.TaskID,
		Items:        attrs.Items,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, single[checklistResource]{Data: h.enc.checklist(c)})
}

func (h *Handler) handleGetChecklist(w http.ResponseWriter, r *http.Request) {
	c, err := h.Service.GetChecklist(r.Context(), chi.URLParam(r, "checklistID"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, single[checklistResource]{Data: h.enc.checklist(c)})
}

func (h *Handler) handleGetChecklistItems(w http.ResponseWriter, r *http.Request) {
	c, err := h.Service.GetChecklist(r.Context(), chi.URLParam(r, "checklistID"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, single[checklistResource]{Data: h.enc.checklistWithItems(c)})
}

func (h *Handler) handleUpdateChecklist(w http.ResponseWriter, r *http.Request) {
	var req updateChecklistRequest
	if !h.decode(w, r, &req) {
		return
	}
	attrs := req.Data.Attributes
	c, err := h.Service.UpdateChecklist(r.Context(), chi.URLParam(r, "checklistID"), checklist.ChecklistChanges{
		ObjectDomain: attrs.ObjectDomain,
		ObjectID:     attrs.ObjectID,
		Description:  attrs.Description,
		IsCompleted:  attrs.IsCompleted,
		CompletedAt:  attrs.CompletedAt.ptr(),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, single[checklistResource]{Data: h.enc.checklist(c)})
}

func (h *Handler) handleDeleteChecklist(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteChecklist(r.Context(), chi.URLParam(r, "checklistID")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
