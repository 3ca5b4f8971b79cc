package checklistapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/checklist-api/project/internal/app/checklist"
)

// templateRequest accepts the attributes either under data.attributes or
// directly under data, which is what older clients send on update.
type templateRequest struct {
	Data struct {
		Attributes *templateAttributes `json:"attributes"`
		templateAttributes
	} `json:"data"`
}

func (req templateRequest) spec() checklist.TemplateSpec {
	if req.Data.Attributes != nil {
		return req.Data.Attributes.spec()
	}
	return req.Data.templateAttributes.spec()
}

type assignRequest struct {
	Data []struct {
		Attributes struct {
			ObjectDomain string `json:"object_domain"`
			ObjectID     string `json:"object_id"`
		} `json:"attributes"`
	} `json:"data"`
}

type assignEnvelope struct {
	Meta     meta                `json:"meta"`
	Data     []checklistResource `json:"data"`
	Included []itemResource      `json:"included"`
}

func (h *Handler) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	p := parsePage(r)
	rows, total, err := h.Service.ListTemplates(r.Context(), p.page())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	data := make([]templateResource, 0, len(rows))
	for _, t := range rows {
		data = append(data, h.enc.template(t))
	}
	h.writeJSON(w, http.StatusOK, paginate(h.enc.baseURL, "/checklists/templates", p, total, data))
}

func (h *Handler) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if !h.decode(w, r, &req) {
		return
	}
	t, err := h.Service.CreateTemplate(r.Context(), req.spec())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, single[templateResource]{Data: h.enc.template(t)})
}

func (h *Handler) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := h.Service.GetTemplate(r.Context(), chi.URLParam(r, "templateID"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, single[templateResource]{Data: h.enc.template(t)})
}

func (h *Handler) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if !h.decode(w, r, &req) {
		return
	}
	t, err := h.Service.UpdateTemplate(r.Context(), chi.URLParam(r, "templateID"), req.spec())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, single[templateResource]{Data: h.enc.template(t)})
}

func (h *Handler) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteTemplate(r.Context(), chi.URLParam(r, "templateID")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAssignTemplate(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if !h.decode(w, r, &req) {
		return
	}
	targets := make([]checklist.AssignTarget, 0, len(req.Data))
	for _, entry := range req.Data {
		targets = append(targets, checklist.AssignTarget{
			ObjectDomain: entry.Attributes.ObjectDomain,
			ObjectID:     entry.Attributes.ObjectID,
		})
	}

	assignments, err := h.Service.AssignTemplate(r.Context(), chi.URLParam(r, "templateID"), targets)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	out := assignEnvelope{
		Data:     make([]checklistResource, 0, len(assignments)),
		Included: []itemResource{},
	}
	for _, a := range assignments {
		out.Data = append(out.Data, h.enc.assigned(a))
		for _, it := range a.NewItems {
			out.Included = append(out.Included, h.enc.item(it))
		}
	}
	out.Meta = meta{Count: len(out.Data), Total: len(out.Data)}
	h.writeJSON(w, http.StatusOK, out)
}
