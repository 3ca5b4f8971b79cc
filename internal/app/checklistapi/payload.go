package checklistapi

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/checklist-api/project/internal/app/checklist"
)

// TimeLayout is how every timestamp is rendered for clients.
const TimeLayout = "2006-01-02 15:04:05"

var inputLayouts = []string{
	TimeLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Timestamp renders in TimeLayout (UTC) and accepts TimeLayout, RFC 3339 or
// a bare date on input.
type Timestamp struct {
	time.Time
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(TimeLayout))
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	s = strings.TrimSpace(s)
	for _, layout := range inputLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q (want %q)", s, TimeLayout)
}

func timestamp(t *time.Time) *Timestamp {
	if t == nil {
		return nil
	}
	return &Timestamp{Time: *t}
}

func (t *Timestamp) ptr() *time.Time {
	if t == nil {
		return nil
	}
	v := t.Time
	return &v
}

type links struct {
	Self    string `json:"self"`
	Related string `json:"related,omitempty"`
}

type resourceRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type relationship struct {
	Links links         `json:"links"`
	Data  []resourceRef `json:"data"`
}

type relationships struct {
	Items relationship `json:"items"`
}

type checklistAttributes struct {
	ObjectDomain string     `json:"object_domain"`
	ObjectID     string     `json:"object_id"`
	Description  string     `json:"description"`
	IsCompleted  bool       `json:"is_completed"`
	CompletedAt  *Timestamp `json:"completed_at"`
	UpdatedBy    *string    `json:"updated_by"`
	Due          *Timestamp `json:"due"`
	Urgency      *int       `json:"urgency"`
	// Items holds item ids, or full item resources when included.
	Items     any       `json:"items,omitempty"`
	CreatedAt Timestamp `json:"created_at"`
	UpdatedAt Timestamp `json:"updated_at"`
}

type checklistResource struct {
	Type          string              `json:"type"`
	ID            string              `json:"id"`
	Attributes    checklistAttributes `json:"attributes"`
	Links         links               `json:"links"`
	Relationships *relationships      `json:"relationships,omitempty"`
}

type itemAttributes struct {
	Description string     `json:"description"`
	IsCompleted bool       `json:"is_completed"`
	CompletedAt *Timestamp `json:"completed_at"`
	Due         *Timestamp `json:"due"`
	Urgency     *int       `json:"urgency"`
	UpdatedBy   *string    `json:"updated_by"`
	AssigneeID  *string    `json:"assignee_id"`
	TaskID      *int       `json:"task_id"`
	ChecklistID string     `json:"checklist_id"`
	CreatedAt   Timestamp  `json:"created_at"`
	UpdatedAt   Timestamp  `json:"updated_at"`
}

type itemResource struct {
	Type       string         `json:"type"`
	ID         string         `json:"id"`
	Attributes itemAttributes `json:"attributes"`
	Links      links          `json:"links"`
}

type ruleDue struct {
	DueInterval int        `json:"due_interval"`
	DueUnit     string     `json:"due_unit"`
	Due         *Timestamp `json:"due,omitempty"`
}

type checklistRuleBody struct {
	Description string `json:"description,omitempty"`
	ruleDue
}

type itemRuleBody struct {
	Description string `json:"description"`
	Urgency     *int   `json:"urgency,omitempty"`
	ruleDue
}

type templateAttributes struct {
	Name      string             `json:"name"`
	Checklist *checklistRuleBody `json:"checklist"`
	Items     []itemRuleBody     `json:"items"`
	CreatedAt *Timestamp         `json:"created_at,omitempty"`
	UpdatedAt *Timestamp         `json:"updated_at,omitempty"`
}

type templateResource struct {
	Type       string             `json:"type"`
	ID         string             `json:"id"`
	Attributes templateAttributes `json:"attributes"`
	Links      links              `json:"links"`
}

type resourceEncoder struct {
	baseURL string
}

func (e resourceEncoder) checklist(c checklist.Checklist) checklistResource {
	return checklistResource{
		Type: "checklists",
		ID:   c.ID,
		Attributes: checklistAttributes{
			ObjectDomain: c.ObjectDomain,
			ObjectID:     c.ObjectID,
			Description:  c.Description,
			IsCompleted:  c.IsCompleted,
			CompletedAt:  timestamp(c.CompletedAt),
			UpdatedBy:    c.UpdatedBy,
			Due:          timestamp(c.Due),
			Urgency:      c.Urgency,
			Items:        c.ItemIDs(),
			CreatedAt:    Timestamp{Time: c.CreatedAt},
			UpdatedAt:    Timestamp{Time: c.UpdatedAt},
		},
		Links: links{Self: e.baseURL + "/checklists/" + c.ID},
	}
}

// checklistWithItems embeds full item resources instead of ids.
func (e resourceEncoder) checklistWithItems(c checklist.Checklist) checklistResource {
	res := e.checklist(c)
	items := make([]itemResource, 0, len(c.Items))
	for _, it := range c.Items {
		items = append(items, e.item(it))
	}
	res.Attributes.Items = items
	return res
}

// assigned renders a checklist after template assignment: the item list is
// dropped from the attributes and only the newly created items are linked.
func (e resourceEncoder) assigned(a checklist.Assignment) checklistResource {
	res := e.checklist(a.Checklist)
	res.Attributes.Items = nil
	refs := make([]resourceRef, 0, len(a.NewItems))
	for _, it := range a.NewItems {
		refs = append(refs, resourceRef{Type: "items", ID: it.ID})
	}
	res.Relationships = &relationships{Items: relationship{
		Links: links{
			Self:    e.baseURL + "/checklists/" + a.Checklist.ID + "/relationships/items",
			Related: e.baseURL + "/checklists/" + a.Checklist.ID + "/items",
		},
		Data: refs,
	}}
	return res
}

func (e resourceEncoder) item(it checklist.Item) itemResource {
	return itemResource{
		Type: "items",
		ID:   it.ID,
		Attributes: itemAttributes{
			Description: it.Description,
			IsCompleted: it.IsCompleted,
			CompletedAt: timestamp(it.CompletedAt),
			Due:         timestamp(it.Due),
			Urgency:     it.Urgency,
			UpdatedBy:   it.UpdatedBy,
			AssigneeID:  it.AssigneeID,
			TaskID:      it.TaskID,
			ChecklistID: it.ChecklistID,
			CreatedAt:   Timestamp{Time: it.CreatedAt},
			UpdatedAt:   Timestamp{Time: it.UpdatedAt},
		},
		Links: links{Self: e.baseURL + "/checklists/" + it.ChecklistID + "/items/" + it.ID},
	}
}

func (e resourceEncoder) template(t checklist.Template) templateResource {
	items := make([]itemRuleBody, 0, len(t.Items))
	for _, r := range t.Items {
		items = append(items, itemRuleBody{
			Description: r.Description,
			Urgency:     r.Urgency,
			ruleDue:     ruleDue{DueInterval: r.DueInterval, DueUnit: r.DueUnit, Due: timestamp(r.Due)},
		})
	}
	return templateResource{
		Type: "templates",
		ID:   t.ID,
		Attributes: templateAttributes{
			Name: t.Name,
			Checklist: &checklistRuleBody{
				Description: t.Checklist.Description,
				ruleDue: ruleDue{
					DueInterval: t.Checklist.DueInterval,
					DueUnit:     t.Checklist.DueUnit,
					Due:         timestamp(t.Checklist.Due),
				},
			},
			Items:     items,
			CreatedAt: &Timestamp{Time: t.CreatedAt},
			UpdatedAt: &Timestamp{Time: t.UpdatedAt},
		},
		Links: links{Self: e.baseURL + "/checklists/templates/" + t.ID},
	}
}

func (a templateAttributes) spec() checklist.TemplateSpec {
	spec := checklist.TemplateSpec{Name: a.Name}
	if a.Checklist != nil {
		spec.Checklist = checklist.ChecklistRule{
			Description: a.Checklist.Description,
			DueInterval: a.Checklist.DueInterval,
			DueUnit:     a.Checklist.DueUnit,
			Due:         a.Checklist.Due.ptr(),
		}
	}
	for _, r := range a.Items {
		spec.Items = append(spec.Items, checklist.ItemRule{
			Description: r.Description,
			Urgency:     r.Urgency,
			DueInterval: r.DueInterval,
			DueUnit:     r.DueUnit,
			Due:         r.Due.ptr(),
		})
	}
	return spec
}
