package checklist

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/checklist-api/project/internal/app/cascade"
	"github.com/checklist-api/project/internal/contracts"
)

// AssignTarget selects every checklist bound to one business object.
type AssignTarget struct {
	ObjectDomain string
	ObjectID     string
}

// Assignment is the outcome for one matched checklist: its state after the
// assignment and the items the template generated for it, in rule order.
type Assignment struct {
	Checklist Checklist
	NewItems  []Item
}

type assignPlan struct {
	checklist Checklist
	due       time.Time
	items     []Item
}

// AssignTemplate applies the template to every checklist matching each
// target. All due dates are computed before anything is written, so a
// checklist the cascade cannot anchor rejects the whole call untouched.
// Each checklist is then written in its own transaction; the first storage
// failure stops the batch and earlier checklists keep their new items.
//
// Assigning twice is additive: every call appends a fresh item set and
// advances the checklist due again.
func (s *Service) AssignTemplate(ctx context.Context, templateID string, targets []AssignTarget) ([]Assignment, error) {
	tmpl, err := s.GetTemplate(ctx, templateID)
	if err != nil {
		assignmentsTotal.WithLabelValues(assignOutcome(err)).Inc()
		return nil, err
	}

	now := s.Now()
	plans, err := s.planAssignment(ctx, tmpl, targets, now)
	if err != nil {
		assignmentsTotal.WithLabelValues(assignOutcome(err)).Inc()
		return nil, err
	}

	out := make([]Assignment, 0, len(plans))
	for _, p := range plans {
		due := p.due
		if err := s.Repo.AppendItems(ctx, p.checklist.ID, &due, p.items, now); err != nil {
			assignmentsTotal.WithLabelValues("error").Inc()
			s.Log.Error().Err(err).
				Str("template_id", tmpl.ID).
				Str("checklist_id", p.checklist.ID).
				Int("committed", len(out)).
				Msg("template assignment aborted")
			return nil, fmt.Errorf("assigning template %s to checklist %s: %w", tmpl.ID, p.checklist.ID, err)
		}
		itemsCreatedTotal.WithLabelValues("template").Add(float64(len(p.items)))

		a := Assignment{Checklist: p.checklist, NewItems: p.items}
		s.publish(contracts.EventChecklistTemplateAssigned, a.Checklist, itemIDs(a.NewItems), tmpl.ID)
		out = append(out, a)
	}

	assignmentsTotal.WithLabelValues("ok").Inc()
	s.Log.Debug().
		Str("template_id", tmpl.ID).
		Int("targets", len(targets)).
		Int("checklists", len(out)).
		Msg("template assigned")
	return out, nil
}

// planAssignment computes every checklist's new due and items without
// writing. A checklist matched by more than one target is planned against
// the state left by its previous plan, as if the writes had already run.
func (s *Service) planAssignment(ctx context.Context, tmpl Template, targets []AssignTarget, now time.Time) ([]assignPlan, error) {
	checklistRule := tmpl.Checklist.Rule()
	itemRules := make([]cascade.Rule, 0, len(tmpl.Items))
	for _, r := range tmpl.Items {
		itemRules = append(itemRules, r.Rule())
	}

	projected := map[string]Checklist{}
	var plans []assignPlan
	for i, target := range targets {
		domain, err := required(target.ObjectDomain, fmt.Sprintf("data[%d].object_domain", i))
		if err != nil {
			return nil, err
		}
		objectID, err := required(target.ObjectID, fmt.Sprintf("data[%d].object_id", i))
		if err != nil {
			return nil, err
		}

		matches, err := s.Repo.FindChecklistsByObject(ctx, domain, objectID)
		if err != nil {
			return nil, fmt.Errorf("finding checklists for %s/%s: %w", domain, objectID, err)
		}

		for _, c := range matches {
			if p, ok := projected[c.ID]; ok {
				c = p
			}

			checklistDue, err := cascade.ChecklistDue(c.Due, checklistRule)
			if err != nil {
				return nil, fmt.Errorf("checklist %s: %w", c.ID, err)
			}

			var dues []time.Time
			if len(itemRules) > 0 {
				seed, err := cascade.ItemSeed(c.lastItemDue(), c.Due)
				if err != nil {
					return nil, fmt.Errorf("checklist %s: %w", c.ID, err)
				}
				dues = cascade.ItemSequence(itemRules, seed)
			}

			items := make([]Item, 0, len(tmpl.Items))
			for j, rule := range tmpl.Items {
				due := dues[j]
				items = append(items, Item{
					ID:          s.NewID(),
					ChecklistID: c.ID,
					Description: rule.Description,
					Urgency:     copyInt(rule.Urgency),
					Due:         &due,
					CreatedAt:   now,
					UpdatedAt:   now,
				})
			}

			next := c
			next.Due = &checklistDue
			next.Items = append(slices.Clone(c.Items), items...)
			next.UpdatedAt = now
			projected[c.ID] = next

			plans = append(plans, assignPlan{checklist: next, due: checklistDue, items: items})
		}
	}
	return plans, nil
}

func assignOutcome(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation),
		errors.Is(err, cascade.ErrNoChecklistAnchor),
		errors.Is(err, cascade.ErrNoItemAnchor):
		return "rejected"
	default:
		return "error"
	}
}

func itemIDs(items []Item) []string {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	return ids
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}
