// Package cascade turns a template's relative due rules into absolute due
// times for a checklist and its generated items.
package cascade

import (
	"errors"
	"strings"
	"time"
)

// ErrNoChecklistAnchor is returned when a relative checklist rule meets a
// checklist that has no due date to offset from.
var ErrNoChecklistAnchor = errors.New("checklist has no due date to offset from")

// ErrNoItemAnchor is returned when the item chain has nothing to start from:
// no existing item due date and no checklist due date.
var ErrNoItemAnchor = errors.New("no existing item or checklist due date to anchor generated items")

type Unit string

const (
	UnitHour   Unit = "hour"
	UnitMinute Unit = "minute"
)

// Rule is a relative offset. Due is only consulted when Unit is neither
// hour nor minute, in which case it is taken as an already absolute time.
type Rule struct {
	Interval int
	Unit     Unit
	Due      *time.Time
}

func (r Rule) relative() bool {
	switch normalizeUnit(r.Unit) {
	case UnitHour, UnitMinute:
		return true
	default:
		return false
	}
}

func normalizeUnit(u Unit) Unit {
	return Unit(strings.ToLower(strings.TrimSpace(string(u))))
}

// Resolve applies rule to anchor. For an unrecognized unit the rule's own
// Due is returned unchanged; when that is missing too the anchor is kept.
func Resolve(rule Rule, anchor time.Time) time.Time {
	switch normalizeUnit(rule.Unit) {
	case UnitHour:
		return anchor.Add(time.Duration(rule.Interval) * time.Hour)
	case UnitMinute:
		return anchor.Add(time.Duration(rule.Interval) * time.Minute)
	default:
		if rule.Due != nil {
			return *rule.Due
		}
		return anchor
	}
}

// ChecklistDue computes the checklist's new due date from its current one.
func ChecklistDue(current *time.Time, rule Rule) (time.Time, error) {
	if current == nil {
		if !rule.relative() && rule.Due != nil {
			return *rule.Due, nil
		}
		return time.Time{}, ErrNoChecklistAnchor
	}
	return Resolve(rule, *current), nil
}

// ItemSequence resolves rules in order, each against the previous result.
// The first rule is resolved against seed.
func ItemSequence(rules []Rule, seed time.Time) []time.Time {
	out := make([]time.Time, 0, len(rules))
	anchor := seed
	for _, rule := range rules {
		anchor = Resolve(rule, anchor)
		out = append(out, anchor)
	}
	return out
}

// ItemSeed picks the anchor for the first generated item: the last existing
// item's due, falling back to the checklist's current due.
func ItemSeed(lastItemDue, checklistDue *time.Time) (time.Time, error) {
	if lastItemDue != nil {
		return *lastItemDue, nil
	}
	if checklistDue != nil {
		return *checklistDue, nil
	}
	return time.Time{}, ErrNoItemAnchor
}
