package cascade

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(s string) time.Time {
	t, err := time.Parse("2006-01-02T15:04:05", s)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr(t time.Time) *time.Time { return &t }

func TestResolve_Hour(t *testing.T) {
	anchor := at("2024-01-01T00:00:00")
	for _, interval := range []int{-5, 0, 1, 3, 48} {
		got := Resolve(Rule{Interval: interval, Unit: UnitHour}, anchor)
		assert.Equal(t, anchor.Add(time.Duration(interval)*time.Hour), got)
	}
}

func TestResolve_Minute(t *testing.T) {
	anchor := at("2024-01-01T10:00:00")
	for _, interval := range []int{-30, 0, 40, 90} {
		got := Resolve(Rule{Interval: interval, Unit: UnitMinute}, anchor)
		assert.Equal(t, anchor.Add(time.Duration(interval)*time.Minute), got)
	}
}

func TestResolve_UnitIsCaseInsensitive(t *testing.T) {
	anchor := at("2024-01-01T10:00:00")
	got := Resolve(Rule{Interval: 2, Unit: " Hour "}, anchor)
	assert.Equal(t, at("2024-01-01T12:00:00"), got)
}

func TestResolve_OtherUnitUsesAbsoluteDue(t *testing.T) {
	abs := at("2030-06-01T08:30:00")
	anchor := at("2024-01-01T10:00:00")
	for _, unit := range []Unit{"", "day", "absolute"} {
		got := Resolve(Rule{Interval: 99, Unit: unit, Due: ptr(abs)}, anchor)
		assert.Equal(t, abs, got, "unit %q", unit)
	}
}

func TestResolve_OtherUnitWithoutDueKeepsAnchor(t *testing.T) {
	anchor := at("2024-01-01T10:00:00")
	assert.Equal(t, anchor, Resolve(Rule{Interval: 5, Unit: "week"}, anchor))
}

func TestChecklistDue(t *testing.T) {
	got, err := ChecklistDue(ptr(at("2024-01-01T00:00:00")), Rule{Interval: 3, Unit: UnitHour})
	require.NoError(t, err)
	assert.Equal(t, at("2024-01-01T03:00:00"), got)
}

func TestChecklistDue_MissingAnchor(t *testing.T) {
	_, err := ChecklistDue(nil, Rule{Interval: 3, Unit: UnitHour})
	require.ErrorIs(t, err, ErrNoChecklistAnchor)

	abs := at("2024-05-05T05:05:05")
	got, err := ChecklistDue(nil, Rule{Unit: "absolute", Due: ptr(abs)})
	require.NoError(t, err)
	assert.Equal(t, abs, got)
}

func TestItemSequence_Chains(t *testing.T) {
	t0 := at("2024-01-01T10:00:00")
	got := ItemSequence([]Rule{
		{Interval: 40, Unit: UnitMinute},
		{Interval: 30, Unit: UnitMinute},
	}, t0)
	assert.Equal(t, []time.Time{
		at("2024-01-01T10:40:00"),
		at("2024-01-01T11:10:00"),
	}, got)
}

func TestItemSequence_AcceptsBackwardsRules(t *testing.T) {
	t0 := at("2024-01-01T10:00:00")
	abs := at("2024-01-01T09:00:00")
	got := ItemSequence([]Rule{
		{Interval: 1, Unit: UnitHour},
		{Interval: -90, Unit: UnitMinute},
		{Unit: "absolute", Due: ptr(abs)},
		{Interval: 15, Unit: UnitMinute},
	}, t0)
	assert.Equal(t, []time.Time{
		at("2024-01-01T11:00:00"),
		at("2024-01-01T09:30:00"),
		abs,
		at("2024-01-01T09:15:00"),
	}, got)
}

func TestItemSequence_Empty(t *testing.T) {
	assert.Empty(t, ItemSequence(nil, at("2024-01-01T10:00:00")))
}

func TestItemSeed(t *testing.T) {
	last := at("2024-01-01T10:00:00")
	cl := at("2024-01-02T00:00:00")

	got, err := ItemSeed(&last, &cl)
	require.NoError(t, err)
	assert.Equal(t, last, got)

	got, err = ItemSeed(nil, &cl)
	require.NoError(t, err)
	assert.Equal(t, cl, got)

	_, err = ItemSeed(nil, nil)
	require.ErrorIs(t, err, ErrNoItemAnchor)
}
