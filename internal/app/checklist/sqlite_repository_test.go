package checklist

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteRepository_AppendItemsKeepsOrderAndDue(t *testing.T) {
	repo := newSQLiteTestRepo(t)
	ctx := context.Background()
	due := at("2024-01-01T00:00:00")
	require.NoError(t, repo.CreateChecklist(ctx, Checklist{
		ID: "c1", ObjectDomain: "deals", ObjectID: "1", Description: "d",
		Due: &due, CreatedAt: testNow, UpdatedAt: testNow,
		Items: []Item{{ID: "i1", ChecklistID: "c1", Description: "one", CreatedAt: testNow, UpdatedAt: testNow}},
	}))

	require.NoError(t, repo.AppendItems(ctx, "c1", nil, []Item{
		{ID: "i3", ChecklistID: "c1", Description: "three", CreatedAt: testNow, UpdatedAt: testNow},
		{ID: "i2", ChecklistID: "c1", Description: "two", CreatedAt: testNow, UpdatedAt: testNow},
	}, testNow))

	c, err := repo.GetChecklist(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"i1", "i3", "i2"}, c.ItemIDs())
	assertDue(t, "2024-01-01T00:00:00", c.Due)

	newDue := at("2024-01-01T03:00:00")
	require.NoError(t, repo.AppendItems(ctx, "c1", &newDue, nil, testNow))
	c, err = repo.GetChecklist(ctx, "c1")
	require.NoError(t, err)
	assertDue(t, "2024-01-01T03:00:00", c.Due)
	assert.Len(t, c.Items, 3)
}

func TestSQLiteRepository_AppendItemsToMissingChecklist(t *testing.T) {
	repo := newSQLiteTestRepo(t)
	ctx := context.Background()

	err := repo.AppendItems(ctx, "nope", nil, []Item{
		{ID: "i1", ChecklistID: "nope", Description: "x", CreatedAt: testNow, UpdatedAt: testNow},
	}, testNow)
	require.ErrorIs(t, err, ErrNotFound)

	n, err := repo.CountItems(ctx, ItemFilter{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLiteRepository_CountItemsHalfOpen(t *testing.T) {
	repo := newSQLiteTestRepo(t)
	ctx := context.Background()
	d1 := at("2024-01-01T00:00:00")
	d2 := at("2024-01-02T00:00:00")
	require.NoError(t, repo.CreateChecklist(ctx, Checklist{
		ID: "c1", ObjectDomain: "deals", ObjectID: "1", Description: "d", CreatedAt: testNow, UpdatedAt: testNow,
		Items: []Item{
			{ID: "i1", ChecklistID: "c1", Description: "a", Due: &d1, CreatedAt: testNow, UpdatedAt: testNow},
			{ID: "i2", ChecklistID: "c1", Description: "b", Due: &d2, CreatedAt: testNow, UpdatedAt: testNow},
			{ID: "i3", ChecklistID: "c1", Description: "c", CreatedAt: testNow, UpdatedAt: testNow},
		},
	}))

	n, err := repo.CountItems(ctx, ItemFilter{DueFrom: &d1, DueBefore: &d2})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = repo.CountItems(ctx, ItemFilter{DueFrom: &d1})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = repo.CountItems(ctx, ItemFilter{ObjectDomain: "leads"})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLiteRepository_NotFound(t *testing.T) {
	repo := newSQLiteTestRepo(t)
	ctx := context.Background()

	_, err := repo.GetItem(ctx, "x")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.GetTemplate(ctx, "x")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.SaveItem(ctx, Item{ID: "x", UpdatedAt: testNow}), ErrNotFound)
	assert.ErrorIs(t, repo.SaveTemplate(ctx, Template{ID: "x", UpdatedAt: testNow}), ErrNotFound)
	assert.ErrorIs(t, repo.UpdateChecklist(ctx, "x", ChecklistPatch{UpdatedAt: testNow}), ErrNotFound)
	assert.ErrorIs(t, repo.DeleteChecklist(ctx, "x"), ErrNotFound)
}
