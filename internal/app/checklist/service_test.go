package checklist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/checklist-api/project/internal/contracts"
	"github.com/checklist-api/project/internal/sharding"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

type publishedEvent struct {
	Subject string
	Event   contracts.ChecklistEvent
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) Publish(subject string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var evt contracts.ChecklistEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return err
	}
	p.events = append(p.events, publishedEvent{Subject: subject, Event: evt})
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Event.EventType)
	}
	return out
}

func newSQLiteTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func newTestService(t *testing.T, repo Repository) (*Service, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	svc := NewService(repo, pub.Publish, zerolog.Nop())
	svc.Now = func() time.Time { return testNow }
	n := 0
	svc.NewID = func() string {
		n++
		return fmt.Sprintf("id-%04d", n)
	}
	return svc, pub
}

func at(s string) time.Time {
	t, err := time.Parse("2006-01-02T15:04:05", s)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr[T any](v T) *T { return &v }

func assertDue(t *testing.T, want string, got *time.Time) {
	t.Helper()
	require.NotNil(t, got)
	assert.True(t, at(want).Equal(*got), "want %s, got %s", want, got.UTC().Format(time.RFC3339))
}

func TestCreateChecklist_WithItems(t *testing.T) {
	repo := newSQLiteTestRepo(t)
	svc, pub := newTestService(t, repo)
	ctx := context.Background()

	c, err := svc.CreateChecklist(ctx, NewChecklist{
		ObjectDomain: " deals ",
		ObjectID:     "42",
		Description:  "close the deal",
		Due:          ptr(at("2024-01-02T09:00:00")),
		Urgency:      ptr(2),
		TaskID:       ptr(7),
		Items:        []string{"call", "sign"},
	})
	require.NoError(t, err)
	assert.Equal(t, "deals", c.ObjectDomain)
	require.Len(t, c.Items, 2)

	stored, err := svc.GetChecklist(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ItemIDs(), stored.ItemIDs())
	for _, it := range stored.Items {
		assert.Equal(t, c.ID, it.ChecklistID)
		assertDue(t, "2024-01-02T09:00:00", it.Due)
		assert.Equal(t, ptr(2), it.Urgency)
		assert.Equal(t, ptr(7), it.TaskID)
	}
	assert.Equal(t, []string{contracts.EventChecklistCreated}, pub.types())
	assert.Equal(t, sharding.EventSubject("deals", "42"), pub.events[0].Subject)
	assert.Equal(t, c.ItemIDs(), pub.events[0].Event.ItemIDs)
}

func TestCreateChecklist_RequiresFields(t *testing.T) {
	svc, _ := newTestService(t, newSQLiteTestRepo(t))
	ctx := context.Background()

	for name, in := range map[string]NewChecklist{
		"object_domain": {ObjectID: "1", Description: "d"},
		"object_id":     {ObjectDomain: "deals", Description: "d"},
		"description":   {ObjectDomain: "deals", ObjectID: "1", Description: "  "},
		"blank item":    {ObjectDomain: "deals", ObjectID: "1", Description: "d", Items: []string{""}},
	} {
		_, err := svc.CreateChecklist(ctx, in)
		assert.ErrorIs(t, err, ErrValidation, name)
	}

	_, total, err := svc.ListChecklists(ctx, Page{Limit: 10})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestGetChecklist_NotFound(t *testing.T) {
	svc, _ := newTestService(t, newSQLiteTestRepo(t))
	_, err := svc.GetChecklist(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListChecklists_Pages(t *testing.T) {
	svc, _ := newTestService(t, newSQLiteTestRepo(t))
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := svc.CreateChecklist(ctx, NewChecklist{ObjectDomain: "deals", ObjectID: fmt.Sprint(i), Description: "d"})
		require.NoError(t, err)
	}

	rows, total, err := svc.ListChecklists(ctx, Page{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, rows, 2)
	assert.Equal(t, "2", rows[0].ObjectID)
	assert.Equal(t, "3", rows[1].ObjectID)
}

func TestUpdateChecklist_Completion(t *testing.T) {
	svc, pub := newTestService(t, newSQLiteTestRepo(t))
	ctx := context.Background()
	c, err := svc.CreateChecklist(ctx, NewChecklist{
		ObjectDomain: "deals", ObjectID: "1", Description: "d", Due: ptr(at("2024-01-01T00:00:00")),
	})
	require.NoError(t, err)

	updated, err := svc.UpdateChecklist(ctx, c.ID, ChecklistChanges{
		ObjectDomain: "deals", ObjectID: "2", Description: "renamed", IsCompleted: ptr(true),
	})
	require.NoError(t, err)
	assert.Equal(t, "2", updated.ObjectID)
	assert.Equal(t, "renamed", updated.Description)
	assert.True(t, updated.IsCompleted)
	require.NotNil(t, updated.CompletedAt)
	assert.True(t, testNow.Equal(*updated.CompletedAt))
	assertDue(t, "2024-01-01T00:00:00", updated.Due)

	updated, err = svc.UpdateChecklist(ctx, c.ID, ChecklistChanges{
		ObjectDomain: "deals", ObjectID: "2", Description: "renamed", IsCompleted: ptr(false),
	})
	require.NoError(t, err)
	assert.False(t, updated.IsCompleted)
	assert.Nil(t, updated.CompletedAt)

	_, err = svc.UpdateChecklist(ctx, c.ID, ChecklistChanges{ObjectDomain: "deals", ObjectID: "2"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = svc.UpdateChecklist(ctx, "missing", ChecklistChanges{ObjectDomain: "a", ObjectID: "b", Description: "c"})
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, []string{
		contracts.EventChecklistCreated, contracts.EventChecklistUpdated, contracts.EventChecklistUpdated,
	}, pub.types())
}

func TestDeleteChecklist_RemovesItems(t *testing.T) {
	repo := newSQLiteTestRepo(t)
	svc, _ := newTestService(t, repo)
	ctx := context.Background()
	c, err := svc.CreateChecklist(ctx, NewChecklist{ObjectDomain: "deals", ObjectID: "1", Description: "d", Items: []string{"a", "b"}})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteChecklist(ctx, c.ID))

	_, err = svc.GetChecklist(ctx, c.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	n, err := repo.CountItems(ctx, ItemFilter{})
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.ErrorIs(t, svc.DeleteChecklist(ctx, c.ID), ErrNotFound)
}

func TestItemLifecycle(t *testing.T) {
	svc, pub := newTestService(t, newSQLiteTestRepo(t))
	ctx := context.Background()
	c, err := svc.CreateChecklist(ctx, NewChecklist{ObjectDomain: "deals", ObjectID: "1", Description: "d", Items: []string{"first"}})
	require.NoError(t, err)

	_, _, err = svc.CreateItem(ctx, c.ID, NewItem{})
	require.ErrorIs(t, err, ErrValidation)
	_, _, err = svc.CreateItem(ctx, "missing", NewItem{Description: "x"})
	require.ErrorIs(t, err, ErrNotFound)

	withItem, item, err := svc.CreateItem(ctx, c.ID, NewItem{
		Description: "second",
		Due:         ptr(at("2024-01-03T10:00:00")),
		AssigneeID:  ptr("user-9"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{c.Items[0].ID, item.ID}, withItem.ItemIDs())

	_, got, err := svc.GetItem(ctx, c.ID, item.ID)
	require.NoError(t, err)
	assert.Equal(t, ptr("user-9"), got.AssigneeID)

	_, updated, err := svc.UpdateItem(ctx, c.ID, item.ID, ItemChanges{Description: ptr("second, edited"), Urgency: ptr(5)})
	require.NoError(t, err)
	assert.Equal(t, "second, edited", updated.Description)
	assert.Equal(t, ptr(5), updated.Urgency)
	assertDue(t, "2024-01-03T10:00:00", updated.Due)

	_, _, err = svc.UpdateItem(ctx, c.ID, item.ID, ItemChanges{Description: ptr("")})
	require.ErrorIs(t, err, ErrValidation)

	require.NoError(t, svc.DeleteItem(ctx, c.ID, item.ID))
	after, err := svc.GetChecklist(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{c.Items[0].ID}, after.ItemIDs())
	require.ErrorIs(t, svc.DeleteItem(ctx, c.ID, item.ID), ErrNotFound)

	assert.Equal(t, []string{
		contracts.EventChecklistCreated, contracts.EventItemCreated, contracts.EventItemUpdated, contracts.EventItemDeleted,
	}, pub.types())
}

func TestGetItem_OtherChecklist(t *testing.T) {
	svc, _ := newTestService(t, newSQLiteTestRepo(t))
	ctx := context.Background()
	a, err := svc.CreateChecklist(ctx, NewChecklist{ObjectDomain: "deals", ObjectID: "1", Description: "a", Items: []string{"x"}})
	require.NoError(t, err)
	b, err := svc.CreateChecklist(ctx, NewChecklist{ObjectDomain: "deals", ObjectID: "2", Description: "b"})
	require.NoError(t, err)

	_, _, err = svc.GetItem(ctx, b.ID, a.Items[0].ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBulkUpdateItems(t *testing.T) {
	svc, _ := newTestService(t, newSQLiteTestRepo(t))
	ctx := context.Background()
	c, err := svc.CreateChecklist(ctx, NewChecklist{ObjectDomain: "deals", ObjectID: "1", Description: "d", Items: []string{"a", "b", "c"}})
	require.NoError(t, err)
	other, err := svc.CreateChecklist(ctx, NewChecklist{ObjectDomain: "deals", ObjectID: "2", Description: "d", Items: []string{"z"}})
	require.NoError(t, err)

	results, err := svc.BulkUpdateItems(ctx, c.ID, []BulkItemChange{
		{ID: c.Items[0].ID, Action: "update", Changes: ItemChanges{Description: ptr("A"), Due: ptr(at("2024-02-01T00:00:00"))}},
		{ID: "missing", Action: "update"},
		{ID: other.Items[0].ID, Action: "update", Changes: ItemChanges{Description: ptr("stolen")}},
		{ID: c.Items[1].ID, Action: "delete"},
		{ID: c.Items[2].ID, Action: "archive"},
	})
	require.NoError(t, err)
	assert.Equal(t, []BulkItemResult{
		{ID: c.Items[0].ID, Action: "update", Status: http.StatusOK},
		{ID: "missing", Action: "update", Status: http.StatusNotFound},
		{ID: other.Items[0].ID, Action: "update", Status: http.StatusNotFound},
		{ID: c.Items[1].ID, Action: "delete", Status: http.StatusOK},
		{ID: c.Items[2].ID, Action: "archive", Status: http.StatusUnprocessableEntity},
	}, results)

	after, err := svc.GetChecklist(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, after.Items, 2)
	assert.Equal(t, "A", after.Items[0].Description)
	assertDue(t, "2024-02-01T00:00:00", after.Items[0].Due)

	_, z, err := svc.GetItem(ctx, other.ID, other.Items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "z", z.Description)

	_, err = svc.BulkUpdateItems(ctx, "missing", nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSetCompletion(t *testing.T) {
	svc, pub := newTestService(t, newSQLiteTestRepo(t))
	ctx := context.Background()
	c, err := svc.CreateChecklist(ctx, NewChecklist{ObjectDomain: "deals", ObjectID: "1", Description: "d", Items: []string{"a", "b"}})
	require.NoError(t, err)

	results, err := svc.SetCompletion(ctx, c.ItemIDs(), true)
	require.NoError(t, err)
	assert.Equal(t, []CompletionResult{
		{ItemID: c.Items[0].ID, ChecklistID: c.ID, IsCompleted: true},
		{ItemID: c.Items[1].ID, ChecklistID: c.ID, IsCompleted: true},
	}, results)

	_, item, err := svc.GetItem(ctx, c.ID, c.Items[0].ID)
	require.NoError(t, err)
	require.NotNil(t, item.CompletedAt)
	assert.True(t, testNow.Equal(*item.CompletedAt))

	results, err = svc.SetCompletion(ctx, c.ItemIDs()[:1], false)
	require.NoError(t, err)
	assert.False(t, results[0].IsCompleted)
	_, item, err = svc.GetItem(ctx, c.ID, c.Items[0].ID)
	require.NoError(t, err)
	assert.False(t, item.IsCompleted)
	assert.Nil(t, item.CompletedAt)

	_, err = svc.SetCompletion(ctx, []string{"missing"}, true)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = svc.SetCompletion(ctx, []string{" "}, true)
	require.ErrorIs(t, err, ErrValidation)

	assert.Equal(t, []string{
		contracts.EventChecklistCreated, contracts.EventItemCompleted, contracts.EventItemCompleted, contracts.EventItemIncompleted,
	}, pub.types())
}

func TestListItems(t *testing.T) {
	svc, _ := newTestService(t, newSQLiteTestRepo(t))
	ctx := context.Background()
	_, err := svc.CreateChecklist(ctx, NewChecklist{ObjectDomain: "deals", ObjectID: "1", Description: "d", Items: []string{"a", "b", "c"}})
	require.NoError(t, err)

	rows, total, err := svc.ListItems(ctx, Page{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, rows, 2)
	assert.Equal(t, "b", rows[0].Description)
	assert.Equal(t, "c", rows[1].Description)
}

func TestTemplateLifecycle(t *testing.T) {
	svc, _ := newTestService(t, newSQLiteTestRepo(t))
	ctx := context.Background()

	_, err := svc.CreateTemplate(ctx, TemplateSpec{})
	require.ErrorIs(t, err, ErrValidation)
	_, err = svc.CreateTemplate(ctx, TemplateSpec{Name: "x", Items: []ItemRule{{Description: ""}}})
	require.ErrorIs(t, err, ErrValidation)

	created, err := svc.CreateTemplate(ctx, fooTemplate())
	require.NoError(t, err)

	got, err := svc.GetTemplate(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "foo", got.Name)
	assert.Equal(t, fooTemplate().Checklist, got.Checklist)
	assert.Equal(t, fooTemplate().Items, got.Items)

	spec := fooTemplate()
	spec.Name = "bar"
	spec.Items = spec.Items[:1]
	updated, err := svc.UpdateTemplate(ctx, created.ID, spec)
	require.NoError(t, err)
	assert.Equal(t, "bar", updated.Name)

	rows, total, err := svc.ListTemplates(ctx, Page{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, rows, 1)
	assert.Len(t, rows[0].Items, 1)

	_, err = svc.UpdateTemplate(ctx, "missing", spec)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, svc.DeleteTemplate(ctx, created.ID))
	require.ErrorIs(t, svc.DeleteTemplate(ctx, created.ID), ErrNotFound)
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	svc, pub := newTestService(t, newSQLiteTestRepo(t))
	pub.err = errors.New("nats: no responders")
	ctx := context.Background()

	c, err := svc.CreateChecklist(ctx, NewChecklist{ObjectDomain: "deals", ObjectID: "1", Description: "d"})
	require.NoError(t, err)
	_, err = svc.GetChecklist(ctx, c.ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, eventPublishFailuresTotal.Value(contracts.EventChecklistCreated), 1.0)
}
