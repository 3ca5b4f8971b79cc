package checklist

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLite has no native timestamp type. Times are stored as fixed-width UTC
// text so that range filters can compare them lexically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS checklists (
		id TEXT PRIMARY KEY,
		object_domain TEXT NOT NULL,
		object_id TEXT NOT NULL,
		description TEXT NOT NULL,
		is_completed INTEGER NOT NULL DEFAULT 0,
		completed_at TEXT,
		updated_by TEXT,
		due TEXT,
		urgency INTEGER,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS checklists_object_idx ON checklists (object_domain, object_id)`,
	`CREATE TABLE IF NOT EXISTS checklist_items (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		checklist_id TEXT NOT NULL REFERENCES checklists(id) ON DELETE CASCADE,
		description TEXT NOT NULL,
		is_completed INTEGER NOT NULL DEFAULT 0,
		completed_at TEXT,
		due TEXT,
		urgency INTEGER,
		updated_by TEXT,
		assignee_id TEXT,
		task_id INTEGER,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS checklist_items_order_idx ON checklist_items (checklist_id, seq)`,
	`CREATE INDEX IF NOT EXISTS checklist_items_due_idx ON checklist_items (due)`,
	`CREATE TABLE IF NOT EXISTS checklist_templates (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		checklist TEXT NOT NULL,
		items TEXT NOT NULL DEFAULT '[]',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
}

// SQLiteRepository implements Repository on a local SQLite file. It is meant
// for single-node deployments and for tests (":memory:").
type SQLiteRepository struct {
	db *sqlx.DB
}

// NewSQLiteRepository opens (or creates) the database at path and applies
// the schema.
func NewSQLiteRepository(ctx context.Context, path string) (*SQLiteRepository, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// One connection: SQLite serializes writers anyway, and an in-memory
	// database lives and dies with its connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", pragma, err)
		}
	}

	r := &SQLiteRepository{db: db}
	if err := r.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return r, nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range sqliteSchema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type sqliteChecklistRow struct {
	ID           string         `db:"id"`
	ObjectDomain string         `db:"object_domain"`
	ObjectID     string         `db:"object_id"`
	Description  string         `db:"description"`
	IsCompleted  bool           `db:"is_completed"`
	CompletedAt  sql.NullString `db:"completed_at"`
	UpdatedBy    sql.NullString `db:"updated_by"`
	Due          sql.NullString `db:"due"`
	Urgency      sql.NullInt64  `db:"urgency"`
	CreatedAt    string         `db:"created_at"`
	UpdatedAt    string         `db:"updated_at"`
}

func (row sqliteChecklistRow) checklist() (Checklist, error) {
	c := Checklist{
		ID:           row.ID,
		ObjectDomain: row.ObjectDomain,
		ObjectID:     row.ObjectID,
		Description:  row.Description,
		IsCompleted:  row.IsCompleted,
		UpdatedBy:    nullStringPtr(row.UpdatedBy),
		Urgency:      nullIntPtr(row.Urgency),
	}
	var err error
	if c.CompletedAt, err = parseSQLiteTimePtr(row.CompletedAt); err != nil {
		return Checklist{}, err
	}
	if c.Due, err = parseSQLiteTimePtr(row.Due); err != nil {
		return Checklist{}, err
	}
	if c.CreatedAt, err = parseSQLiteTime(row.CreatedAt); err != nil {
		return Checklist{}, err
	}
	if c.UpdatedAt, err = parseSQLiteTime(row.UpdatedAt); err != nil {
		return Checklist{}, err
	}
	return c, nil
}

type sqliteItemRow struct {
	ID          string         `db:"id"`
	ChecklistID string         `db:"checklist_id"`
	Description string         `db:"description"`
	IsCompleted bool           `db:"is_completed"`
	CompletedAt sql.NullString `db:"completed_at"`
	Due         sql.NullString `db:"due"`
	Urgency     sql.NullInt64  `db:"urgency"`
	UpdatedBy   sql.NullString `db:"updated_by"`
	AssigneeID  sql.NullString `db:"assignee_id"`
	TaskID      sql.NullInt64  `db:"task_id"`
	CreatedAt   string         `db:"created_at"`
	UpdatedAt   string         `db:"updated_at"`
}

func (row sqliteItemRow) item() (Item, error) {
	it := Item{
		ID:          row.ID,
		ChecklistID: row.ChecklistID,
		Description: row.Description,
		IsCompleted: row.IsCompleted,
		Urgency:     nullIntPtr(row.Urgency),
		UpdatedBy:   nullStringPtr(row.UpdatedBy),
		AssigneeID:  nullStringPtr(row.AssigneeID),
		TaskID:      nullIntPtr(row.TaskID),
	}
	var err error
	if it.CompletedAt, err = parseSQLiteTimePtr(row.CompletedAt); err != nil {
		return Item{}, err
	}
	if it.Due, err = parseSQLiteTimePtr(row.Due); err != nil {
		return Item{}, err
	}
	if it.CreatedAt, err = parseSQLiteTime(row.CreatedAt); err != nil {
		return Item{}, err
	}
	if it.UpdatedAt, err = parseSQLiteTime(row.UpdatedAt); err != nil {
		return Item{}, err
	}
	return it, nil
}

type sqliteTemplateRow struct {
	ID        string `db:"id"`
	Name      string `db:"name"`
	Checklist string `db:"checklist"`
	Items     string `db:"items"`
	CreatedAt string `db:"created_at"`
	UpdatedAt string `db:"updated_at"`
}

func (row sqliteTemplateRow) template() (Template, error) {
	t := Template{ID: row.ID, Name: row.Name}
	if err := decodeTemplateDocs(&t, []byte(row.Checklist), []byte(row.Items)); err != nil {
		return Template{}, err
	}
	var err error
	if t.CreatedAt, err = parseSQLiteTime(row.CreatedAt); err != nil {
		return Template{}, err
	}
	if t.UpdatedAt, err = parseSQLiteTime(row.UpdatedAt); err != nil {
		return Template{}, err
	}
	return t, nil
}

const sqliteChecklistColumns = `id, object_domain, object_id, description, is_completed, completed_at,
	updated_by, due, urgency, created_at, updated_at`

const sqliteItemColumns = `id, checklist_id, description, is_completed, completed_at, due,
	urgency, updated_by, assignee_id, task_id, created_at, updated_at`

func (r *SQLiteRepository) CreateChecklist(ctx context.Context, c Checklist) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO checklists (`+sqliteChecklistColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ObjectDomain, c.ObjectID, c.Description, c.IsCompleted, sqliteTimePtr(c.CompletedAt),
		c.UpdatedBy, sqliteTimePtr(c.Due), c.Urgency, sqliteTime(c.CreatedAt), sqliteTime(c.UpdatedAt),
	); err != nil {
		return fmt.Errorf("inserting checklist %s: %w", c.ID, err)
	}
	if err := sqliteInsertItems(ctx, tx, c.Items); err != nil {
		return err
	}
	return tx.Commit()
}

func sqliteInsertItems(ctx context.Context, tx *sqlx.Tx, items []Item) error {
	for _, it := range items {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO checklist_items (`+sqliteItemColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			it.ID, it.ChecklistID, it.Description, it.IsCompleted, sqliteTimePtr(it.CompletedAt), sqliteTimePtr(it.Due),
			it.Urgency, it.UpdatedBy, it.AssigneeID, it.TaskID, sqliteTime(it.CreatedAt), sqliteTime(it.UpdatedAt),
		); err != nil {
			return fmt.Errorf("inserting item %s: %w", it.ID, err)
		}
	}
	return nil
}

func (r *SQLiteRepository) GetChecklist(ctx context.Context, id string) (Checklist, error) {
	checklists, err := r.selectChecklists(ctx,
		`SELECT `+sqliteChecklistColumns+` FROM checklists WHERE id = ?`, id)
	if err != nil {
		return Checklist{}, err
	}
	if len(checklists) == 0 {
		return Checklist{}, ErrNotFound
	}
	return checklists[0], nil
}

func (r *SQLiteRepository) ListChecklists(ctx context.Context, page Page) ([]Checklist, error) {
	return r.selectChecklists(ctx,
		`SELECT `+sqliteChecklistColumns+`
		 FROM checklists
		 ORDER BY created_at, id
		 LIMIT ? OFFSET ?`,
		page.Limit, page.Offset,
	)
}

func (r *SQLiteRepository) CountChecklists(ctx context.Context) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM checklists`)
	return n, err
}

func (r *SQLiteRepository) FindChecklistsByObject(ctx context.Context, objectDomain, objectID string) ([]Checklist, error) {
	return r.selectChecklists(ctx,
		`SELECT `+sqliteChecklistColumns+`
		 FROM checklists
		 WHERE object_domain = ? AND object_id = ?
		 ORDER BY created_at, id`,
		objectDomain, objectID,
	)
}

func (r *SQLiteRepository) selectChecklists(ctx context.Context, query string, args ...any) ([]Checklist, error) {
	var rows []sqliteChecklistRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	checklists := make([]Checklist, 0, len(rows))
	if len(rows) == 0 {
		return checklists, nil
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		c, err := row.checklist()
		if err != nil {
			return nil, fmt.Errorf("decoding checklist %s: %w", row.ID, err)
		}
		checklists = append(checklists, c)
		ids = append(ids, c.ID)
	}

	itemQuery, itemArgs, err := sqlx.In(
		`SELECT `+sqliteItemColumns+` FROM checklist_items WHERE checklist_id IN (?) ORDER BY seq`, ids)
	if err != nil {
		return nil, err
	}
	items, err := r.selectItems(ctx, r.db.Rebind(itemQuery), itemArgs...)
	if err != nil {
		return nil, err
	}
	byChecklist := make(map[string][]Item, len(checklists))
	for _, it := range items {
		byChecklist[it.ChecklistID] = append(byChecklist[it.ChecklistID], it)
	}
	for i := range checklists {
		checklists[i].Items = byChecklist[checklists[i].ID]
	}
	return checklists, nil
}

func (r *SQLiteRepository) selectItems(ctx context.Context, query string, args ...any) ([]Item, error) {
	var rows []sqliteItemRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(rows))
	for _, row := range rows {
		it, err := row.item()
		if err != nil {
			return nil, fmt.Errorf("decoding item %s: %w", row.ID, err)
		}
		items = append(items, it)
	}
	return items, nil
}

func (r *SQLiteRepository) UpdateChecklist(ctx context.Context, id string, patch ChecklistPatch) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE checklists
		 SET object_domain = ?, object_id = ?, description = ?,
		     is_completed = ?, completed_at = ?, updated_at = ?
		 WHERE id = ?`,
		patch.ObjectDomain, patch.ObjectID, patch.Description,
		patch.IsCompleted, sqliteTimePtr(patch.CompletedAt), sqliteTime(patch.UpdatedAt),
		id,
	)
	return rowsAffectedOrNotFound(res, err)
}

func (r *SQLiteRepository) DeleteChecklist(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := rowsAffectedOrNotFound(tx.ExecContext(ctx, `DELETE FROM checklists WHERE id = ?`, id)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM checklist_items WHERE checklist_id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *SQLiteRepository) AppendItems(ctx context.Context, checklistID string, due *time.Time, items []Item, now time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := rowsAffectedOrNotFound(tx.ExecContext(ctx,
		`UPDATE checklists SET due = COALESCE(?, due), updated_at = ? WHERE id = ?`,
		sqliteTimePtr(due), sqliteTime(now), checklistID,
	)); err != nil {
		return err
	}
	if err := sqliteInsertItems(ctx, tx, items); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *SQLiteRepository) GetItem(ctx context.Context, id string) (Item, error) {
	items, err := r.selectItems(ctx, `SELECT `+sqliteItemColumns+` FROM checklist_items WHERE id = ?`, id)
	if err != nil {
		return Item{}, err
	}
	if len(items) == 0 {
		return Item{}, ErrNotFound
	}
	return items[0], nil
}

func (r *SQLiteRepository) ListItems(ctx context.Context, page Page) ([]Item, error) {
	return r.selectItems(ctx,
		`SELECT `+sqliteItemColumns+` FROM checklist_items ORDER BY seq LIMIT ? OFFSET ?`,
		page.Limit, page.Offset,
	)
}

func (r *SQLiteRepository) CountItems(ctx context.Context, filter ItemFilter) (int, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT COUNT(*) FROM checklist_items i`)
	args := make([]any, 0, 3)
	conds := make([]string, 0, 3)
	if filter.ObjectDomain != "" {
		sb.WriteString(` INNER JOIN checklists c ON c.id = i.checklist_id`)
		conds = append(conds, "c.object_domain = ?")
		args = append(args, filter.ObjectDomain)
	}
	if filter.DueFrom != nil {
		conds = append(conds, "i.due >= ?")
		args = append(args, sqliteTime(*filter.DueFrom))
	}
	if filter.DueBefore != nil {
		conds = append(conds, "i.due < ?")
		args = append(args, sqliteTime(*filter.DueBefore))
	}
	if len(conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}

	var n int
	err := r.db.GetContext(ctx, &n, sb.String(), args...)
	return n, err
}

func (r *SQLiteRepository) SaveItem(ctx context.Context, it Item) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE checklist_items
		 SET description = ?, is_completed = ?, completed_at = ?, due = ?, urgency = ?,
		     updated_by = ?, assignee_id = ?, task_id = ?, updated_at = ?
		 WHERE id = ?`,
		it.Description, it.IsCompleted, sqliteTimePtr(it.CompletedAt), sqliteTimePtr(it.Due), it.Urgency,
		it.UpdatedBy, it.AssigneeID, it.TaskID, sqliteTime(it.UpdatedAt),
		it.ID,
	)
	return rowsAffectedOrNotFound(res, err)
}

func (r *SQLiteRepository) DeleteItem(ctx context.Context, id string) error {
	return rowsAffectedOrNotFound(r.db.ExecContext(ctx, `DELETE FROM checklist_items WHERE id = ?`, id))
}

func (r *SQLiteRepository) CreateTemplate(ctx context.Context, t Template) error {
	checklistDoc, itemsDoc, err := encodeTemplateDocs(t)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO checklist_templates (id, name, checklist, items, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, checklistDoc, itemsDoc, sqliteTime(t.CreatedAt), sqliteTime(t.UpdatedAt),
	)
	return err
}

func (r *SQLiteRepository) GetTemplate(ctx context.Context, id string) (Template, error) {
	templates, err := r.selectTemplates(ctx,
		`SELECT id, name, checklist, items, created_at, updated_at FROM checklist_templates WHERE id = ?`, id)
	if err != nil {
		return Template{}, err
	}
	if len(templates) == 0 {
		return Template{}, ErrNotFound
	}
	return templates[0], nil
}

func (r *SQLiteRepository) ListTemplates(ctx context.Context, page Page) ([]Template, error) {
	return r.selectTemplates(ctx,
		`SELECT id, name, checklist, items, created_at, updated_at
		 FROM checklist_templates
		 ORDER BY created_at, id
		 LIMIT ? OFFSET ?`,
		page.Limit, page.Offset,
	)
}

func (r *SQLiteRepository) selectTemplates(ctx context.Context, query string, args ...any) ([]Template, error) {
	var rows []sqliteTemplateRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	templates := make([]Template, 0, len(rows))
	for _, row := range rows {
		t, err := row.template()
		if err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	return templates, nil
}

func (r *SQLiteRepository) CountTemplates(ctx context.Context) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM checklist_templates`)
	return n, err
}

func (r *SQLiteRepository) SaveTemplate(ctx context.Context, t Template) error {
	checklistDoc, itemsDoc, err := encodeTemplateDocs(t)
	if err != nil {
		return err
	}
	return rowsAffectedOrNotFound(r.db.ExecContext(ctx,
		`UPDATE checklist_templates SET name = ?, checklist = ?, items = ?, updated_at = ? WHERE id = ?`,
		t.Name, checklistDoc, itemsDoc, sqliteTime(t.UpdatedAt), t.ID,
	))
}

func (r *SQLiteRepository) DeleteTemplate(ctx context.Context, id string) error {
	return rowsAffectedOrNotFound(r.db.ExecContext(ctx, `DELETE FROM checklist_templates WHERE id = ?`, id))
}

func rowsAffectedOrNotFound(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func sqliteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func sqliteTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return sqliteTime(*t)
}

func parseSQLiteTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing stored time %q: %w", s, err)
	}
	return t, nil
}

func parseSQLiteTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseSQLiteTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullIntPtr(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}

var _ Repository = (*SQLiteRepository)(nil)
var _ Repository = (*PostgresRepository)(nil)
