package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/crm/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Used for local
// single-operator setups and tests.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// sqliteTimeLayout is fixed-width so stored timestamps compare correctly as
// text in ORDER BY and range predicates. The driver parses it back into
// time.Time through the DATETIME decltype.
const sqliteTimeLayout = "2006-01-02 15:04:05.000000000+00:00"

func sqlTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func sqlTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return sqlTime(*t)
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS contacts (
	id         TEXT PRIMARY KEY,
	full_name  TEXT NOT NULL,
	email      TEXT,
	company_id TEXT NOT NULL REFERENCES companies(id),
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS engagements (
	id                 TEXT PRIMARY KEY,
	bucket             TEXT NOT NULL,
	company_id         TEXT NOT NULL REFERENCES companies(id),
	primary_contact_id TEXT NOT NULL REFERENCES contacts(id),
	product            TEXT,
	source             TEXT,
	notes              TEXT,
	next_step          TEXT,
	follow_up_required BOOLEAN NOT NULL DEFAULT 0,
	last_touch_at      DATETIME,
	deal_stage         TEXT,
	account_status     TEXT,
	billing_schedule   TEXT,
	created_at         DATETIME NOT NULL,
	updated_at         DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'OPEN',
	due_at     DATETIME,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_companies_name ON companies(name);
CREATE INDEX IF NOT EXISTS idx_contacts_email ON contacts(email);
CREATE INDEX IF NOT EXISTS idx_contacts_company_name ON contacts(company_id, full_name);
CREATE INDEX IF NOT EXISTS idx_engagements_bucket ON engagements(bucket);
CREATE INDEX IF NOT EXISTS idx_engagements_updated_at ON engagements(updated_at);
CREATE INDEX IF NOT EXISTS idx_tasks_status_due ON tasks(status, due_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) FindCompanyByName(ctx context.Context, name string) (*model.Company, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM companies WHERE name = ? ORDER BY created_at LIMIT 1`,
		name,
	)
	var c model.Company
	err := row.Scan(&c.ID, &c.Name, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find company %q", name)
	}
	return &c, nil
}

func (s *SQLiteStore) CreateCompany(ctx context.Context, name string) (*model.Company, error) {
	c := &model.Company{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO companies (id, name, created_at) VALUES (?, ?, ?)`,
		c.ID, c.Name, sqlTime(c.CreatedAt),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert company %q", name)
	}
	return c, nil
}

func (s *SQLiteStore) FindContactByEmail(ctx context.Context, email string) (*model.Contact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, full_name, email, company_id, created_at FROM contacts WHERE email = ? ORDER BY created_at LIMIT 1`,
		email,
	)
	c, err := scanContact(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find contact by email %q", email)
	}
	return c, nil
}

func (s *SQLiteStore) FindContactByName(ctx context.Context, fullName, companyID string) (*model.Contact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, full_name, email, company_id, created_at FROM contacts WHERE full_name = ? AND company_id = ? ORDER BY created_at LIMIT 1`,
		fullName, companyID,
	)
	c, err := scanContact(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find contact %q", fullName)
	}
	return c, nil
}

func (s *SQLiteStore) CreateContact(ctx context.Context, fullName string, email *string, companyID string) (*model.Contact, error) {
	c := &model.Contact{
		ID:        uuid.New().String(),
		FullName:  fullName,
		Email:     email,
		CompanyID: companyID,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contacts (id, full_name, email, company_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.FullName, c.Email, c.CompanyID, sqlTime(c.CreatedAt),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert contact %q", fullName)
	}
	return c, nil
}

func (s *SQLiteStore) CreateEngagement(ctx context.Context, e *model.Engagement) (*model.Engagement, error) {
	now := time.Now().UTC()
	created := *e
	created.ID = uuid.New().String()
	created.CreatedAt = now
	created.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO engagements (`+engagementColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		created.ID, string(created.Bucket), created.CompanyID, created.PrimaryContactID,
		created.Product, created.Source, created.Notes, created.NextStep,
		created.FollowUpRequired, sqlTimePtr(created.LastTouchAt),
		stagePtr(created.DealStage), statusPtr(created.AccountStatus), created.BillingSchedule,
		sqlTime(created.CreatedAt), sqlTime(created.UpdatedAt),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert engagement")
	}
	return &created, nil
}

func (s *SQLiteStore) UpdateEngagement(ctx context.Context, id string, patch EngagementPatch) (*model.EngagementDetail, error) {
	if len(patch) == 0 {
		return nil, eris.New("sqlite: empty patch")
	}

	var sets []string
	var args []any
	for _, key := range patch.sortedKeys() {
		col, ok := patchColumns[key]
		if !ok {
			return nil, eris.Errorf("sqlite: unknown patch field %q", key)
		}
		sets = append(sets, fmt.Sprintf("%s = ?", col))
		args = append(args, sqliteArg(patch[key]))
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, sqlTime(time.Now()), id)

	query := fmt.Sprintf("UPDATE engagements SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: update engagement %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return nil, eris.Wrapf(ErrNotFound, "engagement %s", id)
	}
	return s.getDetail(ctx, id)
}

// sqliteArg maps patch values onto types database/sql can bind.
func sqliteArg(v any) any {
	switch x := v.(type) {
	case model.Bucket:
		return string(x)
	case model.DealStage:
		return string(x)
	case model.AccountStatus:
		return string(x)
	case time.Time:
		return sqlTime(x)
	case *time.Time:
		return sqlTimePtr(x)
	default:
		return v
	}
}

func (s *SQLiteStore) getDetail(ctx context.Context, id string) (*model.EngagementDetail, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+detailColumns+`
		FROM engagements e
		JOIN companies c ON c.id = e.company_id
		JOIN contacts p ON p.id = e.primary_contact_id
		WHERE e.id = ?`, id)
	d, err := scanEngagementDetail(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get engagement %s", id)
	}
	return d, nil
}

func (s *SQLiteStore) ListEngagements(ctx context.Context, limit int) ([]model.EngagementDetail, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+detailColumns+`
		FROM engagements e
		JOIN companies c ON c.id = e.company_id
		JOIN contacts p ON p.id = e.primary_contact_id
		ORDER BY e.updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list engagements")
	}
	defer rows.Close()

	var out []model.EngagementDetail
	for rows.Next() {
		d, err := scanEngagementDetail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list engagements iterate")
}

func (s *SQLiteStore) CountEngagements(ctx context.Context) (int, error) {
	return s.countRow(ctx, `SELECT COUNT(*) FROM engagements`)
}

func (s *SQLiteStore) CreateTasks(ctx context.Context, tasks []model.Task) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tasks tx")
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, t := range tasks {
		id := t.ID
		if id == "" {
			id = uuid.New().String()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tasks (id, title, status, due_at, created_at) VALUES (?, ?, ?, ?, ?)`,
			id, t.Title, string(t.Status), sqlTimePtr(t.DueAt), sqlTime(now),
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert task %q", t.Title)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit tasks")
	}
	return len(tasks), nil
}

func (s *SQLiteStore) DashboardStats(ctx context.Context, now time.Time) (*model.DashboardStats, error) {
	stats := &model.DashboardStats{DealsByStage: map[string]int{}}
	dayStart, dayEnd := dayBounds(now)

	rows, err := s.db.QueryContext(ctx, `SELECT bucket, COUNT(*) FROM engagements GROUP BY bucket`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: bucket counts")
	}
	defer rows.Close()
	for rows.Next() {
		var bucket string
		var count int
		if err := rows.Scan(&bucket, &count); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan bucket count")
		}
		switch model.Bucket(bucket) {
		case model.BucketLead:
			stats.Leads = count
		case model.BucketDeal:
			stats.Deals = count
		case model.BucketAccount:
			stats.Accounts = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: bucket counts iterate")
	}

	stageRows, err := s.db.QueryContext(ctx,
		`SELECT COALESCE(deal_stage, 'UNKNOWN'), COUNT(*) FROM engagements WHERE bucket = ? GROUP BY 1`,
		string(model.BucketDeal),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stage counts")
	}
	defer stageRows.Close()
	for stageRows.Next() {
		var stage string
		var count int
		if err := stageRows.Scan(&stage, &count); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan stage count")
		}
		stats.DealsByStage[stage] = count
	}
	if err := stageRows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: stage counts iterate")
	}

	if stats.FollowUps, err = s.countRow(ctx, `SELECT COUNT(*) FROM engagements WHERE follow_up_required`); err != nil {
		return nil, err
	}
	if stats.TasksToday, err = s.countRow(ctx,
		`SELECT COUNT(*) FROM tasks WHERE status = 'OPEN' AND due_at >= ? AND due_at < ?`, sqlTime(dayStart), sqlTime(dayEnd)); err != nil {
		return nil, err
	}
	if stats.TasksOverdue, err = s.countRow(ctx,
		`SELECT COUNT(*) FROM tasks WHERE status = 'OPEN' AND due_at < ?`, sqlTime(dayStart)); err != nil {
		return nil, err
	}
	if stats.TasksOpen, err = s.countRow(ctx, `SELECT COUNT(*) FROM tasks WHERE status = 'OPEN'`); err != nil {
		return nil, err
	}
	if stats.StaleDeals, err = s.countRow(ctx,
		`SELECT COUNT(*) FROM engagements WHERE bucket = ? AND (last_touch_at < ? OR last_touch_at IS NULL)`,
		string(model.BucketDeal), sqlTime(staleCutoff(now))); err != nil {
		return nil, err
	}

	return stats, nil
}

func (s *SQLiteStore) countRow(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, eris.Wrapf(err, "sqlite: count: %s", query)
	}
	return n, nil
}

func stagePtr(s *model.DealStage) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}

func statusPtr(s *model.AccountStatus) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}
