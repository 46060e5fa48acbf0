package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/crm/internal/db"
	"github.com/sells-group/crm/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the import hot path.
var preparedStatements = map[string]string{
	"find_company_by_name": `SELECT id, name, created_at FROM companies WHERE name = $1 ORDER BY created_at LIMIT 1`,
	"insert_company":       `INSERT INTO companies (id, name, created_at) VALUES ($1, $2, $3)`,
	"find_contact_by_email": `SELECT id, full_name, email, company_id, created_at FROM contacts WHERE email = $1 ORDER BY created_at LIMIT 1`,
	"find_contact_by_name":  `SELECT id, full_name, email, company_id, created_at FROM contacts WHERE full_name = $1 AND company_id = $2 ORDER BY created_at LIMIT 1`,
	"insert_contact":        `INSERT INTO contacts (id, full_name, email, company_id, created_at) VALUES ($1, $2, $3, $4, $5)`,
	"insert_engagement": `INSERT INTO engagements (` + engagementColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS contacts (
	id         TEXT PRIMARY KEY,
	full_name  TEXT NOT NULL,
	email      TEXT,
	company_id TEXT NOT NULL REFERENCES companies(id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
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
	follow_up_required BOOLEAN NOT NULL DEFAULT false,
	last_touch_at      TIMESTAMPTZ,
	deal_stage         TEXT,
	account_status     TEXT,
	billing_schedule   TEXT,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS tasks (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'OPEN',
	due_at     TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_companies_name ON companies(name);
CREATE INDEX IF NOT EXISTS idx_contacts_email ON contacts(email);
CREATE INDEX IF NOT EXISTS idx_contacts_company_name ON contacts(company_id, full_name);
CREATE INDEX IF NOT EXISTS idx_engagements_bucket ON engagements(bucket);
CREATE INDEX IF NOT EXISTS idx_engagements_updated_at ON engagements(updated_at);
CREATE INDEX IF NOT EXISTS idx_tasks_status_due ON tasks(status, due_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) FindCompanyByName(ctx context.Context, name string) (*model.Company, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM companies WHERE name = $1 ORDER BY created_at LIMIT 1`,
		name,
	)
	var c model.Company
	err := row.Scan(&c.ID, &c.Name, &c.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: find company %q", name)
	}
	return &c, nil
}

func (s *PostgresStore) CreateCompany(ctx context.Context, name string) (*model.Company, error) {
	c := &model.Company{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO companies (id, name, created_at) VALUES ($1, $2, $3)`,
		c.ID, c.Name, c.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert company %q", name)
	}
	return c, nil
}

func (s *PostgresStore) FindContactByEmail(ctx context.Context, email string) (*model.Contact, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, full_name, email, company_id, created_at FROM contacts WHERE email = $1 ORDER BY created_at LIMIT 1`,
		email,
	)
	c, err := scanContact(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: find contact by email %q", email)
	}
	return c, nil
}

func (s *PostgresStore) FindContactByName(ctx context.Context, fullName, companyID string) (*model.Contact, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, full_name, email, company_id, created_at FROM contacts WHERE full_name = $1 AND company_id = $2 ORDER BY created_at LIMIT 1`,
		fullName, companyID,
	)
	c, err := scanContact(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: find contact %q", fullName)
	}
	return c, nil
}

func (s *PostgresStore) CreateContact(ctx context.Context, fullName string, email *string, companyID string) (*model.Contact, error) {
	c := &model.Contact{
		ID:        uuid.New().String(),
		FullName:  fullName,
		Email:     email,
		CompanyID: companyID,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO contacts (id, full_name, email, company_id, created_at) VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.FullName, c.Email, c.CompanyID, c.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert contact %q", fullName)
	}
	return c, nil
}

func (s *PostgresStore) CreateEngagement(ctx context.Context, e *model.Engagement) (*model.Engagement, error) {
	now := time.Now().UTC()
	created := *e
	created.ID = uuid.New().String()
	created.CreatedAt = now
	created.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO engagements (`+engagementColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		created.ID, created.Bucket, created.CompanyID, created.PrimaryContactID,
		created.Product, created.Source, created.Notes, created.NextStep,
		created.FollowUpRequired, created.LastTouchAt,
		created.DealStage, created.AccountStatus, created.BillingSchedule,
		created.CreatedAt, created.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert engagement")
	}
	return &created, nil
}

func (s *PostgresStore) UpdateEngagement(ctx context.Context, id string, patch EngagementPatch) (*model.EngagementDetail, error) {
	if len(patch) == 0 {
		return nil, eris.New("postgres: empty patch")
	}

	var sets []string
	var args []any
	n := 1
	for _, key := range patch.sortedKeys() {
		col, ok := patchColumns[key]
		if !ok {
			return nil, eris.Errorf("postgres: unknown patch field %q", key)
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", col, n))
		args = append(args, patch[key])
		n++
	}
	sets = append(sets, fmt.Sprintf("updated_at = $%d", n))
	args = append(args, time.Now().UTC())
	n++
	args = append(args, id)

	query := fmt.Sprintf("UPDATE engagements SET %s WHERE id = $%d", strings.Join(sets, ", "), n)
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: update engagement %s", id)
	}
	if tag.RowsAffected() == 0 {
		return nil, eris.Wrapf(ErrNotFound, "engagement %s", id)
	}
	return s.getDetail(ctx, id)
}

func (s *PostgresStore) getDetail(ctx context.Context, id string) (*model.EngagementDetail, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+detailColumns+`
		FROM engagements e
		JOIN companies c ON c.id = e.company_id
		JOIN contacts p ON p.id = e.primary_contact_id
		WHERE e.id = $1`, id)
	d, err := scanEngagementDetail(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get engagement %s", id)
	}
	return d, nil
}

func (s *PostgresStore) ListEngagements(ctx context.Context, limit int) ([]model.EngagementDetail, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `SELECT `+detailColumns+`
		FROM engagements e
		JOIN companies c ON c.id = e.company_id
		JOIN contacts p ON p.id = e.primary_contact_id
		ORDER BY e.updated_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list engagements")
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
	return out, eris.Wrap(rows.Err(), "postgres: list engagements iterate")
}

func (s *PostgresStore) CountEngagements(ctx context.Context) (int, error) {
	return s.countRow(ctx, `SELECT COUNT(*) FROM engagements`)
}

func (s *PostgresStore) CreateTasks(ctx context.Context, tasks []model.Task) (int, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(tasks))
	for _, t := range tasks {
		id := t.ID
		if id == "" {
			id = uuid.New().String()
		}
		rows = append(rows, []any{id, t.Title, string(t.Status), t.DueAt, now})
	}
	n, err := db.CopyFrom(ctx, s.pool, "tasks", []string{"id", "title", "status", "due_at", "created_at"}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: create tasks")
	}
	return int(n), nil
}

func (s *PostgresStore) DashboardStats(ctx context.Context, now time.Time) (*model.DashboardStats, error) {
	stats := &model.DashboardStats{DealsByStage: map[string]int{}}
	dayStart, dayEnd := dayBounds(now)

	rows, err := s.pool.Query(ctx, `SELECT bucket, COUNT(*) FROM engagements GROUP BY bucket`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: bucket counts")
	}
	defer rows.Close()
	for rows.Next() {
		var bucket string
		var count int
		if err := rows.Scan(&bucket, &count); err != nil {
			return nil, eris.Wrap(err, "postgres: scan bucket count")
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
		return nil, eris.Wrap(err, "postgres: bucket counts iterate")
	}

	stageRows, err := s.pool.Query(ctx,
		`SELECT COALESCE(deal_stage, 'UNKNOWN'), COUNT(*) FROM engagements WHERE bucket = $1 GROUP BY 1`,
		string(model.BucketDeal),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stage counts")
	}
	defer stageRows.Close()
	for stageRows.Next() {
		var stage string
		var count int
		if err := stageRows.Scan(&stage, &count); err != nil {
			return nil, eris.Wrap(err, "postgres: scan stage count")
		}
		stats.DealsByStage[stage] = count
	}
	if err := stageRows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: stage counts iterate")
	}

	if stats.FollowUps, err = s.countRow(ctx, `SELECT COUNT(*) FROM engagements WHERE follow_up_required`); err != nil {
		return nil, err
	}
	if stats.TasksToday, err = s.countRow(ctx,
		`SELECT COUNT(*) FROM tasks WHERE status = 'OPEN' AND due_at >= $1 AND due_at < $2`, dayStart, dayEnd); err != nil {
		return nil, err
	}
	if stats.TasksOverdue, err = s.countRow(ctx,
		`SELECT COUNT(*) FROM tasks WHERE status = 'OPEN' AND due_at < $1`, dayStart); err != nil {
		return nil, err
	}
	if stats.TasksOpen, err = s.countRow(ctx, `SELECT COUNT(*) FROM tasks WHERE status = 'OPEN'`); err != nil {
		return nil, err
	}
	if stats.StaleDeals, err = s.countRow(ctx,
		`SELECT COUNT(*) FROM engagements WHERE bucket = $1 AND (last_touch_at < $2 OR last_touch_at IS NULL)`,
		string(model.BucketDeal), staleCutoff(now)); err != nil {
		return nil, err
	}

	return stats, nil
}

func (s *PostgresStore) countRow(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, eris.Wrapf(err, "postgres: count: %s", query)
	}
	return n, nil
}
