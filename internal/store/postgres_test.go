package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crm/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresFindCompanyByName(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT id, name, created_at FROM companies WHERE name = \$1`).
		WithArgs("Acme").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "created_at"}).
			AddRow("c-1", "Acme", now))

	c, err := s.FindCompanyByName(context.Background(), "Acme")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "c-1", c.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindCompanyByNameMissing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, name, created_at FROM companies WHERE name = \$1`).
		WithArgs("Nowhere").
		WillReturnError(pgx.ErrNoRows)

	c, err := s.FindCompanyByName(context.Background(), "Nowhere")
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindContactByEmailMissing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, full_name, email, company_id, created_at FROM contacts WHERE email = \$1`).
		WithArgs("nobody@acme.com").
		WillReturnError(pgx.ErrNoRows)

	c, err := s.FindContactByEmail(context.Background(), "nobody@acme.com")
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateCompany(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO companies`).
		WithArgs(pgxmock.AnyArg(), "Acme", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	c, err := s.CreateCompany(context.Background(), "Acme")
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "Acme", c.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateEngagementFailure(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO engagements`).
		WillReturnError(eris.New("constraint violation"))

	_, err := s.CreateEngagement(context.Background(), &model.Engagement{
		Bucket:           model.BucketLead,
		CompanyID:        "c-1",
		PrimaryContactID: "p-1",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert engagement")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateEngagementNotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE engagements SET notes = \$1, updated_at = \$2 WHERE id = \$3`).
		WithArgs("x", pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	_, err := s.UpdateEngagement(context.Background(), "missing", EngagementPatch{"notes": "x"})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateEngagementBuildsDeterministicSQL(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	// Keys are applied in sorted order: dealStage before notes.
	mock.ExpectExec(`UPDATE engagements SET deal_stage = \$1, notes = \$2, updated_at = \$3 WHERE id = \$4`).
		WithArgs(model.StageDemo, "hi", pgxmock.AnyArg(), "e-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT (?s).* FROM engagements e`).
		WithArgs("e-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "bucket", "company_id", "primary_contact_id", "product", "source",
			"notes", "next_step", "follow_up_required", "last_touch_at", "deal_stage",
			"account_status", "billing_schedule", "created_at", "updated_at",
			"c_id", "c_name", "c_created_at",
			"p_id", "p_full_name", "p_email", "p_company_id", "p_created_at",
		}).AddRow(
			"e-1", "DEAL", "c-1", "p-1", nil, nil,
			"hi", nil, false, nil, "DEMO",
			nil, nil, now, now,
			"c-1", "Acme", now,
			"p-1", "Jo", nil, "c-1", now,
		))

	d, err := s.UpdateEngagement(context.Background(), "e-1", EngagementPatch{
		"notes":     "hi",
		"dealStage": model.StageDemo,
	})
	require.NoError(t, err)
	require.NotNil(t, d.DealStage)
	assert.Equal(t, model.StageDemo, *d.DealStage)
	assert.Equal(t, "Acme", d.Company.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateEngagementRejectsUnknownField(t *testing.T) {
	s, _ := newMockPostgresStore(t)

	_, err := s.UpdateEngagement(context.Background(), "e-1", EngagementPatch{"id": "evil"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown patch field")
}

func TestPostgresCountEngagements(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM engagements`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(7))

	n, err := s.CountEngagements(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateTasks(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"tasks"}, []string{"id", "title", "status", "due_at", "created_at"}).
		WillReturnResult(2)

	due := time.Now().UTC()
	n, err := s.CreateTasks(context.Background(), []model.Task{
		{Title: "call Jo", Status: model.TaskOpen, DueAt: &due},
		{Title: "send deck", Status: model.TaskOpen},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
