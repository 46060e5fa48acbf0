package store

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crm/internal/model"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

// seedEngagement creates a company, contact, and one engagement of the given
// bucket, returning the engagement.
func seedEngagement(t *testing.T, s *SQLiteStore, bucket model.Bucket, mutate func(*model.Engagement)) *model.Engagement {
	t.Helper()
	ctx := context.Background()

	company, err := s.CreateCompany(ctx, "Acme")
	require.NoError(t, err)
	email := "jo@acme.com"
	contact, err := s.CreateContact(ctx, "Jo", &email, company.ID)
	require.NoError(t, err)

	e := &model.Engagement{
		Bucket:           bucket,
		CompanyID:        company.ID,
		PrimaryContactID: contact.ID,
	}
	if mutate != nil {
		mutate(e)
	}
	created, err := s.CreateEngagement(ctx, e)
	require.NoError(t, err)
	return created
}

func TestSQLiteCompanyRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	missing, err := s.FindCompanyByName(ctx, "Acme")
	require.NoError(t, err)
	assert.Nil(t, missing)

	created, err := s.CreateCompany(ctx, "Acme")
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	found, err := s.FindCompanyByName(ctx, "Acme")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, created.ID, found.ID)

	// Duplicate names are not rejected by the schema; the oldest row wins.
	dup, err := s.CreateCompany(ctx, "Acme")
	require.NoError(t, err)
	require.NotEqual(t, created.ID, dup.ID)
	again, err := s.FindCompanyByName(ctx, "Acme")
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)
}

func TestSQLiteContactLookups(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	company, err := s.CreateCompany(ctx, "Acme")
	require.NoError(t, err)

	email := "jo@acme.com"
	withEmail, err := s.CreateContact(ctx, "Jo", &email, company.ID)
	require.NoError(t, err)
	noEmail, err := s.CreateContact(ctx, "Sam", nil, company.ID)
	require.NoError(t, err)

	byEmail, err := s.FindContactByEmail(ctx, "jo@acme.com")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, withEmail.ID, byEmail.ID)
	require.NotNil(t, byEmail.Email)
	assert.Equal(t, "jo@acme.com", *byEmail.Email)

	byName, err := s.FindContactByName(ctx, "Sam", company.ID)
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, noEmail.ID, byName.ID)
	assert.Nil(t, byName.Email)

	absent, err := s.FindContactByEmail(ctx, "nobody@acme.com")
	require.NoError(t, err)
	assert.Nil(t, absent)
	absent, err = s.FindContactByName(ctx, "Sam", "other-company")
	require.NoError(t, err)
	assert.Nil(t, absent)
}

func TestSQLiteEngagementRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	touch := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	stage := model.StageProposal
	created := seedEngagement(t, s, model.BucketDeal, func(e *model.Engagement) {
		product := "widgets"
		e.Product = &product
		e.DealStage = &stage
		e.LastTouchAt = &touch
		e.FollowUpRequired = true
	})

	rows, err := s.ListEngagements(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	got := rows[0]
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, model.BucketDeal, got.Bucket)
	require.NotNil(t, got.Product)
	assert.Equal(t, "widgets", *got.Product)
	require.NotNil(t, got.DealStage)
	assert.Equal(t, stage, *got.DealStage)
	require.NotNil(t, got.LastTouchAt)
	assert.True(t, got.LastTouchAt.Equal(touch))
	assert.True(t, got.FollowUpRequired)
	assert.Nil(t, got.AccountStatus)
	assert.Nil(t, got.Notes)
	assert.Equal(t, "Acme", got.Company.Name)
	assert.Equal(t, "Jo", got.PrimaryContact.FullName)
}

func TestSQLiteListEngagementsOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	company, err := s.CreateCompany(ctx, "Acme")
	require.NoError(t, err)
	contact, err := s.CreateContact(ctx, "Jo", nil, company.ID)
	require.NoError(t, err)

	var last string
	for range 3 {
		e, err := s.CreateEngagement(ctx, &model.Engagement{
			Bucket:           model.BucketLead,
			CompanyID:        company.ID,
			PrimaryContactID: contact.ID,
		})
		require.NoError(t, err)
		last = e.ID
		time.Sleep(2 * time.Millisecond)
	}

	rows, err := s.ListEngagements(ctx, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, last, rows[0].ID, "newest first")
}

func TestSQLiteUpdateEngagement(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	created := seedEngagement(t, s, model.BucketDeal, nil)

	touch := time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC)
	detail, err := s.UpdateEngagement(ctx, created.ID, EngagementPatch{
		"notes":            "called twice",
		"dealStage":        model.StageClosedWon,
		"followUpRequired": true,
		"lastTouchAt":      &touch,
	})
	require.NoError(t, err)

	require.NotNil(t, detail.Notes)
	assert.Equal(t, "called twice", *detail.Notes)
	require.NotNil(t, detail.DealStage)
	assert.Equal(t, model.StageClosedWon, *detail.DealStage)
	assert.True(t, detail.FollowUpRequired)
	require.NotNil(t, detail.LastTouchAt)
	assert.True(t, detail.LastTouchAt.Equal(touch))
	assert.True(t, detail.UpdatedAt.After(created.UpdatedAt) || detail.UpdatedAt.Equal(created.UpdatedAt))
	assert.Equal(t, "Acme", detail.Company.Name)

	// Nil clears a nullable column.
	detail, err = s.UpdateEngagement(ctx, created.ID, EngagementPatch{"dealStage": nil})
	require.NoError(t, err)
	assert.Nil(t, detail.DealStage)
}

func TestSQLiteUpdateEngagementNotFound(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	_, err := s.UpdateEngagement(ctx, "missing-id", EngagementPatch{"notes": "x"})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLiteUpdateEngagementRejectsUnknownField(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	created := seedEngagement(t, s, model.BucketLead, nil)
	_, err := s.UpdateEngagement(ctx, created.ID, EngagementPatch{"companyId": "evil"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown patch field")
}

func TestSQLiteDashboardStats(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	company, err := s.CreateCompany(ctx, "Acme")
	require.NoError(t, err)
	contact, err := s.CreateContact(ctx, "Jo", nil, company.ID)
	require.NoError(t, err)

	mk := func(bucket model.Bucket, mutate func(*model.Engagement)) {
		e := &model.Engagement{Bucket: bucket, CompanyID: company.ID, PrimaryContactID: contact.ID}
		if mutate != nil {
			mutate(e)
		}
		_, err := s.CreateEngagement(ctx, e)
		require.NoError(t, err)
	}

	recent := now.AddDate(0, 0, -2)
	old := now.AddDate(0, 0, -30)
	demo := model.StageDemo

	mk(model.BucketLead, nil)
	mk(model.BucketLead, func(e *model.Engagement) { e.FollowUpRequired = true })
	mk(model.BucketDeal, func(e *model.Engagement) { e.DealStage = &demo; e.LastTouchAt = &recent })
	mk(model.BucketDeal, func(e *model.Engagement) { e.LastTouchAt = &old })
	mk(model.BucketDeal, nil) // never touched: stale
	mk(model.BucketAccount, nil)

	dueToday := now.Add(2 * time.Hour)
	overdue := now.AddDate(0, 0, -3)
	later := now.AddDate(0, 0, 7)
	_, err = s.CreateTasks(ctx, []model.Task{
		{Title: "call Jo", Status: model.TaskOpen, DueAt: &dueToday},
		{Title: "send deck", Status: model.TaskOpen, DueAt: &overdue},
		{Title: "renewal", Status: model.TaskOpen, DueAt: &later},
		{Title: "done thing", Status: model.TaskDone, DueAt: &overdue},
	})
	require.NoError(t, err)

	stats, err := s.DashboardStats(ctx, now)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Leads)
	assert.Equal(t, 3, stats.Deals)
	assert.Equal(t, 1, stats.Accounts)
	assert.Equal(t, 1, stats.FollowUps)
	assert.Equal(t, map[string]int{"DEMO": 1, "UNKNOWN": 2}, stats.DealsByStage)
	assert.Equal(t, 1, stats.TasksToday)
	assert.Equal(t, 1, stats.TasksOverdue)
	assert.Equal(t, 3, stats.TasksOpen)
	assert.Equal(t, 2, stats.StaleDeals, "old touch and never touched")
}

func TestSQLiteCreateTasksEmpty(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	n, err := s.CreateTasks(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}
