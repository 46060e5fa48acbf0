// Package store provides persistence for the CRM over Postgres or SQLite.
package store

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crm/internal/model"
)

// ErrNotFound is returned when a targeted row does not exist.
var ErrNotFound = eris.New("store: not found")

// EngagementPatch is a partial update keyed by API field name. Values are
// already validated and coerced by the caller; nil clears the column.
type EngagementPatch map[string]any

// patchColumns maps API field names to their columns. Only these nine
// fields are updatable; everything else is dropped before the patch is
// built.
var patchColumns = map[string]string{
	"source":           "source",
	"product":          "product",
	"nextStep":         "next_step",
	"notes":            "notes",
	"followUpRequired": "follow_up_required",
	"lastTouchAt":      "last_touch_at",
	"bucket":           "bucket",
	"dealStage":        "deal_stage",
	"accountStatus":    "account_status",
}

// PatchableField reports whether the API field name is updatable.
func PatchableField(name string) bool {
	_, ok := patchColumns[name]
	return ok
}

// PatchableFields lists the updatable API field names, sorted.
func PatchableFields() []string {
	names := make([]string, 0, len(patchColumns))
	for name := range patchColumns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// sortedKeys returns the patch keys in a fixed order so generated SQL is
// deterministic.
func (p EngagementPatch) sortedKeys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Store defines the persistence interface consumed by the importer and the
// HTTP server. Find methods return (nil, nil) when no row matches.
type Store interface {
	// Companies
	FindCompanyByName(ctx context.Context, name string) (*model.Company, error)
	CreateCompany(ctx context.Context, name string) (*model.Company, error)

	// Contacts
	FindContactByEmail(ctx context.Context, email string) (*model.Contact, error)
	FindContactByName(ctx context.Context, fullName, companyID string) (*model.Contact, error)
	CreateContact(ctx context.Context, fullName string, email *string, companyID string) (*model.Contact, error)

	// Engagements
	CreateEngagement(ctx context.Context, e *model.Engagement) (*model.Engagement, error)
	UpdateEngagement(ctx context.Context, id string, patch EngagementPatch) (*model.EngagementDetail, error)
	ListEngagements(ctx context.Context, limit int) ([]model.EngagementDetail, error)
	CountEngagements(ctx context.Context) (int, error)

	// Tasks
	CreateTasks(ctx context.Context, tasks []model.Task) (int, error)

	// Dashboard
	DashboardStats(ctx context.Context, now time.Time) (*model.DashboardStats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
