package importer

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crm/internal/model"
	"github.com/sells-group/crm/internal/seed"
	"github.com/sells-group/crm/internal/store"
)

// ImportMarker tags the notes of every imported engagement so operators can
// tell migrated rows from hand-entered ones.
const ImportMarker = "[imported-from-prototype]"

// Summary reports the per-category record counts discovered in the payload.
type Summary struct {
	Accounts int
	Deals    int
	Leads    int
}

// Importer runs the import as a single sequential pass: accounts, then
// deals, then leads, each record fully resolved and persisted before the
// next. The first persistence failure aborts the run; rows already created
// stay in place.
type Importer struct {
	store    store.Store
	resolver *Resolver
}

// New creates an Importer over the given store.
func New(s store.Store) *Importer {
	return &Importer{store: s, resolver: NewResolver(s)}
}

// Run extracts the seed payload from doc and imports every record. The
// returned summary holds the discovered counts even when the import fails
// partway through.
func (im *Importer) Run(ctx context.Context, doc string) (*Summary, error) {
	sd, err := seed.Extract(doc)
	if err != nil {
		return nil, err
	}

	sum := &Summary{
		Accounts: len(sd.Accounts),
		Deals:    len(sd.Deals),
		Leads:    len(sd.Leads),
	}
	zap.L().Info("discovered seed records",
		zap.Int("accounts", sum.Accounts),
		zap.Int("deals", sum.Deals),
		zap.Int("leads", sum.Leads),
	)

	// Re-running against the same source creates duplicate engagements;
	// there is no run-level idempotency key beyond the notes marker.
	if existing, err := im.store.CountEngagements(ctx); err == nil && existing > 0 {
		zap.L().Warn("store already has engagements; re-import will duplicate them",
			zap.Int("existing", existing),
		)
	}

	for _, rec := range sd.Accounts {
		if err := im.importAccount(ctx, rec); err != nil {
			return sum, eris.Wrap(err, "import account")
		}
	}
	for _, rec := range sd.Deals {
		if err := im.importDeal(ctx, rec); err != nil {
			return sum, eris.Wrap(err, "import deal")
		}
	}
	for _, rec := range sd.Leads {
		if err := im.importLead(ctx, rec); err != nil {
			return sum, eris.Wrap(err, "import lead")
		}
	}

	return sum, nil
}

// assemble resolves the record's identities and fills the fields common to
// every bucket.
func (im *Importer) assemble(ctx context.Context, rec seed.Record, bucket model.Bucket) (*model.Engagement, error) {
	company, err := im.resolver.Company(ctx, rec.Str("name"))
	if err != nil {
		return nil, err
	}

	contactName := rec.Str("contact")
	if contactName == "" {
		contactName = "Unknown"
	}
	contact, err := im.resolver.Contact(ctx, contactName, rec.Str("email"), company.ID)
	if err != nil {
		return nil, err
	}

	notes := importNotes(rec.Str("notes"))
	return &model.Engagement{
		Bucket:           bucket,
		CompanyID:        company.ID,
		PrimaryContactID: contact.ID,
		Product:          optional(rec.Str("product")),
		Source:           optional(rec.Str("source")),
		Notes:            &notes,
	}, nil
}

func (im *Importer) importAccount(ctx context.Context, rec seed.Record) error {
	eng, err := im.assemble(ctx, rec, model.BucketAccount)
	if err != nil {
		return err
	}
	eng.NextStep = optional(rec.Str("nextStep"))
	eng.FollowUpRequired = rec.Bool("followUpRequired")
	eng.LastTouchAt = looseDate(rec.Str("lastContact"))
	status := seed.MapAccountStatus(rec.Str("status"))
	eng.AccountStatus = &status
	eng.BillingSchedule = optional(rec.Str("billingSchedule"))

	_, err = im.store.CreateEngagement(ctx, eng)
	return err
}

func (im *Importer) importDeal(ctx context.Context, rec seed.Record) error {
	eng, err := im.assemble(ctx, rec, model.BucketDeal)
	if err != nil {
		return err
	}
	eng.NextStep = optional(rec.Str("nextStep"))
	eng.FollowUpRequired = rec.Bool("followUpRequired")
	eng.LastTouchAt = looseDate(rec.Str("lastContact"))
	if stage, ok := seed.MapDealStage(rec.Str("stage")); ok {
		eng.DealStage = &stage
	}

	_, err = im.store.CreateEngagement(ctx, eng)
	return err
}

func (im *Importer) importLead(ctx context.Context, rec seed.Record) error {
	eng, err := im.assemble(ctx, rec, model.BucketLead)
	if err != nil {
		return err
	}
	_, err = im.store.CreateEngagement(ctx, eng)
	return err
}

// importNotes joins the record's free-text notes with the import marker,
// dropping the notes part when empty.
func importNotes(raw string) string {
	parts := make([]string, 0, 2)
	if raw != "" {
		parts = append(parts, raw)
	}
	parts = append(parts, ImportMarker)
	return strings.Join(parts, "\n")
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func looseDate(s string) *time.Time {
	if t, ok := seed.ParseLooseDate(s); ok {
		return &t
	}
	return nil
}
