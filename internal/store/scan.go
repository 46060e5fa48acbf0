package store

import (
	"database/sql"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crm/internal/model"
)

// engagementColumns is the canonical column order shared by both backends.
const engagementColumns = `id, bucket, company_id, primary_contact_id, product, source, notes, next_step, follow_up_required, last_touch_at, deal_stage, account_status, billing_schedule, created_at, updated_at`

// detailColumns joins the engagement with its company and primary contact.
const detailColumns = `e.id, e.bucket, e.company_id, e.primary_contact_id, e.product, e.source, e.notes, e.next_step, e.follow_up_required, e.last_touch_at, e.deal_stage, e.account_status, e.billing_schedule, e.created_at, e.updated_at,
	c.id, c.name, c.created_at,
	p.id, p.full_name, p.email, p.company_id, p.created_at`

type scannable interface {
	Scan(dest ...any) error
}

func scanEngagementInto(row scannable, e *model.Engagement, extra ...any) error {
	var product, source, notes, nextStep, dealStage, accountStatus, billing sql.NullString
	var lastTouch sql.NullTime

	dest := []any{
		&e.ID, &e.Bucket, &e.CompanyID, &e.PrimaryContactID,
		&product, &source, &notes, &nextStep,
		&e.FollowUpRequired, &lastTouch,
		&dealStage, &accountStatus, &billing,
		&e.CreatedAt, &e.UpdatedAt,
	}
	dest = append(dest, extra...)

	if err := row.Scan(dest...); err != nil {
		return err
	}

	e.Product = strPtr(product)
	e.Source = strPtr(source)
	e.Notes = strPtr(notes)
	e.NextStep = strPtr(nextStep)
	e.BillingSchedule = strPtr(billing)
	if lastTouch.Valid {
		t := lastTouch.Time.UTC()
		e.LastTouchAt = &t
	}
	if dealStage.Valid {
		st := model.DealStage(dealStage.String)
		e.DealStage = &st
	}
	if accountStatus.Valid {
		st := model.AccountStatus(accountStatus.String)
		e.AccountStatus = &st
	}
	return nil
}

func scanEngagement(row scannable) (*model.Engagement, error) {
	var e model.Engagement
	if err := scanEngagementInto(row, &e); err != nil {
		return nil, eris.Wrap(err, "store: scan engagement")
	}
	return &e, nil
}

func scanEngagementDetail(row scannable) (*model.EngagementDetail, error) {
	var d model.EngagementDetail
	var email sql.NullString

	err := scanEngagementInto(row, &d.Engagement,
		&d.Company.ID, &d.Company.Name, &d.Company.CreatedAt,
		&d.PrimaryContact.ID, &d.PrimaryContact.FullName, &email,
		&d.PrimaryContact.CompanyID, &d.PrimaryContact.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "store: scan engagement detail")
	}
	d.PrimaryContact.Email = strPtr(email)
	return &d, nil
}

func scanContact(row scannable) (*model.Contact, error) {
	var c model.Contact
	var email sql.NullString
	if err := row.Scan(&c.ID, &c.FullName, &email, &c.CompanyID, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.Email = strPtr(email)
	return &c, nil
}

func strPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// dayBounds returns the half-open interval [start of day, start of next day)
// for the given instant, in UTC.
func dayBounds(now time.Time) (time.Time, time.Time) {
	t := now.UTC()
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24 * time.Hour)
}

// staleCutoff is the last-touch threshold after which a deal counts as stale.
func staleCutoff(now time.Time) time.Time {
	return now.UTC().AddDate(0, 0, -14)
}
