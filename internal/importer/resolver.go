// Package importer drives the one-shot migration of the legacy prototype's
// seed data into the relational store.
package importer

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crm/internal/model"
	"github.com/sells-group/crm/internal/store"
)

// Resolver maps incoming company and contact references onto existing rows,
// creating new ones only when no match exists. It never updates or deletes;
// find-or-create is the only mutation it performs.
//
// The lookups are not atomic with the creates, so resolution is only
// duplicate-safe within a single sequential run. Concurrent imports would
// need a unique constraint plus an upsert primitive the schema does not have.
type Resolver struct {
	store store.Store
}

// NewResolver creates a Resolver backed by the given store.
func NewResolver(s store.Store) *Resolver {
	return &Resolver{store: s}
}

// Company resolves a company by exact name, first match wins. A miss
// creates a new company with that name.
func (r *Resolver) Company(ctx context.Context, name string) (*model.Company, error) {
	existing, err := r.store.FindCompanyByName(ctx, name)
	if err != nil {
		return nil, eris.Wrapf(err, "resolve company %q", name)
	}
	if existing != nil {
		return existing, nil
	}
	return r.store.CreateCompany(ctx, name)
}

// Contact resolves a contact with email-first precedence. A non-blank email
// is a durable identity: a match anywhere wins, ignoring name and company
// drift. Without an email the match is scoped to full name within the
// owning company.
func (r *Resolver) Contact(ctx context.Context, fullName, email, companyID string) (*model.Contact, error) {
	if strings.TrimSpace(email) != "" {
		existing, err := r.store.FindContactByEmail(ctx, email)
		if err != nil {
			return nil, eris.Wrapf(err, "resolve contact by email %q", email)
		}
		if existing != nil {
			return existing, nil
		}
		return r.store.CreateContact(ctx, fullName, &email, companyID)
	}

	existing, err := r.store.FindContactByName(ctx, fullName, companyID)
	if err != nil {
		return nil, eris.Wrapf(err, "resolve contact %q", fullName)
	}
	if existing != nil {
		return existing, nil
	}
	return r.store.CreateContact(ctx, fullName, nil, companyID)
}
