// Package model defines the CRM entities shared by the store, importer, and server.
package model

import "time"

// Bucket classifies an engagement. It is set once at creation and never
// changed by the import pipeline.
type Bucket string

const (
	BucketLead    Bucket = "LEAD"
	BucketDeal    Bucket = "DEAL"
	BucketAccount Bucket = "ACCOUNT"
)

// Valid reports whether b is a known bucket.
func (b Bucket) Valid() bool {
	switch b {
	case BucketLead, BucketDeal, BucketAccount:
		return true
	}
	return false
}

// DealStage is the pipeline stage of a DEAL engagement.
type DealStage string

const (
	StageDiscovery  DealStage = "DISCOVERY"
	StageDemo       DealStage = "DEMO"
	StageProposal   DealStage = "PROPOSAL"
	StageOnHold     DealStage = "ON_HOLD"
	StageClosedWon  DealStage = "CLOSED_WON"
	StageClosedLost DealStage = "CLOSED_LOST"
)

// DealStageOrder is the fixed display order used by the dashboard.
var DealStageOrder = []DealStage{
	StageDiscovery,
	StageDemo,
	StageProposal,
	StageOnHold,
	StageClosedWon,
	StageClosedLost,
}

// Valid reports whether s is a known deal stage.
func (s DealStage) Valid() bool {
	for _, known := range DealStageOrder {
		if s == known {
			return true
		}
	}
	return false
}

// AccountStatus marks an ACCOUNT engagement as a current or former customer.
type AccountStatus string

const (
	StatusActive AccountStatus = "ACTIVE"
	StatusFormer AccountStatus = "FORMER"
)

// Valid reports whether s is a known account status.
func (s AccountStatus) Valid() bool {
	return s == StatusActive || s == StatusFormer
}

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskOpen TaskStatus = "OPEN"
	TaskDone TaskStatus = "DONE"
)

// Company is a customer organization. Name is the natural key used for
// import matching; it is not unique at the schema level.
type Company struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Contact is a person at a company. A contact with an email is treated as a
// durable identity across imports; one without is scoped to its company.
type Contact struct {
	ID        string    `json:"id"`
	FullName  string    `json:"full_name"`
	Email     *string   `json:"email,omitempty"`
	CompanyID string    `json:"company_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Engagement is the central CRM record: one relationship instance tied to a
// company and a primary contact. DealStage is meaningful only for DEAL rows,
// AccountStatus and BillingSchedule only for ACCOUNT rows; the importer
// leaves the others null rather than relying on schema enforcement.
type Engagement struct {
	ID               string         `json:"id"`
	Bucket           Bucket         `json:"bucket"`
	CompanyID        string         `json:"company_id"`
	PrimaryContactID string         `json:"primary_contact_id"`
	Product          *string        `json:"product,omitempty"`
	Source           *string        `json:"source,omitempty"`
	Notes            *string        `json:"notes,omitempty"`
	NextStep         *string        `json:"next_step,omitempty"`
	FollowUpRequired bool           `json:"follow_up_required"`
	LastTouchAt      *time.Time     `json:"last_touch_at,omitempty"`
	DealStage        *DealStage     `json:"deal_stage,omitempty"`
	AccountStatus    *AccountStatus `json:"account_status,omitempty"`
	BillingSchedule  *string        `json:"billing_schedule,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// EngagementDetail is an engagement with its related rows attached, the
// shape returned by the list and update APIs.
type EngagementDetail struct {
	Engagement
	Company        Company `json:"company"`
	PrimaryContact Contact `json:"primary_contact"`
}

// Task is a to-do item. The core never writes tasks outside of seeding;
// the dashboard only counts them.
type Task struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Status    TaskStatus `json:"status"`
	DueAt     *time.Time `json:"due_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// DashboardStats holds the aggregate counts rendered on the dashboard.
type DashboardStats struct {
	Leads        int            `json:"leads"`
	Deals        int            `json:"deals"`
	Accounts     int            `json:"accounts"`
	FollowUps    int            `json:"follow_ups"`
	DealsByStage map[string]int `json:"deals_by_stage"` // keyed by stage, "UNKNOWN" for unset
	TasksToday   int            `json:"tasks_today"`
	TasksOverdue int            `json:"tasks_overdue"`
	TasksOpen    int            `json:"tasks_open"`
	StaleDeals   int            `json:"stale_deals"` // DEAL rows untouched for 14+ days
}
