package seed

import (
	"regexp"
	"strings"
	"time"

	"github.com/sells-group/crm/internal/model"
)

var (
	fullDateRe  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	yearMonthRe = regexp.MustCompile(`^\d{4}-\d{2}$`)
	yearRe      = regexp.MustCompile(`^\d{4}$`)
)

// ParseLooseDate classifies a free-text date against the three shapes the
// prototype used, most specific first: YYYY-MM-DD (midnight UTC that day),
// YYYY-MM (first of month), YYYY (January 1). Anything else, including
// invalid calendar dates, reports no value; messy legacy dates degrade to
// "unknown", they never fail the import.
func ParseLooseDate(s string) (time.Time, bool) {
	var layout string
	switch {
	case fullDateRe.MatchString(s):
		layout = "2006-01-02"
	case yearMonthRe.MatchString(s):
		layout = "2006-01"
	case yearRe.MatchString(s):
		layout = "2006"
	default:
		return time.Time{}, false
	}

	t, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

var dealStages = map[string]model.DealStage{
	"discovery":   model.StageDiscovery,
	"demo":        model.StageDemo,
	"proposal":    model.StageProposal,
	"on hold":     model.StageOnHold,
	"closed won":  model.StageClosedWon,
	"closed lost": model.StageClosedLost,
}

// MapDealStage maps a free-text stage onto the stage enum, trimming and
// lower-casing first. Unrecognized input reports no value: the engagement
// is created with the stage unset.
func MapDealStage(s string) (model.DealStage, bool) {
	stage, ok := dealStages[strings.ToLower(strings.TrimSpace(s))]
	return stage, ok
}

// MapAccountStatus maps a free-text status onto the status enum. Anything
// other than "former" defaults to ACTIVE. The default here is intentional
// and differs from MapDealStage's no-default policy; the legacy importer
// treated every account as active unless explicitly marked former.
func MapAccountStatus(s string) model.AccountStatus {
	if strings.ToLower(strings.TrimSpace(s)) == "former" {
		return model.StatusFormer
	}
	return model.StatusActive
}
