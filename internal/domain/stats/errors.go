package stats

import (
	"time"

	"github.com/leetsync/leetsync-stats/internal/domain/shared"
	"github.com/leetsync/leetsync-stats/pkg/timeutil"
)

// Stats domain errors
var (
	ErrNotFound           = shared.NewDomainError("stats", "Get", shared.ErrNotFound, "stats record not found")
	ErrAlreadyCommitted   = shared.NewDomainError("stats", "CommitDay", shared.ErrAlreadyProcessed, "day already committed for user")
	ErrFactSourceNotReady = shared.NewDomainError("factsource", "EnsureReady", shared.ErrServiceUnavailable, "fact source is not queryable")
	ErrFactSourceTimeout  = shared.NewDomainError("factsource", "Query", shared.ErrTimeout, "fact source query timed out")
	ErrInvalidDate        = shared.NewDomainError("stats", "Validate", shared.ErrInvalidFormat, "date must be YYYY-MM-DD")
	ErrOutOfOrderDate     = shared.NewDomainError("stats", "AdvanceStreak", shared.ErrInvalidState, "date precedes last active date")
)

// ValidateDate checks that date is a real calendar day in ISO form.
func ValidateDate(date string) error {
	if _, err := time.Parse(timeutil.ISODateLayout, date); err != nil {
		return ErrInvalidDate.Wrap(err)
	}
	return nil
}
