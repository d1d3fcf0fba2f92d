package dropwindow

import (
	"time"
)

// DateLayout is the canonical drop identifier format.
const DateLayout = "2006-01-02"

// Rollover hours in the reference timezone. A calendar day's drop stays
// current from 05:00 local through 05:00 two days later: the evening from
// 21:00 onward still belongs to the day that is ending, and the early
// morning before 05:00 belongs to the previous day's drop.
const (
	morningRolloverHour = 5
	eveningTailHour     = 21
)

// Resolver maps wall-clock instants to drop identifiers in a fixed timezone.
type Resolver struct {
	location *time.Location
}

// NewResolver loads the named timezone and returns a resolver bound to it.
func NewResolver(timezone string) (*Resolver, error) {
	location, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, err
	}
	return &Resolver{location: location}, nil
}

// Resolve returns the drop identifier current at the given instant. Pure
// function of the clock.
func (r *Resolver) Resolve(now time.Time) string {
	local := now.In(r.location)

	if local.Hour() < morningRolloverHour {
		return local.AddDate(0, 0, -1).Format(DateLayout)
	}
	if local.Hour() >= eveningTailHour {
		// The evening tail extends today's drop rather than starting
		// tomorrow's early; same date as the daytime branch.
		return local.Format(DateLayout)
	}
	return local.Format(DateLayout)
}
