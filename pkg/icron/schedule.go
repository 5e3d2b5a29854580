package icron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Parser accepts five or six field expressions and descriptors like @hourly.
var Parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour |
	cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type TriggerInfo struct {
	Next       time.Time `json:"next"`
	Last       time.Time `json:"last"`
	Expression string    `json:"expression"`

	TimeSinceLast time.Duration `json:"time_since_last"`
	TimeUntilNext time.Duration `json:"time_until_next"`
}

// Validate reports whether expr parses.
func Validate(cronExpr string) error {
	if _, err := Parser.Parse(cronExpr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}
	return nil
}

// GetTriggerInfo computes the previous and next firing around refTime. The
// previous firing is searched hour by hour up to one year back.
func GetTriggerInfo(cronExpr string, refTime time.Time) (*TriggerInfo, error) {
	schedule, err := Parser.Parse(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}

	nextTime := schedule.Next(refTime)

	var prevTime time.Time
	searchStart := refTime.Add(-time.Minute)

	for i := range 366 * 24 {
		checkTime := searchStart.Add(-time.Duration(i) * time.Hour)
		candidate := schedule.Next(checkTime)
		if !candidate.After(refTime) {
			// walk forward to the latest firing that is still <= refTime
			for {
				following := schedule.Next(candidate)
				if following.After(refTime) {
					break
				}
				candidate = following
			}
			prevTime = candidate
			break
		}
	}

	info := &TriggerInfo{
		Expression: cronExpr,
		Next:       nextTime,
		Last:       prevTime,
	}
	if !prevTime.IsZero() {
		info.TimeSinceLast = refTime.Sub(prevTime)
	}
	info.TimeUntilNext = nextTime.Sub(refTime)

	return info, nil
}
