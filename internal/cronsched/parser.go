// Package cronsched implements the cron scheduler (C11): a 5-field
// cron-expression parser and a single dispatcher loop that fans fired jobs
// out to the task executor, DAG executor, or template engine.
package cronsched

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// maxLookahead bounds how far into the future Next will search before giving
// up, matching the "bounded by 1 year of lookahead" requirement.
const maxLookahead = 365 * 24 * time.Hour

// Schedule wraps a parsed cron expression.
type Schedule struct {
	expr string
	sched cron.Schedule
}

// ParseSchedule parses a standard 5-field "min hour dom month dow" cron
// expression: *, ranges a-b, steps */n and a-b/n, and comma lists.
func ParseSchedule(expr string) (*Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", expr, err)
	}
	return &Schedule{expr: expr, sched: sched}, nil
}

// Next returns the nearest minute-aligned time strictly after now that
// satisfies the expression, or the zero Value if none falls within
// maxLookahead.
func (s *Schedule) Next(now time.Time) time.Time {
	next := s.sched.Next(now)
	if next.IsZero() || next.Sub(now) > maxLookahead {
		return time.Time{}
	}
	return next
}

func (s *Schedule) String() string { return s.expr }
