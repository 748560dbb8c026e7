package pipeline

import (
	"time"

	"github.com/okian/huddle/internal/adapters/view"
	"github.com/okian/huddle/pkg/scheduler"
)

// Periodic job names and default intervals.
const (
	JobViewRefresh = "view-refresh"
	JobDriftCheck  = "drift-check"

	DefaultRefreshInterval = time.Minute
	DefaultDriftInterval   = 5 * time.Minute
)

// RegisterJobs puts the periodic view refresh and drift check onto the
// scheduler. Non-positive intervals fall back to the defaults.
func RegisterJobs(sched *scheduler.Scheduler, v *view.View, d *Drift, refreshEvery, driftEvery time.Duration) error {
	if refreshEvery <= 0 {
		refreshEvery = DefaultRefreshInterval
	}
	if driftEvery <= 0 {
		driftEvery = DefaultDriftInterval
	}

	if err := sched.Add(scheduler.Job{Name: JobViewRefresh, Interval: refreshEvery, Run: v.Refresh}); err != nil {
		return err
	}
	return sched.Add(scheduler.Job{Name: JobDriftCheck, Interval: driftEvery, Run: d.Check})
}
