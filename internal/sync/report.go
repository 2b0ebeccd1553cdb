package sync

import (
	"fmt"
	"time"
)

// Mode identifies the kind of sync pass.
type Mode int

const (
	ModeInitial Mode = iota
	ModeRepeat
	ModeBackground
)

func (m Mode) String() string {
	switch m {
	case ModeInitial:
		return "initial"
	case ModeRepeat:
		return "repeat"
	case ModeBackground:
		return "background"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Step names, in the order a pass runs them.
const (
	StepPushRead      = "push-read"
	StepPushUnread    = "push-unread"
	StepPushStarred   = "push-starred"
	StepPushUnstarred = "push-unstarred"
	StepWatermark     = "watermark"
	StepPrune         = "prune"
	StepPullFolders   = "pull-folders"
	StepPullFeeds     = "pull-feeds"
	StepPullItems     = "pull-items"
	StepPullUnread    = "pull-unread"
	StepPullStarred   = "pull-starred"
)

// StepStatus is the outcome of one step.
type StepStatus int

const (
	// StepSkipped means the step did not run, because nothing was needed or
	// an earlier transport failure ended the pass.
	StepSkipped StepStatus = iota
	StepSucceeded
	StepFailed
)

func (s StepStatus) String() string {
	switch s {
	case StepSkipped:
		return "skipped"
	case StepSucceeded:
		return "ok"
	case StepFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Step is one entry of a Report.
type Step struct {
	Name   string
	Status StepStatus
	// Count is the number of markers pushed, rows applied or items pruned.
	Count int
	Err   error
}

// Report describes one sync pass.
type Report struct {
	Mode      Mode
	Started   time.Time
	Finished  time.Time
	Watermark int64
	Steps     []Step
}

func newReport(mode Mode, started time.Time, steps ...string) *Report {
	r := &Report{Mode: mode, Started: started, Steps: make([]Step, len(steps))}
	for i, name := range steps {
		r.Steps[i] = Step{Name: name, Status: StepSkipped}
	}
	return r
}

// Step returns the step with the given name.
func (r *Report) Step(name string) (Step, bool) {
	for _, s := range r.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return Step{}, false
}

// Failed reports whether any step failed.
func (r *Report) Failed() bool {
	return r.FailedSteps() > 0
}

// FailedSteps returns the number of failed steps.
func (r *Report) FailedSteps() int {
	n := 0
	for _, s := range r.Steps {
		if s.Status == StepFailed {
			n++
		}
	}
	return n
}

// Total sums Count over steps whose name is in names.
func (r *Report) Total(names ...string) int {
	n := 0
	for _, s := range r.Steps {
		for _, want := range names {
			if s.Name == want && s.Status == StepSucceeded {
				n += s.Count
			}
		}
	}
	return n
}

func (r *Report) succeed(name string, count int) {
	r.set(name, StepSucceeded, count, nil)
}

func (r *Report) fail(name string, err error) {
	r.set(name, StepFailed, 0, err)
}

func (r *Report) set(name string, status StepStatus, count int, err error) {
	for i := range r.Steps {
		if r.Steps[i].Name == name {
			r.Steps[i] = Step{Name: name, Status: status, Count: count, Err: err}
			return
		}
	}
	r.Steps = append(r.Steps, Step{Name: name, Status: status, Count: count, Err: err})
}
