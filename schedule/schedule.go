// Package schedule triggers workflow runs on cron expressions. A
// Scheduler holds named entries, each binding an expression to a
// registered workflow and a fixed input, and launches a run every time
// the expression matches. Entries live in process memory and are
// registered at startup; the durable state of the triggered runs is the
// engine's concern.
package schedule

import (
	"context"
	"errors"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/xraph/stepflow/id"
)

var (
	// ErrEntryExists reports an Add with a name that is already
	// registered.
	ErrEntryExists = errors.New("schedule: entry already registered")

	// ErrEntryNotFound reports an operation on an unknown entry name.
	ErrEntryNotFound = errors.New("schedule: entry not found")
)

// StartFunc launches one run of a workflow and reports its run id. The
// caller wires it to the engine:
//
//	sched := schedule.NewScheduler(func(ctx context.Context, workflow string, input any) (id.RunID, error) {
//		ex, err := eng.Execute(ctx, workflow, input)
//		if err != nil {
//			return id.RunID{}, err
//		}
//		return ex.RunID(), nil
//	}, logger)
type StartFunc func(ctx context.Context, workflow string, input any) (id.RunID, error)

// Definition declares a recurring trigger for a registered workflow.
type Definition struct {
	// Name uniquely identifies the entry within the scheduler.
	Name string

	// Expr is a cron expression: standard 5-field ("*/5 * * * *") or a
	// descriptor ("@hourly", "@every 30s").
	Expr string

	// Schedule overrides Expr when set. Any cron Schedule
	// implementation works, including robfig's.
	Schedule cronlib.Schedule

	// Workflow is the workflow to execute on every firing.
	Workflow string

	// Input is passed to every triggered run.
	Input any
}

// Entry is a point-in-time view of a registered definition.
type Entry struct {
	Definition

	Enabled   bool
	LastRunAt *time.Time
	NextRunAt time.Time
}
