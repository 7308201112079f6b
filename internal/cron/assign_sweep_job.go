package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/medicart/medicart-api/pkg/logger"
)

const (
	defaultSweepIdle  = 2 * time.Minute
	defaultSweepLimit = 25
)

type agentSweeper interface {
	SweepUnassigned(ctx context.Context, idleFor time.Duration, limit int) (int, error)
}

type AssignSweepJobParams struct {
	Logger  *logger.Logger
	Sweeper agentSweeper
	// IdleFor is how long a packed order may wait for an agent before the
	// sweep picks it up.
	IdleFor time.Duration
	Limit   int
}

// NewAssignSweepJob auto-assigns agents to packed orders left without one.
func NewAssignSweepJob(params AssignSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("agent sweeper required")
	}
	if params.IdleFor <= 0 {
		params.IdleFor = defaultSweepIdle
	}
	if params.Limit <= 0 {
		params.Limit = defaultSweepLimit
	}
	return &assignSweepJob{
		logg:    params.Logger,
		sweeper: params.Sweeper,
		idleFor: params.IdleFor,
		limit:   params.Limit,
	}, nil
}

type assignSweepJob struct {
	logg    *logger.Logger
	sweeper agentSweeper
	idleFor time.Duration
	limit   int
}

func (j *assignSweepJob) Name() string { return "agent-assign-sweep" }

func (j *assignSweepJob) Run(ctx context.Context) error {
	assigned, err := j.sweeper.SweepUnassigned(ctx, j.idleFor, j.limit)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"assigned": assigned,
		"idle_for": j.idleFor.String(),
	})
	if err != nil {
		return fmt.Errorf("assign sweep (%d assigned): %w", assigned, err)
	}
	j.logg.Info(logCtx, "agent assign sweep complete")
	return nil
}
