package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/medicart/medicart-api/pkg/logger"
)

type fakeSweeper struct {
	idleFor time.Duration
	limit   int
	result  int
	err     error
}

func (f *fakeSweeper) SweepUnassigned(_ context.Context, idleFor time.Duration, limit int) (int, error) {
	f.idleFor = idleFor
	f.limit = limit
	return f.result, f.err
}

func TestAssignSweepJobAppliesDefaults(t *testing.T) {
	sweeper := &fakeSweeper{result: 3}
	job, err := NewAssignSweepJob(AssignSweepJobParams{Logger: logger.Nop(), Sweeper: sweeper})
	if err != nil {
		t.Fatalf("NewAssignSweepJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if sweeper.idleFor != defaultSweepIdle || sweeper.limit != defaultSweepLimit {
		t.Fatalf("unexpected sweep args idle=%s limit=%d", sweeper.idleFor, sweeper.limit)
	}
}

func TestAssignSweepJobReturnsSweepError(t *testing.T) {
	sweeper := &fakeSweeper{result: 1, err: errors.New("no agents")}
	job, err := NewAssignSweepJob(AssignSweepJobParams{
		Logger:  logger.Nop(),
		Sweeper: sweeper,
		IdleFor: 5 * time.Minute,
		Limit:   10,
	})
	if err != nil {
		t.Fatalf("NewAssignSweepJob: %v", err)
	}
	if err := job.Run(context.Background()); !errors.Is(err, sweeper.err) {
		t.Fatalf("expected sweep error, got %v", err)
	}
	if sweeper.idleFor != 5*time.Minute || sweeper.limit != 10 {
		t.Fatalf("unexpected sweep args idle=%s limit=%d", sweeper.idleFor, sweeper.limit)
	}
}

func TestNewAssignSweepJobRequiresSweeper(t *testing.T) {
	if _, err := NewAssignSweepJob(AssignSweepJobParams{Logger: logger.Nop()}); err == nil {
		t.Fatal("expected error without sweeper")
	}
}
