package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/medicart/medicart-api/pkg/logger"
	"github.com/medicart/medicart-api/pkg/metrics"
)

type fakeLock struct {
	held     bool
	acquires int
	releases int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	f.acquires++
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.releases++
	f.held = false
	return nil
}

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestService(t *testing.T, lock Lock, clock *fakeClock, m *metrics.CronJobMetrics, entries ...Entry) *Service {
	t.Helper()
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: NewRegistry(entries...),
		Lock:     lock,
		Metrics:  m,
		Now:      clock.Now,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	return service
}

func TestServiceRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	success := &testJob{name: "success"}
	failure := &testJob{name: "fail", err: errors.New("boom")}
	lock := &fakeLock{}
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	service := newTestService(t, lock, clock, nil, Entry{Job: failure}, Entry{Job: success})

	err := service.runCycle(context.Background())
	if err == nil {
		t.Fatal("expected combined error from failing job")
	}
	if !errors.Is(err, failure.err) {
		t.Fatalf("expected wrapped job error, got %v", err)
	}
	if success.runs != 1 || failure.runs != 1 {
		t.Fatalf("expected both jobs to run once, got success=%d fail=%d", success.runs, failure.runs)
	}
	if lock.held {
		t.Fatal("lock should be released after the cycle")
	}
}

func TestServiceRespectsJobPeriod(t *testing.T) {
	hourly := &testJob{name: "hourly"}
	every := &testJob{name: "every-cycle"}
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	service := newTestService(t, &fakeLock{}, clock,
		nil,
		Entry{Job: hourly, Every: time.Hour},
		Entry{Job: every},
	)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := service.runCycle(ctx); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
		clock.Advance(time.Minute)
	}
	if hourly.runs != 1 {
		t.Fatalf("expected hourly job to run once, ran %d", hourly.runs)
	}
	if every.runs != 3 {
		t.Fatalf("expected every-cycle job to run 3 times, ran %d", every.runs)
	}

	clock.Advance(time.Hour)
	if err := service.runCycle(ctx); err != nil {
		t.Fatalf("late cycle: %v", err)
	}
	if hourly.runs != 2 {
		t.Fatalf("expected hourly job to run again after an hour, ran %d", hourly.runs)
	}
}

func TestServiceSkipsCycleWhenLockHeldElsewhere(t *testing.T) {
	job := &testJob{name: "sweep"}
	lock := &fakeLock{held: true}
	reg := prometheus.NewRegistry()
	m := metrics.NewCronJobMetrics(reg)
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	service := newTestService(t, lock, clock, m, Entry{Job: job})

	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("job should not run without the lock, ran %d", job.runs)
	}
	if lock.releases != 0 {
		t.Fatal("lock held elsewhere must not be released")
	}
	if got := counterValue(t, reg, "medicart_cron_run_skipped_total", "sweep"); got != 1 {
		t.Fatalf("expected skipped=1, got %f", got)
	}
}

func TestServiceDoesNotTakeLockWhenNothingIsDue(t *testing.T) {
	job := &testJob{name: "daily"}
	lock := &fakeLock{}
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	service := newTestService(t, lock, clock, nil, Entry{Job: job, Every: 24 * time.Hour})

	ctx := context.Background()
	if err := service.runCycle(ctx); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	clock.Advance(time.Minute)
	if err := service.runCycle(ctx); err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if lock.acquires != 1 {
		t.Fatalf("expected a single lock acquire, got %d", lock.acquires)
	}
}

func TestNewServiceRequiresLock(t *testing.T) {
	if _, err := NewService(ServiceParams{Logger: logger.Nop()}); err == nil {
		t.Fatal("expected error without lock")
	}
}

func counterValue(t *testing.T, reg *prometheus.Registry, name, job string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if hasLabel(metric, "job", job) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func hasLabel(metric *dto.Metric, name, value string) bool {
	for _, label := range metric.GetLabel() {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
