package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/platterly/platterly-backend/pkg/logger"
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

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "worker-test"})
}

func TestServiceRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	failing := &testJob{name: "order-expiry", err: errors.New("boom")}
	healthy := &testJob{name: "delivery-backfill"}
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(failing, healthy),
		Lock:     &fakeLock{},
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}

	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if failing.runs != 1 {
		t.Fatalf("failing job ran %d times", failing.runs)
	}
	if healthy.runs != 1 {
		t.Fatalf("healthy job ran %d times", healthy.runs)
	}
}

func TestServiceSkipsCycleWhenLockHeld(t *testing.T) {
	job := &testJob{name: "delivery-backfill"}
	lock := &fakeLock{held: true}
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(job),
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}

	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("job ran while lock was held")
	}
	if lock.releases != 0 {
		t.Fatalf("lock released by a non-owner")
	}
}

func TestServiceReleasesLockAfterCycle(t *testing.T) {
	lock := &fakeLock{}
	service, err := NewService(ServiceParams{
		Logger: testLogger(),
		Lock:   lock,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}

	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if lock.releases != 1 {
		t.Fatalf("expected one release, got %d", lock.releases)
	}
	if lock.held {
		t.Fatal("lock still held after cycle")
	}
}

func TestRegistryDropsNilJobs(t *testing.T) {
	registry := NewRegistry(nil, &testJob{name: "delivery-backfill"}, nil)
	if got := len(registry.Jobs()); got != 1 {
		t.Fatalf("expected 1 job, got %d", got)
	}
}
