package cron

import (
	"context"
	"testing"
	"time"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryStoresEntriesInOrder(t *testing.T) {
	registry := NewRegistry(Entry{Job: &stubJob{name: "a"}, Every: time.Hour})
	jobB := &stubJob{name: "b"}
	registry.Register(jobB, -time.Second)
	registry.Register(nil, time.Minute)

	entries := registry.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Job.Name() != "a" || entries[0].Every != time.Hour {
		t.Fatalf("unexpected first entry %+v", entries[0])
	}
	if entries[1].Job != jobB || entries[1].Every != 0 {
		t.Fatalf("negative period should clamp to zero, got %+v", entries[1])
	}

	// callers cannot mutate the registry through the returned slice
	entries[0].Job = nil
	if registry.Entries()[0].Job == nil {
		t.Fatal("registry entries mutated via returned slice")
	}
}
