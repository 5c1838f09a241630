package redis

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestRepo(t *testing.T, ttl time.Duration) (*UnrecoveredRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	client, err := NewClient(context.Background(), Config{URL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	return NewUnrecoveredRepo(client, ttl), mr
}

func TestUnrecoveredRepo_AddAndPending(t *testing.T) {
	repo, _ := newTestRepo(t, 0)
	ctx := context.Background()

	if err := repo.Add(ctx, "run-1", []int32{300, 7, 12}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := repo.Add(ctx, "run-1", []int32{7}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	got, err := repo.Pending(ctx, "run-1")
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if want := []int32{7, 12, 300}; !reflect.DeepEqual(got, want) {
		t.Errorf("Pending() = %v, want %v", got, want)
	}

	runs, _ := repo.Runs(ctx)
	if len(runs) != 1 || runs[0] != "run-1" {
		t.Errorf("Runs() = %v", runs)
	}
}

func TestUnrecoveredRepo_ResolveClearsRun(t *testing.T) {
	repo, _ := newTestRepo(t, 0)
	ctx := context.Background()

	_ = repo.Add(ctx, "run-1", []int32{4, 5})
	_ = repo.Resolve(ctx, "run-1", 4)

	got, _ := repo.Pending(ctx, "run-1")
	if !reflect.DeepEqual(got, []int32{5}) {
		t.Errorf("Pending() = %v, want [5]", got)
	}

	_ = repo.Resolve(ctx, "run-1", 5)
	if runs, _ := repo.Runs(ctx); len(runs) != 0 {
		t.Errorf("expected no runs left, got %v", runs)
	}
}

func TestUnrecoveredRepo_TTL(t *testing.T) {
	repo, mr := newTestRepo(t, time.Minute)
	ctx := context.Background()

	_ = repo.Add(ctx, "run-1", []int32{9})
	mr.FastForward(2 * time.Minute)

	got, err := repo.Pending(ctx, "run-1")
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected queue to expire, got %v", got)
	}
}

func TestUnrecoveredRepo_AddNothing(t *testing.T) {
	repo, mr := newTestRepo(t, 0)
	if err := repo.Add(context.Background(), "run-1", nil); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if mr.Exists(unrecoveredKey("run-1")) {
		t.Error("empty add should not create a key")
	}
}

func TestNewClient_BadURL(t *testing.T) {
	if _, err := NewClient(context.Background(), Config{URL: "not a url"}); err == nil {
		t.Error("expected error for malformed URL")
	}
}
