package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"thermascan/api/internal/storage"
)

type fakeSweeper struct {
	objects []storage.ObjectInfo
	listErr error
	removed []string
}

func (f *fakeSweeper) ListOlderThan(ctx context.Context, cutoff time.Time) ([]storage.ObjectInfo, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var old []storage.ObjectInfo
	for _, obj := range f.objects {
		if obj.LastModified.Before(cutoff) {
			old = append(old, obj)
		}
	}
	return old, nil
}

func (f *fakeSweeper) Remove(ctx context.Context, key string) error {
	f.removed = append(f.removed, key)
	return nil
}

type fakeChecker struct {
	recorded map[string]bool
	err      error
}

func (f fakeChecker) ExistsByImagePath(ctx context.Context, imagePath string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.recorded[imagePath], nil
}

func TestSweep_RemovesOnlyOldOrphans(t *testing.T) {
	now := time.Now()
	sweeper := &fakeSweeper{objects: []storage.ObjectInfo{
		{Key: "u1/1_orphan.png", LastModified: now.Add(-48 * time.Hour)},
		{Key: "u1/2_recorded.png", LastModified: now.Add(-48 * time.Hour)},
		{Key: "u1/3_fresh.png", LastModified: now.Add(-time.Minute)},
	}}
	checker := fakeChecker{recorded: map[string]bool{
		"u1/2_recorded.png": true,
	}}

	janitor := NewJanitor(sweeper, checker, 24*time.Hour, zerolog.Nop())

	removed, err := janitor.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 removal, got %d", removed)
	}
	if len(sweeper.removed) != 1 || sweeper.removed[0] != "u1/1_orphan.png" {
		t.Errorf("Unexpected removals %v", sweeper.removed)
	}
}

func TestSweep_KeepsObjectOnLookupError(t *testing.T) {
	now := time.Now()
	sweeper := &fakeSweeper{objects: []storage.ObjectInfo{
		{Key: "u1/1_old.png", LastModified: now.Add(-48 * time.Hour)},
	}}
	checker := fakeChecker{err: errors.New("db unavailable")}

	janitor := NewJanitor(sweeper, checker, 24*time.Hour, zerolog.Nop())

	removed, err := janitor.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if removed != 0 || len(sweeper.removed) != 0 {
		t.Errorf("Nothing should be removed when the record lookup fails, removed %v", sweeper.removed)
	}
}

func TestSweep_ListFailure(t *testing.T) {
	sweeper := &fakeSweeper{listErr: errors.New("bucket unavailable")}
	janitor := NewJanitor(sweeper, fakeChecker{}, 24*time.Hour, zerolog.Nop())

	if _, err := janitor.Sweep(context.Background()); err == nil {
		t.Error("Expected an error when listing fails")
	}
}
