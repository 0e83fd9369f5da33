package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"thermascan/api/internal/ids"
	"thermascan/api/internal/storage"
)

type ObjectSweeper interface {
	ListOlderThan(ctx context.Context, cutoff time.Time) ([]storage.ObjectInfo, error)
	Remove(ctx context.Context, key string) error
}

type RecordChecker interface {
	ExistsByImagePath(ctx context.Context, imagePath string) (bool, error)
}

// Janitor removes stored objects that were uploaded but never got a
// detection record. Only objects older than the grace period are
// considered, keeping in-flight requests out of scope.
type Janitor struct {
	cron    *cron.Cron
	store   ObjectSweeper
	records RecordChecker
	grace   time.Duration
	log     zerolog.Logger
}

func NewJanitor(store ObjectSweeper, records RecordChecker, grace time.Duration, log zerolog.Logger) *Janitor {
	return &Janitor{
		cron:    cron.New(cron.WithSeconds()),
		store:   store,
		records: records,
		grace:   grace,
		log:     log,
	}
}

func (j *Janitor) Start(schedule string) error {
	if _, err := j.cron.AddFunc(schedule, j.run); err != nil {
		return err
	}
	j.cron.Start()
	return nil
}

// Stop halts scheduling; the returned context is done once any
// running sweep finishes.
func (j *Janitor) Stop() context.Context {
	return j.cron.Stop()
}

func (j *Janitor) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	removed, err := j.Sweep(ctx)
	if err != nil {
		j.log.Error().Err(err).Msg("orphan sweep failed")
		return
	}
	if removed > 0 {
		j.log.Info().Int("removed", removed).Msg("orphan sweep completed")
	}
}

// Sweep returns the number of orphaned objects removed.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	runID := ids.New()
	logger := j.log.With().Str("sweep_id", runID).Logger()

	objects, err := j.store.ListOlderThan(ctx, time.Now().Add(-j.grace))
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, obj := range objects {
		exists, err := j.records.ExistsByImagePath(ctx, obj.Key)
		if err != nil {
			logger.Warn().Err(err).Str("object_key", obj.Key).Msg("record lookup failed")
			continue
		}
		if exists {
			continue
		}
		if err := j.store.Remove(ctx, obj.Key); err != nil {
			logger.Warn().Err(err).Str("object_key", obj.Key).Msg("orphan removal failed")
			continue
		}
		logger.Debug().Str("object_key", obj.Key).Msg("orphaned object removed")
		removed++
	}
	return removed, nil
}
