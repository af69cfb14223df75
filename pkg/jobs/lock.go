package jobs

import (
	"context"
	"os"
	"path/filepath"

	"github.com/eahazardswatch/geoingest/pkg/flock"
	"github.com/eahazardswatch/geoingest/pkg/utils"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// Locker guards dataset runs with one lock file per dataset, so processes
// sharing the lock directory never ingest the same dataset concurrently.
type Locker struct {
	logger hclog.Logger
	dir    string
}

// NewLocker returns a locker keeping its lock files in dir, creating it when missing.
func NewLocker(logger hclog.Logger, dir string) (*Locker, error) {
	if _, err := utils.CheckIfExistsAndIsDirectory(dir); err != nil {
		if !os.IsNotExist(err) {
			return nil, errors.Wrap(err, "invalid lock directory")
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrap(err, "failed creating lock directory")
		}
	}
	return &Locker{logger: logger, dir: dir}, nil
}

// Wrap returns run guarded by the lock of the dataset. When another process
// holds the lock the run is skipped.
func (l *Locker) Wrap(datasetID string, run func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		lock := flock.New(filepath.Join(l.dir, datasetID+".lock"))
		if err := lock.TryAcquire(); err != nil {
			if err == flock.ErrLocked {
				l.logger.Warn("dataset locked by another process, skipping run", "dataset", datasetID, "lock", lock.Path())
				return nil
			}
			return errors.Wrapf(err, "failed locking dataset %s", datasetID)
		}
		defer lock.Release()
		return run(ctx)
	}
}
