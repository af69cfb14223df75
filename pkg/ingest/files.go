package ingest

import (
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// DeletePastDataFiles deletes files under dir whose path carries a data date older than latest.
// Returns the number of deleted files.
func DeletePastDataFiles(logger hclog.Logger, latest time.Time, dir string) (int, error) {
	count := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == dir {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		fileDate, ok := FindDataDate(path)
		if !ok || !fileDate.Before(latest) {
			return nil
		}
		logger.Debug("deleting past data file", "file", path)
		if err := os.Remove(path); err != nil {
			return errors.Wrapf(err, "failed deleting %s", path)
		}
		count = count + 1
		return nil
	})
	if err != nil {
		return count, err
	}
	logger.Info("deleted past data files", "count", count, "dir", dir)
	return count, nil
}

// ConvertExpression returns the gdal_calc.py expression applying the operation with a constant to band A.
func ConvertExpression(operation string, constant float64) (string, error) {
	c := strconv.FormatFloat(constant, 'f', -1, 64)
	switch operation {
	case "multiply":
		return "A*" + c, nil
	case "divide":
		return "A/" + c, nil
	case "subtract":
		return "A-" + c, nil
	case "add":
		return "A+" + c, nil
	}
	return "", &UnknownConvertOperationError{Operation: operation}
}
