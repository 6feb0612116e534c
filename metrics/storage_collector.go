package metrics

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// OperationCounter reports how many user operations are journaled.
type OperationCounter interface {
	Count() (uint64, error)
}

// StorageCollector periodically reports the size of the local user
// operation journal.
type StorageCollector struct {
	operations  OperationCounter
	storageDir  string
	storageSize prometheus.Gauge
	journaled   prometheus.Gauge
	interval    time.Duration
	logger      zerolog.Logger
}

func NewStorageCollector(
	logger zerolog.Logger,
	operations OperationCounter,
	storageDir string,
	interval time.Duration,
) (*StorageCollector, error) {
	storageSize := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "storage_size_bytes",
			Help: "Estimated disk usage of storage in bytes",
		})

	journaled := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "user_operations_journaled",
			Help: "Number of user operations kept in the local journal",
		})

	if err := registerMetrics(logger, storageSize, journaled); err != nil {
		return nil, err
	}

	return &StorageCollector{
		operations:  operations,
		storageDir:  storageDir,
		storageSize: storageSize,
		journaled:   journaled,
		interval:    interval,
		logger:      logger.With().Str("component", "storage-collector").Logger(),
	}, nil
}

func (c *StorageCollector) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				c.logger.Info().Msg("shutting down storage collector")
				return
			case <-ticker.C:
				c.updateStorageSize()
			}
		}
	}()
}

func (c *StorageCollector) updateStorageSize() {
	size, err := getFolderSize(c.storageDir)
	if err != nil {
		c.logger.Err(err).Msg("failed to get storage size. storage size metric will not be updated")
	} else {
		c.storageSize.Set(float64(size))
	}

	count, err := c.operations.Count()
	if err != nil {
		c.logger.Err(err).Msg("failed to count journaled user operations")
		return
	}
	c.journaled.Set(float64(count))
}

func getFolderSize(path string) (int64, error) {
	var size int64
	err := filepath.WalkDir(path, func(_ string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !entry.IsDir() {
			info, err := entry.Info()
			if err != nil {
				return err
			}
			size += info.Size()
		}

		return nil
	})
	return size, err
}
