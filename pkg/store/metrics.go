package store

import (
	"io/fs"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	opsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socialstore_store_ops_total",
		Help: "Committed store mutations by operation and collection.",
	}, []string{"op", "collection"})

	txnFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "socialstore_store_txn_failures_total",
		Help: "Mutating batches that failed to commit.",
	})

	diskUsage = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "socialstore_store_disk_bytes",
		Help: "Best-effort on-disk size of the store directory.",
	})
)

// DiskUsageBytes walks the store directory and returns (and gauges) its
// total size. Best effort; returns 0 when the store is closed.
func DiskUsageBytes() uint64 {
	mu.Lock()
	path := dbPath
	mu.Unlock()
	if path == "" {
		return 0
	}
	var total uint64
	_ = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if fi, ferr := d.Info(); ferr == nil {
			total += uint64(fi.Size())
		}
		return nil
	})
	diskUsage.Set(float64(total))
	return total
}
