package storage

import "os"

// DatabaseSizeBytes returns the on-disk size of the database including its
// WAL and shared-memory sidecars. Missing files contribute zero.
func DatabaseSizeBytes(dbPath string) int64 {
	var total int64
	for _, p := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		if info, err := os.Stat(p); err == nil {
			total += info.Size()
		}
	}
	return total
}
