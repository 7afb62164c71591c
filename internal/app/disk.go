package app

import (
	"path/filepath"
	"syscall"
)

// diskUsage returns usage stats for the filesystem holding the state
// database, or nil when it cannot be read.
func diskUsage(dbPath string) map[string]any {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(filepath.Dir(dbPath), &stat); err != nil {
		return nil
	}
	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bavail * uint64(stat.Bsize)
	return map[string]any{
		"path":            dbPath,
		"total_bytes":     total,
		"used_bytes":      total - free,
		"available_bytes": free,
	}
}
