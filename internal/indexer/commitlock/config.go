package commitlock

import (
	"fmt"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/config"
)

// FromConfig builds the configured lock for the index stored in dataDir.
// leases is only consulted for the redis backend.
func FromConfig(cfg config.CommitLockConfig, dataDir string, leases LeaseClient) (Locker, error) {
	switch cfg.Backend {
	case "", "process":
		abs, err := filepath.Abs(dataDir)
		if err != nil {
			return nil, fmt.Errorf("resolving index directory %s: %w", dataDir, err)
		}
		return Named(abs + "/" + cfg.Name), nil
	case "file":
		return NewFileLock(filepath.Join(dataDir, cfg.Name), cfg.Timeout)
	case "redis":
		if leases == nil {
			return nil, fmt.Errorf("redis commit lock requires a redis client")
		}
		return NewRedisLock(leases, "segindex:"+filepath.Clean(dataDir)+":"+cfg.Name, cfg.TTL, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown commit lock backend %q", cfg.Backend)
	}
}
