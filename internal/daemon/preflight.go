package daemon

import (
	"golang.org/x/sys/unix"

	"satchel/internal/logging"
)

// lowSpaceBytes is the free-space floor below which the daemon warns that the
// durable queue may start failing enqueues.
const lowSpaceBytes = 50 << 20

func (d *Daemon) checkDiskSpace() {
	var stat unix.Statfs_t
	if err := unix.Statfs(d.cfg.Paths.DataDir, &stat); err != nil {
		d.logger.Debug("disk space check unavailable", logging.Error(err))
		return
	}
	available := stat.Bavail * uint64(stat.Bsize)
	if available < lowSpaceBytes {
		d.logger.Warn("data directory is nearly full",
			logging.String("dir", d.cfg.Paths.DataDir),
			logging.Int64("available_bytes", int64(available)),
			logging.String(logging.FieldEventType, "low_disk_space"),
			logging.String(logging.FieldImpact, "queue writes may start failing"),
			logging.String(logging.FieldErrorHint, "free up space or move data_dir"))
	}
}
