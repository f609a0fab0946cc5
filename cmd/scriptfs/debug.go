package main

import (
	"log/slog"

	"github.com/go-scriptfs/scriptfs/internal/lifecycle"
)

// logStartupSummary emits one Info line per lifecycle decision spec_full.md
// §A.2 calls out (mirror resolution, temp directory choice, registry
// construction) — the slog equivalent of the teacher's DebugLogger.Section
// bulleted startup dump, minus the bespoke logger type: SPEC_FULL.md's
// logging section specifies log/slog for every ambient log line, startup
// summaries included, so there is no separate debug-only sink to maintain.
func logStartupSummary(log *slog.Logger, lc *lifecycle.Lifecycle, debug bool) {
	log.Info("startup: mirror opened", "mirror", lc.MirrorPath)
	log.Info("startup: mount point", "mount", lc.MountPoint)
	log.Info("startup: temp directory selected", "temp_dir", lc.TempDir)
	log.Info("startup: procedures installed", "count", lc.Registry.Len())

	if !debug {
		return
	}

	log.Debug("startup: effective uid/gid", "uid", lc.UID, "gid", lc.GID)
	log.Debug("startup: size mode", "materialized", lc.SizeMode == 1)
}
