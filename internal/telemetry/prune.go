package telemetry

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// PruneOldRecords removes usage records and comparison groups older than
// maxAge (DefaultRetention when maxAge is zero or negative), deletes context
// buckets that end up empty, and deletes cumulative scores whose context no
// longer has any records or groups. It returns the number of entries removed
// and schedules no write when nothing was removed.
func (m *Manager) PruneOldRecords(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = DefaultRetention
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadLocked(ctx)

	cutoff := m.now().Add(-maxAge)
	removed := 0

	for key, records := range m.doc.Contexts {
		kept := records[:0]
		for _, rec := range records {
			if rec.Timestamp.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, rec)
		}
		if len(kept) == 0 {
			delete(m.doc.Contexts, key)
			continue
		}
		m.doc.Contexts[key] = kept
	}

	for key, groups := range m.doc.GrpoGroups {
		kept := groups[:0]
		for _, g := range groups {
			if g.Timestamp.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, g)
		}
		if len(kept) == 0 {
			delete(m.doc.GrpoGroups, key)
			continue
		}
		m.doc.GrpoGroups[key] = kept
	}

	// Orphan cleanup: a cumulative score must always reference a context
	// that still has records or groups.
	for raw := range m.doc.GrpoScores {
		key, ok := ParseScoreKey(raw)
		if ok {
			_, hasRecords := m.doc.Contexts[key.Context]
			_, hasGroups := m.doc.GrpoGroups[key.Context]
			if hasRecords || hasGroups {
				continue
			}
		}
		delete(m.doc.GrpoScores, raw)
		removed++
	}

	if removed > 0 {
		m.markDirtyLocked()
		m.logger.Info("pruned stale telemetry",
			zap.Int("removed", removed),
			zap.Duration("maxAge", maxAge),
		)
	}
	return removed, nil
}
