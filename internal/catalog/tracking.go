package catalog

import (
	"fmt"

	"github.com/blackwell-systems/pkgcatalog/internal/catalogerr"
	"github.com/blackwell-systems/pkgcatalog/internal/store"
)

// TrackedChange is the latest update-tracking entry of one package.
type TrackedChange struct {
	ID          string
	WrittenTime int64 // Unix milliseconds
	Removed     bool
}

// track appends a log entry for pkgID. Written times strictly increase even
// when the clock does not.
func (c *Catalog) track(q store.Querier, pkgID string, removed bool) error {
	if !c.schema.updateTracking {
		return nil
	}
	return appendTracking(q, pkgID, removed, c.now().UnixMilli())
}

func appendTracking(q store.Querier, pkgID string, removed bool, now int64) error {
	last, ok, err := store.OptionalInt64(q, "SELECT written_time FROM update_tracking ORDER BY written_time DESC LIMIT 1")
	if err != nil {
		return fmt.Errorf("failed to read update tracking: %w", err)
	}
	if ok && now <= last {
		now = last + 1
	}
	if _, err := q.Exec("INSERT INTO update_tracking (package_id, written_time, removed) VALUES (?, ?, ?)",
		pkgID, now, removed); err != nil {
		return fmt.Errorf("failed to write update tracking for %s: %w", pkgID, err)
	}
	return nil
}

// PackagesChangedSince returns, per package, the newest update-tracking
// entry written after since, ordered by id. It needs a layout with update
// tracking.
func (c *Catalog) PackagesChangedSince(since int64) ([]TrackedChange, error) {
	if !c.schema.updateTracking {
		return nil, fmt.Errorf("%w: schema %s has no update tracking", catalogerr.ErrInvalidState, c.schema.version)
	}
	rows, err := c.db().Query(`SELECT t.package_id, t.written_time, t.removed FROM update_tracking t
		WHERE t.written_time > ?
		  AND t.written_time = (SELECT MAX(u.written_time) FROM update_tracking u WHERE u.package_id = t.package_id COLLATE NOCASE)
		ORDER BY t.package_id COLLATE NOCASE`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to read update tracking: %w", err)
	}
	defer rows.Close()

	var out []TrackedChange
	for rows.Next() {
		var ch TrackedChange
		if err := rows.Scan(&ch.ID, &ch.WrittenTime, &ch.Removed); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// LatestTrackingTime returns the newest update-tracking time, or 0.
func (c *Catalog) LatestTrackingTime() (int64, error) {
	if !c.schema.updateTracking {
		return 0, nil
	}
	t, _, err := store.OptionalInt64(c.db(), "SELECT COALESCE(MAX(written_time), 0) FROM update_tracking")
	if err != nil {
		return 0, fmt.Errorf("failed to read update tracking: %w", err)
	}
	return t, nil
}
