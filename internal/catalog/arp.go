package catalog

import (
	"fmt"

	"github.com/blackwell-systems/pkgcatalog/internal/catalogerr"
	"github.com/blackwell-systems/pkgcatalog/internal/store"
	"github.com/blackwell-systems/pkgcatalog/internal/version"
)

// validateArp rejects rec when its ARP version range overlaps the range of
// a different version of the same package. self is the row being
// rewritten, or 0 for a new row. Rows of the same version under another
// channel may share a range.
func (s *schema) validateArp(q store.Querier, rec *record, self int64) error {
	if !s.arp || rec.arpMin == "" {
		return nil
	}
	want := version.NewRange(rec.arpMin, rec.arpMax)

	rows, err := q.Query(fmt.Sprintf(`SELECT m.rowid, v.version, lo.version, hi.version FROM %s m
		JOIN ids i ON i.rowid = m.id
		JOIN versions v ON v.rowid = m.version
		JOIN versions lo ON lo.rowid = m.arp_min_version
		JOIN versions hi ON hi.rowid = m.arp_max_version
		WHERE i.id = ? AND m.rowid <> ?`, s.primary), rec.id, self)
	if err != nil {
		return fmt.Errorf("failed to read arp ranges of %s: %w", rec.id, err)
	}
	type stored struct {
		rowid       int64
		ver, lo, hi string
	}
	var others []stored
	for rows.Next() {
		var o stored
		if err := rows.Scan(&o.rowid, &o.ver, &o.lo, &o.hi); err != nil {
			rows.Close()
			return err
		}
		others = append(others, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, o := range others {
		if version.Compare(o.ver, rec.version) == 0 {
			continue
		}
		have := version.NewRange(o.lo, o.hi)
		if want.Overlaps(have) {
			return fmt.Errorf("%w: %s %s range %s overlaps version %s range %s",
				catalogerr.ErrArpVersionValidationFailed, rec.id, rec.version, want, o.ver, have)
		}
	}
	return nil
}
