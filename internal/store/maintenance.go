package store

import (
	"fmt"
	"strconv"
	"strings"
)

// DuplicateGroup is a set of segments sharing the same identity key.
type DuplicateGroup struct {
	Timestamp    string  `json:"timestamp"`
	SourceOrigin string  `json:"source_origin"`
	IDs          []int64 `json:"ids"`
}

// FindDuplicateSegments reports identity-key collisions. The UNIQUE
// constraint prevents new ones; this catches rows imported before it existed.
func (db *DB) FindDuplicateSegments() ([]DuplicateGroup, error) {
	rows, err := db.Query(`
		SELECT timestamp, source_origin, GROUP_CONCAT(id)
		FROM segments
		GROUP BY timestamp, source_origin
		HAVING COUNT(*) > 1
		ORDER BY timestamp
	`)
	if err != nil {
		return nil, fmt.Errorf("find duplicates: %w", err)
	}
	defer rows.Close()

	var groups []DuplicateGroup
	for rows.Next() {
		var g DuplicateGroup
		var idList string
		if err := rows.Scan(&g.Timestamp, &g.SourceOrigin, &idList); err != nil {
			return nil, fmt.Errorf("scan duplicate group: %w", err)
		}
		g.IDs = parseIDList(idList)
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// DeleteDuplicateSegments removes all but the lowest-ID segment of each
// duplicate group, cleaning up derived rows as it goes. Returns the number
// of segments removed.
func (db *DB) DeleteDuplicateSegments() (int, error) {
	groups, err := db.FindDuplicateSegments()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, g := range groups {
		keep := g.IDs[0]
		for _, id := range g.IDs {
			if id < keep {
				keep = id
			}
		}
		for _, id := range g.IDs {
			if id == keep {
				continue
			}
			if err := db.DeleteSegment(id); err != nil {
				return removed, fmt.Errorf("delete duplicate %d: %w", id, err)
			}
			removed++
		}
	}
	return removed, nil
}

func parseIDList(s string) []int64 {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}
