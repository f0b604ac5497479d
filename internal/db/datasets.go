package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// LatestDataset returns the version and payload of the most recently
// imported dataset for station.
func LatestDataset(ctx context.Context, db *sql.DB, dialect Dialect, station string) (string, []byte, error) {
	station = strings.TrimSpace(station)
	if station == "" {
		return "", nil, fmt.Errorf("station is required")
	}
	q := `
SELECT version, payload
FROM signage_datasets
WHERE station = $1
ORDER BY imported_at DESC, id DESC
LIMIT 1`
	if dialect == SQLite {
		q = strings.Replace(q, "$1", "?", 1)
	}
	var version string
	var payload []byte
	if err := db.QueryRowContext(ctx, q, station).Scan(&version, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil, fmt.Errorf("no dataset found for station %q", station)
		}
		return "", nil, err
	}
	if len(payload) == 0 {
		return "", nil, fmt.Errorf("empty payload for station %q version %q", station, version)
	}
	return version, payload, nil
}

// Source serves the latest dataset for a station out of signage_datasets.
// It satisfies schedule.Source.
type Source struct {
	DB      *sql.DB
	Dialect Dialect
	Station string
}

func (s Source) Fetch(ctx context.Context) ([]byte, error) {
	_, payload, err := LatestDataset(ctx, s.DB, s.Dialect, s.Station)
	return payload, err
}

func (s Source) String() string {
	return fmt.Sprintf("%s:signage_datasets/%s", s.Dialect, s.Station)
}
