package db

import (
	"fmt"
	"net/url"
	"strings"
)

// Dialect selects driver and placeholder style.
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

func (d Dialect) String() string {
	if d == SQLite {
		return "sqlite"
	}
	return "postgres"
}

// IsDSN reports whether s names a database rather than a file or URL.
func IsDSN(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "postgres", "postgresql", "sqlite":
		return true
	}
	return false
}

// ParseDSN returns the dialect of dsn and the string to hand to sql.Open.
// sqlite://path/to/file.db opens path/to/file.db; sqlite:///abs/file.db
// opens /abs/file.db.
func ParseDSN(dsn string) (Dialect, string, error) {
	if dsn == "" {
		return 0, "", fmt.Errorf("empty DSN")
	}
	if rest, ok := strings.CutPrefix(dsn, "sqlite://"); ok {
		if rest == "" {
			return 0, "", fmt.Errorf("sqlite DSN %q has no path", dsn)
		}
		return SQLite, rest, nil
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return 0, "", err
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		// allow missing scheme by prefixing postgres://
		if strings.Contains(dsn, "://") {
			return 0, "", fmt.Errorf("unsupported DSN scheme %q", u.Scheme)
		}
		dsn = "postgres://" + dsn
		if _, err := url.Parse(dsn); err != nil {
			return 0, "", err
		}
	}
	return Postgres, dsn, nil
}
