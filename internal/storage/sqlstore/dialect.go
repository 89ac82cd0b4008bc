package sqlstore

import (
	"strconv"
	"strings"
)

type dialect struct {
	name   string
	driver string
	schema []string
	// lockClause is appended to the row read of the locking increment path.
	lockClause string
	// returning reports support for UPDATE ... RETURNING.
	returning bool
	// dollarParams rewrites ? placeholders to $1, $2, ...
	dollarParams bool
	// singleConn serializes access through one connection.
	singleConn bool
}

var (
	sqliteDialect = dialect{
		name:   "sqlite",
		driver: "sqlite",
		schema: []string{
			`CREATE TABLE IF NOT EXISTS pastes (
    id TEXT PRIMARY KEY,
    content TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    expires_at INTEGER,
    max_views INTEGER,
    view_count INTEGER NOT NULL DEFAULT 0 CHECK (view_count >= 0)
)`,
			`CREATE INDEX IF NOT EXISTS idx_pastes_expires_at ON pastes (expires_at)`,
		},
		returning:  true,
		singleConn: true,
	}

	libsqlDialect = dialect{
		name:      "libsql",
		driver:    "libsql",
		schema:    sqliteDialect.schema,
		returning: true,
	}

	postgresDialect = dialect{
		name:   "postgres",
		driver: "postgres",
		schema: []string{
			`CREATE TABLE IF NOT EXISTS pastes (
    id TEXT PRIMARY KEY,
    content TEXT NOT NULL,
    created_at BIGINT NOT NULL,
    expires_at BIGINT,
    max_views BIGINT,
    view_count INTEGER NOT NULL DEFAULT 0 CHECK (view_count >= 0)
)`,
			`CREATE INDEX IF NOT EXISTS idx_pastes_expires_at ON pastes (expires_at)`,
		},
		lockClause:   " FOR UPDATE",
		returning:    true,
		dollarParams: true,
	}
)

// detectDialect picks a dialect from the DSN shape.
func detectDialect(dsn string) dialect {
	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"),
		strings.Contains(lower, "host=") && strings.Contains(lower, "dbname="):
		return postgresDialect
	case strings.HasPrefix(lower, "libsql://"), strings.HasPrefix(lower, "wss://"),
		strings.HasPrefix(lower, "https://"), strings.HasPrefix(lower, "http://"):
		return libsqlDialect
	default:
		return sqliteDialect
	}
}

func (d dialect) rebind(q string) string {
	if !d.dollarParams {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// sqliteDSN adds a busy timeout and, for the locking path, makes BEGIN take
// the write lock up front so two readers cannot both read the old count.
func sqliteDSN(dsn string, locking bool) string {
	params := []string{"_pragma=busy_timeout(5000)"}
	if locking {
		params = append(params, "_txlock=immediate")
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}
