package querysql

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect selects placeholder, quoting and JSON syntax.
type Dialect string

const (
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
	SQLite   Dialect = "sqlite"
)

// DialectForDriver maps a database/sql driver name to its dialect.
func DialectForDriver(driver string) (Dialect, error) {
	switch driver {
	case "pgx", "postgres":
		return Postgres, nil
	case "mysql":
		return MySQL, nil
	case "sqlite3", "sqlite":
		return SQLite, nil
	default:
		return "", fmt.Errorf("no SQL dialect for driver %q", driver)
	}
}

// placeholder returns the n-th (1-based) bind marker.
func (d Dialect) placeholder(n int) string {
	if d == Postgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// quoteIdent quotes an identifier. A dotted name is quoted per part so
// schema-qualified tables keep working.
func (d Dialect) quoteIdent(name string) string {
	if name == "*" {
		return name
	}
	parts := strings.Split(name, ".")
	for i, p := range parts {
		if d == MySQL {
			parts[i] = "`" + strings.ReplaceAll(p, "`", "``") + "`"
		} else {
			parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
		}
	}
	return strings.Join(parts, ".")
}

// quoteString renders a SQL string literal. Only used for JSON keys and
// paths, which come from statement text rather than parameters.
func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// jsonPathLiteral renders keys as a SQLite/MySQL JSON path: '$."a"."b"'.
func jsonPathLiteral(keys []string) string {
	var b strings.Builder
	b.WriteString("$")
	for _, k := range keys {
		k = strings.ReplaceAll(k, `\`, `\\`)
		k = strings.ReplaceAll(k, `"`, `\"`)
		b.WriteString(`."` + k + `"`)
	}
	return quoteString(b.String())
}

// supportsReturning reports whether mutations can return rows.
func (d Dialect) supportsReturning() bool {
	return d != MySQL
}
