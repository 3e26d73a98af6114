package storage

import (
	"fmt"
	"strconv"
	"strings"
)

// Driver names as registered with database/sql.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

type dialect struct {
	name string
	// insertProduct inserts a product row unless the sku exists, reporting
	// zero rows affected in that case.
	insertProduct string
	positional    bool
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case DriverMySQL:
		return dialect{
			name:          driver,
			insertProduct: `INSERT IGNORE INTO products (sku, version) VALUES (?, ?)`,
		}, nil
	case DriverPostgres:
		return dialect{
			name:          driver,
			insertProduct: `INSERT INTO products (sku, version) VALUES (?, ?) ON CONFLICT (sku) DO NOTHING`,
			positional:    true,
		}, nil
	case DriverSQLite:
		return dialect{
			name:          driver,
			insertProduct: `INSERT INTO products (sku, version) VALUES (?, ?) ON CONFLICT (sku) DO NOTHING`,
		}, nil
	default:
		return dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// rebind rewrites ? placeholders to $n for drivers that need it.
func (d dialect) rebind(query string) string {
	if !d.positional {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
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
