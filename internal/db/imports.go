package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// latestImportQuery picks the newest import whose database name mentions the fleet.
const latestImportQuery = `
SELECT db_name
FROM public.latest_bus_imports
WHERE db_name ILIKE '%' || $1 || '%'
ORDER BY imported_at DESC
LIMIT 1`

// ResolveFleetDSN connects to the cluster's "postgres" database, looks up the
// newest bus data import for fleet and returns baseDSN pointed at it together
// with the resolved database name. An empty fleet returns baseDSN untouched.
func ResolveFleetDSN(ctx context.Context, baseDSN, fleet string) (dsn, dbName string, err error) {
	fleet = strings.TrimSpace(fleet)
	if fleet == "" {
		return baseDSN, "", nil
	}

	rootDSN, err := WithDBName(baseDSN, "postgres")
	if err != nil {
		return "", "", fmt.Errorf("invalid base DSN: %w", err)
	}
	meta, err := Open(rootDSN)
	if err != nil {
		return "", "", fmt.Errorf("open meta db: %w", err)
	}
	defer meta.Close()
	if err := Ping(ctx, meta); err != nil {
		return "", "", fmt.Errorf("ping meta db: %w", err)
	}

	var name sql.NullString
	if err := meta.QueryRowContext(ctx, latestImportQuery, fleet).Scan(&name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", fmt.Errorf("no bus data import found for fleet like %q", fleet)
		}
		return "", "", fmt.Errorf("query latest import: %w", err)
	}
	if !name.Valid || name.String == "" {
		return "", "", fmt.Errorf("empty db_name for fleet like %q", fleet)
	}

	dsn, err = WithDBName(baseDSN, name.String)
	if err != nil {
		return "", "", fmt.Errorf("compose DSN: %w", err)
	}
	return dsn, name.String, nil
}
