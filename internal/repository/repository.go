package repository

import (
	"errors"
	"strings"

	"github.com/lib/pq"
)

// asPQError unwraps a lib/pq driver error from an error chain.
func asPQError(err error, target **pq.Error) bool {
	return errors.As(err, target)
}

// qualified prefixes every column in a comma-separated list with an alias,
// for RETURNING clauses on aliased updates.
func qualified(columns, alias string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
