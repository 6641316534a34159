// Package common holds the dialect behavior shared by every SQL backend.
// Concrete dialects embed Dialect and override what their flavor changes.
package common

import (
	"database/sql/driver"
	"errors"
	"io"
	"net"

	"github.com/dataplane/quarry"
)

// Dialect is the shared base specialization: double-quoted identifiers,
// ?-style placeholders, plain EXPLAIN, no coercion or predicate overrides.
type Dialect struct{}

// Name identifies the base dialect; concrete backends override it.
func (Dialect) Name() string { return "common" }

// Quote escapes an identifier with double quotes.
func (Dialect) Quote(identifier string) string { return `"` + identifier + `"` }

// BinVar renders the positional placeholder.
func (Dialect) BinVar(i int) string { return "?" }

// ExplainPrefix returns the plain EXPLAIN prefix.
func (Dialect) ExplainPrefix() string { return "EXPLAIN" }

// SupportsReturning reports that inserts rely on LastInsertId by default.
func (Dialect) SupportsReturning() bool { return false }

// CoerceOverride registers no coercion overrides by default.
func (Dialect) CoerceOverride(kind quarry.FieldKind) (quarry.CoerceFunc, bool) {
	return nil, false
}

// FilterOverride registers no predicate overrides by default.
func (Dialect) FilterOverride(op quarry.Op) (quarry.PredicateFunc, bool) {
	return nil, false
}

// IsMissingDatabase reports no tolerated missing-database class by default.
func (Dialect) IsMissingDatabase(err error) bool { return false }

// Translate maps a failure to the taxonomy. Taxonomy errors pass through,
// connection-shaped failures become connection errors, everything else is
// operational. Concrete dialects refine this with their driver's typed
// errors before delegating.
func (d Dialect) Translate(err error) error {
	if err == nil {
		return nil
	}
	var taxonomy *quarry.Error
	if errors.As(err, &taxonomy) {
		return err
	}
	if d.IsConnectionError(err) {
		return quarry.WrapError(quarry.KindConnection, err, "connection failure")
	}
	return quarry.WrapError(quarry.KindOperational, err, "statement failed")
}

// IsConnectionError classifies the driver-agnostic connection failure
// shapes: a discarded driver connection, a closed stream or a network error.
func (Dialect) IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var taxonomy *quarry.Error
	if errors.As(err, &taxonomy) {
		return taxonomy.Kind == quarry.KindConnection
	}
	return false
}

// Quoter is the rendering subset of the dialect contract the shared helpers
// need.
type Quoter interface {
	Quote(identifier string) string
	BinVar(i int) string
}

// InsertColumnList renders the quoted column list and placeholder list for
// an insert statement.
func InsertColumnList(d Quoter, columns []string) (cols string, vars string) {
	for i, c := range columns {
		if i > 0 {
			cols += ", "
			vars += ", "
		}
		cols += d.Quote(c)
		vars += d.BinVar(i + 1)
	}
	return cols, vars
}
