// Package sqlite implements the durable repository over a sqlite database.
package sqlite

import (
	"errors"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"

	"github.com/mknowles/gatherer/internal/gatherer"
)

// Ensure Repo implements the Repository interface
var _ gatherer.Repository = (*Repo)(nil)

const (
	sourceNamespace  = "-src"
	articleNamespace = "-art"
)

type Repo struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) Repo {
	return Repo{db: db}
}

// Primary result code for a UNIQUE constraint violation.
const codeConstraintUnique = 2067

func isUniqueViolation(err error) bool {
	sqliteErr := &sqlite.Error{}

	return errors.As(err, &sqliteErr) && sqliteErr.Code() == codeConstraintUnique
}

// isBusy reports whether the error is a transient lock conflict worth
// retrying. Extended result codes keep the primary code in the low byte.
func isBusy(err error) bool {
	sqliteErr := &sqlite.Error{}
	if !errors.As(err, &sqliteErr) {
		return false
	}

	primary := sqliteErr.Code() % 256

	return primary == 5 || primary == 6 // SQLITE_BUSY, SQLITE_LOCKED
}
