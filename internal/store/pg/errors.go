package pg

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"sapl.leg.br/lexml/internal/norma"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// mapError turns constraint violations into repository sentinels.
func mapError(err error) error {
	pgErr, ok := maybePgError(err)
	if !ok {
		return err
	}
	switch pgErr.Code {
	case pgErrUniqueViolation:
		return fmt.Errorf("%w: %s", norma.ErrConflict, pgErr.ConstraintName)
	case pgErrForeignKeyViolation:
		return fmt.Errorf("%w: %s", norma.ErrInvalidInput, pgErr.ConstraintName)
	}
	return err
}
