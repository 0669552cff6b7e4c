package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/lib/pq"

	"github.com/custodia-labs/subscription-params/internal/core/domain"
)

// PostgreSQL SQLSTATE values the store cares about
const (
	codeUniqueViolation pq.ErrorCode = "23505"
	codeQueryCanceled   pq.ErrorCode = "57014"

	classDataException         pq.ErrorClass = "22"
	classConnectionException   pq.ErrorClass = "08"
	classInsufficientResources pq.ErrorClass = "53"
	classOperatorIntervention  pq.ErrorClass = "57"
)

// classifyError maps driver errors onto domain error kinds.
// Errors already carrying a domain kind pass through unchanged.
func classifyError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrConstraintViolation) ||
		errors.Is(err, domain.ErrStorageUnavailable) ||
		errors.Is(err, domain.ErrInvalidInput) ||
		errors.Is(err, domain.ErrNotFound) {
		return err
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == codeUniqueViolation:
			return fmt.Errorf("%s: %w: %w", op, domain.ErrConstraintViolation, err)
		case pqErr.Code.Class() == classDataException:
			return fmt.Errorf("%s: %w: %w", op, domain.ErrInvalidInput, err)
		case pqErr.Code == codeQueryCanceled,
			pqErr.Code.Class() == classConnectionException,
			pqErr.Code.Class() == classInsufficientResources,
			pqErr.Code.Class() == classOperatorIntervention:
			return fmt.Errorf("%s: %w: %w", op, domain.ErrStorageUnavailable, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if isUnavailable(err) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrStorageUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUnavailable(err error) bool {
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
