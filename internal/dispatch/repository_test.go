package dispatch

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestUniqueViolationMatchesDriverError(t *testing.T) {
	driverErr := &pgconn.PgError{Code: "23505", ConstraintName: "uq_delivery_orders_reference"}

	require.True(t, uniqueViolation(driverErr))
	require.True(t, uniqueViolation(fmt.Errorf("insert order: %w", driverErr)))
}

func TestUniqueViolationIgnoresOtherErrors(t *testing.T) {
	require.False(t, uniqueViolation(errors.New("connection reset")))
	require.False(t, uniqueViolation(&pgconn.PgError{Code: "23503"}))
	require.False(t, uniqueViolation(nil))
}
