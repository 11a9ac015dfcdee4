package database

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirbelkuyu/fbadapter/internal/dialect"
)

func TestSessionRunClassifiesErrors(t *testing.T) {
	drv, mock := newMockDriver(t)
	session := NewSession(drv, nil)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO USERS (ID) VALUES (?)")).
		WithArgs(1).
		WillReturnError(errors.New(`violation of PRIMARY or UNIQUE KEY constraint "PK_USERS" on table "USERS"`))

	_, err := session.Run(context.Background(), "INSERT INTO USERS (ID) VALUES (?)", 1)
	require.ErrorIs(t, err, dialect.ErrUniqueViolation)

	var se *dialect.StatementError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, []any{1}, se.Args)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRunReturnsRows(t *testing.T) {
	drv, mock := newMockDriver(t)
	session := NewSession(drv, NewNormalizer("UTF8"))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT CURRENT_USER FROM RDB$DATABASE")).
		WillReturnRows(sqlmock.NewRows([]string{"USER"}).AddRow("SYSDBA"))

	rs, err := session.Run(context.Background(), "SELECT CURRENT_USER FROM RDB$DATABASE")
	require.NoError(t, err)

	v, ok := rs.Scalar()
	require.True(t, ok)
	assert.Equal(t, "SYSDBA", v.Str())
	assert.Same(t, drv, session.Driver())
}
