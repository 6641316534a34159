package quarry

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKindMatching(t *testing.T) {
	err := NewError(KindIntegrity, "duplicate key on %s", "users")

	assert.True(t, IsIntegrityError(err))
	assert.False(t, IsConnectionError(err))
	assert.True(t, errors.Is(err, ErrIntegrity))
	assert.False(t, errors.Is(err, ErrTransaction))
	assert.Equal(t, "integrity error: duplicate key on users", err.Error())
}

func TestErrorWrappingPreservesCause(t *testing.T) {
	cause := fmt.Errorf("driver: bad handshake")
	err := WrapError(KindConnection, cause, "connect to %s failed", "db-1")

	require.True(t, IsConnectionError(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connect to db-1 failed")
	assert.Contains(t, err.Error(), "bad handshake")
}

func TestErrorKindSurvivesFurtherWrapping(t *testing.T) {
	inner := NewError(KindTransaction, "transaction already finalised")
	outer := fmt.Errorf("commit step: %w", inner)

	assert.True(t, IsTransactionError(outer))
	assert.False(t, IsOperationalError(outer))
}

func TestErrorPredicatesRejectForeignErrors(t *testing.T) {
	plain := errors.New("something else")
	assert.False(t, IsConnectionError(plain))
	assert.False(t, IsOperationalError(plain))
	assert.False(t, IsIntegrityError(plain))
	assert.False(t, IsTransactionError(plain))
	assert.False(t, IsConnectionError(nil))
}
