package infrastructure

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upsell/internal/service/promotion/domain"
)

func TestLocalLocker(t *testing.T) {
	l := NewLocalLocker()
	unlock, err := l.Lock(context.Background(), "catalog-shop-1")
	require.NoError(t, err)

	other, err := l.Lock(context.Background(), "catalog-shop-2")
	require.NoError(t, err)
	require.NoError(t, other())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "catalog-shop-1")
	assert.ErrorIs(t, err, domain.ErrLockTimeout)

	require.NoError(t, unlock())
	require.NoError(t, unlock(), "unlock is idempotent")

	again, err := l.Lock(context.Background(), "catalog-shop-1")
	require.NoError(t, err)
	require.NoError(t, again())
}
