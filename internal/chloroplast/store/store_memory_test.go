package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"protocell/pkg/domain"
)

func TestInMemoryLog(t *testing.T) {
	log := NewInMemoryLog()
	ctx := context.Background()
	owner := domain.NewAddress()
	other := domain.NewAddress()

	first := domain.NewAddress()
	second := domain.NewAddress()
	require.NoError(t, log.Append(ctx, owner, first))
	require.NoError(t, log.Append(ctx, owner, second))
	require.NoError(t, log.Append(ctx, other, domain.NewAddress()))

	cells, err := log.List(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, []domain.Address{first, second}, cells, "oldest first")

	empty, err := log.List(ctx, domain.NewAddress())
	require.NoError(t, err)
	assert.Empty(t, empty)
}
