package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/coldroom-service/internal/domain"
	testinfra "github.com/wms-platform/coldroom-service/pkg/testing"
)

func TestRedisLocker(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	container, err := testinfra.NewRedisContainer(ctx)
	require.NoError(t, err)
	defer container.Close(ctx)

	rdb, err := NewRedisClient(ctx, container.Address)
	require.NoError(t, err)
	defer rdb.Close()

	cfg := DefaultRedisConfig(container.Address)
	cfg.RetryCount = 3
	cfg.RetryInterval = 10 * time.Millisecond
	locker := NewRedisLocker(rdb, cfg)
	require.NoError(t, locker.Ping(ctx))

	unlock, err := locker.Acquire(ctx, "coldroom:1:b", "coldroom:1:a")
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "coldroom:1:a")
	assert.ErrorIs(t, err, domain.ErrLockNotObtained)

	unlock()

	again, err := locker.Acquire(ctx, "coldroom:1:a")
	require.NoError(t, err)
	again()
}
