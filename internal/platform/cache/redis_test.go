package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestNewPingsServer(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := New(context.Background(), mr.Addr())
	require.NoError(t, err)
	require.NotNil(t, client)
	require.NoError(t, client.Close())
}

func TestNewReturnsClosableClientWhenPingFails(t *testing.T) {
	client, err := New(context.Background(), "127.0.0.1:0")
	require.Error(t, err)
	require.NotNil(t, client)
	require.NoError(t, client.Close())
}
