package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestNewClient_URL(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewClient(context.Background(), Config{URL: "redis://" + mr.Addr() + "/0"})
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	require.Equal(t, "v", got)
}

func TestNewClient_Addrs(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewClient(context.Background(), Config{Addrs: []string{mr.Addr()}})
	require.NoError(t, err)
	require.NoError(t, client.Close())
}

func TestNewClient_RequiresAddress(t *testing.T) {
	_, err := NewClient(context.Background(), Config{})
	require.Error(t, err)
}

func TestNewClient_BadURL(t *testing.T) {
	_, err := NewClient(context.Background(), Config{URL: "http://nope"})
	require.Error(t, err)
}

func TestJSONValue_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(context.Background(), Config{Addrs: []string{mr.Addr()}})
	require.NoError(t, err)
	defer client.Close()

	v := NewJSONValue[sample](client, "cadence:test")
	_, err = v.Get(context.Background())
	require.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, v.Set(context.Background(), sample{Name: "a", Count: 3}))
	got, err := v.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, sample{Name: "a", Count: 3}, got)

	require.NoError(t, mr.Set("cadence:test", "{not json"))
	_, err = v.Get(context.Background())
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrNotFound))
}
