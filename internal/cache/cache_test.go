package cache_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neexbeast/museum-checkin/internal/cache"
	"github.com/neexbeast/museum-checkin/internal/checkin"
)

type mockLoader struct {
	calls int
	fn    func(ctx context.Context, id int64) (*checkin.Museum, error)
}

func (m *mockLoader) GetMuseum(ctx context.Context, id int64) (*checkin.Museum, error) {
	m.calls++
	return m.fn(ctx, id)
}

func palaceLoader() *mockLoader {
	return &mockLoader{fn: func(_ context.Context, id int64) (*checkin.Museum, error) {
		lat, lon := 39.9163, 116.3972
		return &checkin.Museum{ID: id, Name: "故宫博物院", Latitude: &lat, Longitude: &lon}, nil
	}}
}

func newTestCache(t *testing.T, upstream cache.MuseumLoader) (*cache.Museums, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return cache.NewMuseums(client, upstream, slog.New(slog.DiscardHandler)), mr
}

func TestMuseums_SetAndGet(t *testing.T) {
	c, _ := newTestCache(t, palaceLoader())
	ctx := context.Background()

	lat := 31.2
	require.NoError(t, c.Set(ctx, &checkin.Museum{ID: 9, Name: "上海博物馆", Latitude: &lat}))

	got, err := c.Get(ctx, 9)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "上海博物馆", got.Name)
	require.NotNil(t, got.Latitude)
	assert.Equal(t, 31.2, *got.Latitude)
}

func TestMuseums_Get_Miss(t *testing.T) {
	c, _ := newTestCache(t, palaceLoader())

	got, err := c.Get(context.Background(), 404)
	require.NoError(t, err)
	assert.Nil(t, got, "cache miss should return nil, nil")
}

func TestMuseums_Set_Nil(t *testing.T) {
	c, _ := newTestCache(t, palaceLoader())
	require.NoError(t, c.Set(context.Background(), nil))
}

func TestMuseums_Delete(t *testing.T) {
	c, _ := newTestCache(t, palaceLoader())
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, &checkin.Museum{ID: 1}))
	require.NoError(t, c.Delete(ctx, 1))
	require.NoError(t, c.Delete(ctx, 1))

	got, err := c.Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMuseums_ReadThrough(t *testing.T) {
	up := palaceLoader()
	c, mr := newTestCache(t, up)
	ctx := context.Background()

	m, err := c.GetMuseum(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "故宫博物院", m.Name)
	assert.True(t, mr.Exists("museum:42"))

	m, err = c.GetMuseum(ctx, 42)
	require.NoError(t, err)
	assert.True(t, m.HasCoordinates())
	assert.Equal(t, 1, up.calls)

	mr.FastForward(2 * time.Hour)
	_, err = c.GetMuseum(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 2, up.calls)
}

func TestMuseums_NotFoundIsNotCached(t *testing.T) {
	up := &mockLoader{fn: func(_ context.Context, id int64) (*checkin.Museum, error) {
		return nil, checkin.ErrMuseumNotFound
	}}
	c, mr := newTestCache(t, up)

	_, err := c.GetMuseum(context.Background(), 7)
	assert.ErrorIs(t, err, checkin.ErrMuseumNotFound)
	assert.False(t, mr.Exists("museum:7"))

	_, err = c.GetMuseum(context.Background(), 7)
	assert.ErrorIs(t, err, checkin.ErrMuseumNotFound)
	assert.Equal(t, 2, up.calls)
}

func TestMuseums_CacheDownFallsBackToUpstream(t *testing.T) {
	up := palaceLoader()
	c, mr := newTestCache(t, up)
	mr.Close()

	m, err := c.GetMuseum(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "故宫博物院", m.Name)
	assert.Equal(t, 1, up.calls)
}

func TestMuseums_CorruptEntryRefetched(t *testing.T) {
	up := palaceLoader()
	c, mr := newTestCache(t, up)
	require.NoError(t, mr.Set("museum:42", "{not json"))

	m, err := c.GetMuseum(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "故宫博物院", m.Name)
	assert.Equal(t, 1, up.calls)

	_, err = c.Get(context.Background(), 42)
	require.NoError(t, err)
}

func TestMuseums_UpstreamError(t *testing.T) {
	boom := errors.New("boom")
	c, _ := newTestCache(t, &mockLoader{fn: func(context.Context, int64) (*checkin.Museum, error) {
		return nil, boom
	}})

	_, err := c.GetMuseum(context.Background(), 1)
	assert.ErrorIs(t, err, boom)
}
