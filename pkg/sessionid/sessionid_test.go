package sessionid

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestResolve_MemoryIsStableAndEphemeral(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first, err := Resolve(ctx, store)
	require.NoError(t, err)
	require.True(t, first.Valid())
	require.False(t, first.Persistent)
	_, err = uuid.Parse(first.ID)
	require.NoError(t, err)

	second, err := Resolve(ctx, store)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestResolve_FileSurvivesNewStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "session.yaml")

	first, err := Resolve(ctx, NewFileStore(path))
	require.NoError(t, err)
	require.True(t, first.Persistent)

	second, err := Resolve(ctx, NewFileStore(path))
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "session_id: "+first.ID)
}

func TestFileStore_SaveNeverOverwrites(t *testing.T) {
	ctx := context.Background()
	fs := NewFileStore(filepath.Join(t.TempDir(), "session.yaml"))
	require.NoError(t, fs.Save(ctx, "a"))
	require.NoError(t, fs.Save(ctx, "b"))
	id, ok, err := fs.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a", id)
}

func TestOpen(t *testing.T) {
	s, err := Open(Settings{})
	require.NoError(t, err)
	require.IsType(t, &MemoryStore{}, s)

	s, err = Open(Settings{Backend: "file", Path: filepath.Join(t.TempDir(), "s.yaml")})
	require.NoError(t, err)
	require.True(t, s.Persistent())

	_, err = Open(Settings{Backend: "redis"})
	require.Error(t, err)
	_, err = Open(Settings{Backend: "etcd"})
	require.Error(t, err)
}

func TestResolve_Redis(t *testing.T) {
	addr := os.Getenv("ESTATEBOT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ESTATEBOT_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	name := "test-" + uuid.NewString()
	t.Cleanup(func() { _ = client.Del(ctx, redisKeyPrefix+name).Err() })

	first, err := Resolve(ctx, NewRedisStore(client, name, 0))
	require.NoError(t, err)
	second, err := Resolve(ctx, NewRedisStore(client, name, 0))
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.True(t, second.Persistent)
}
