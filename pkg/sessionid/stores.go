package sessionid

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// MemoryStore keeps the id for the lifetime of the process.
type MemoryStore struct {
	mu sync.Mutex
	id string
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Load(context.Context) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id, m.id != "", nil
}

func (m *MemoryStore) Save(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.id == "" {
		m.id = id
	}
	return nil
}

func (m *MemoryStore) Persistent() bool { return false }

// FileStore keeps the id in a small YAML file.
type FileStore struct {
	Path string
	mu   sync.Mutex
}

type fileRecord struct {
	SessionID string    `yaml:"session_id"`
	CreatedAt time.Time `yaml:"created_at"`
}

func NewFileStore(path string) *FileStore { return &FileStore{Path: path} }

// DefaultFilePath is session.yaml under the user config directory.
func DefaultFilePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "user config dir")
	}
	return filepath.Join(dir, "estatebot", "session.yaml"), nil
}

func (f *FileStore) Load(context.Context) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load()
}

func (f *FileStore) load() (string, bool, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "read %s", f.Path)
	}
	var rec fileRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return "", false, errors.Wrapf(err, "parse %s", f.Path)
	}
	id := strings.TrimSpace(rec.SessionID)
	return id, id != "", nil
}

func (f *FileStore) Save(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok, err := f.load(); err == nil && ok && existing != "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return errors.Wrap(err, "create session dir")
	}
	data, err := yaml.Marshal(fileRecord{SessionID: id, CreatedAt: time.Now().UTC()})
	if err != nil {
		return errors.Wrap(err, "encode session file")
	}
	tmp := f.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.Wrap(err, "write session file")
	}
	return errors.Wrap(os.Rename(tmp, f.Path), "rename session file")
}

func (f *FileStore) Persistent() bool { return true }

// RedisStore keeps the id under estatebot:session:<client>.
type RedisStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

const redisKeyPrefix = "estatebot:session:"

func NewRedisStore(client *redis.Client, clientName string, ttl time.Duration) *RedisStore {
	if clientName == "" {
		clientName = "default"
	}
	return &RedisStore{client: client, key: redisKeyPrefix + clientName, ttl: ttl}
}

func (r *RedisStore) Load(ctx context.Context) (string, bool, error) {
	id, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "redis session get")
	}
	return id, id != "", nil
}

func (r *RedisStore) Save(ctx context.Context, id string) error {
	if err := r.client.SetNX(ctx, r.key, id, r.ttl).Err(); err != nil {
		return errors.Wrap(err, "redis session setnx")
	}
	return nil
}

func (r *RedisStore) Persistent() bool { return true }

// Settings selects the backing store.
type Settings struct {
	// Backend is "memory", "file" or "redis".
	Backend    string        `mapstructure:"backend" yaml:"backend"`
	Path       string        `mapstructure:"path" yaml:"path"`
	RedisAddr  string        `mapstructure:"redis_addr" yaml:"redis_addr"`
	ClientName string        `mapstructure:"client_name" yaml:"client_name"`
	TTL        time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

func Open(s Settings) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(s.Backend)) {
	case "", "memory":
		return NewMemoryStore(), nil
	case "file":
		path := s.Path
		if path == "" {
			var err error
			if path, err = DefaultFilePath(); err != nil {
				return nil, err
			}
		}
		return NewFileStore(path), nil
	case "redis":
		if s.RedisAddr == "" {
			return nil, errors.New("session store: redis backend needs redis_addr")
		}
		return NewRedisStore(redis.NewClient(&redis.Options{Addr: s.RedisAddr}), s.ClientName, s.TTL), nil
	default:
		return nil, errors.Errorf("session store: unknown backend %q", s.Backend)
	}
}
