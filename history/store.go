package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultFileName  = "session_history.json"
	ServerlessPath   = "/tmp/session_history.json"
	DefaultRedisKey  = "studybreak:history"
	DefaultRedisAddr = "127.0.0.1:6379"
)

// Store persists the session history
type Store interface {
	// Load returns an empty history when nothing was stored yet
	Load(context.Context) (*History, error)
	Save(context.Context, *History) error
}

// ResolvePath picks the history file: DATA_PATH if set,
// the serverless tmp file when VERCEL is set, the working directory otherwise
func ResolvePath(getenv func(string) string) string {
	if p := getenv("DATA_PATH"); p != "" {
		return p
	}
	if getenv("VERCEL") != "" {
		return ServerlessPath
	}
	return DefaultFileName
}

// FileStore keeps the history as a json file
type FileStore struct {
	path string
}

var _ Store = &FileStore{}

func NewFileStore(path string) *FileStore {
	if path == "" {
		path = ResolvePath(os.Getenv)
	}
	return &FileStore{path: path}
}

func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) Load(_ context.Context) (*History, error) {
	bs, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return New(), nil
	} else if err != nil {
		return nil, fmt.Errorf("reading history file: %w", err)
	}
	return Decode(bs)
}

func (f *FileStore) Save(_ context.Context, h *History) error {
	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return fmt.Errorf("creating history folder: %w", err)
		}
	}
	bs, err := h.Encode()
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, bs, 0644)
}

// RedisStore keeps the history as a json value under a single key
type RedisStore struct {
	client *redis.Client
	key    string
}

var _ Store = &RedisStore{}

func NewRedisStore(addr, key string) *RedisStore {
	if addr == "" {
		addr = DefaultRedisAddr
	}
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr: addr,
		}),
		key: key,
	}
}

func (r *RedisStore) Load(ctx context.Context) (*History, error) {
	bs, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return New(), nil
	} else if err != nil {
		return nil, fmt.Errorf("reading history from redis: %w", err)
	}
	return Decode(bs)
}

func (r *RedisStore) Save(ctx context.Context, h *History) error {
	bs, err := h.Encode()
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key, bs, 0).Err(); err != nil {
		return fmt.Errorf("writing history to redis: %w", err)
	}
	return nil
}

// Ping checks the connection to the redis server
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

// MemStore keeps a copy of the history in memory
type MemStore struct {
	mu      sync.Mutex
	history *History
	saves   int
}

var _ Store = &MemStore{}

func NewMemStore() *MemStore {
	return &MemStore{}
}

func (m *MemStore) Load(_ context.Context) (*History, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.history == nil {
		return New(), nil
	}
	return m.history.Clone(), nil
}

func (m *MemStore) Save(_ context.Context, h *History) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = h.Clone()
	m.saves += 1
	return nil
}

// Saves is the number of times the history was saved
func (m *MemStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
