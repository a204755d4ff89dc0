package tracestore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mediocregopher/radix/v3"
)

// RedisConfig configures the connection pool of a RedisStore.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	PoolSize int    `yaml:"pool_size"`
	DB       int    `yaml:"db"`
}

// RedisStore keeps records in redis. Records expire through the PX option of
// SET.
type RedisStore struct {
	client radix.Client
	ttl    time.Duration
}

// DialRedisStore creates a pool of connections to the configured server.
func DialRedisStore(cfg RedisConfig, ttl time.Duration) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis store address is required")
	}

	size := cfg.PoolSize
	if size <= 0 {
		size = 4
	}

	connFunc := func(network, addr string) (radix.Conn, error) {
		return radix.Dial(network, addr, radix.DialSelectDB(cfg.DB))
	}

	pool, err := radix.NewPool("tcp", cfg.Addr, size, radix.PoolConnFunc(connFunc))
	if err != nil {
		return nil, fmt.Errorf("connect redis store %s: %w", cfg.Addr, err)
	}

	return NewRedisStore(pool, ttl), nil
}

// NewRedisStore creates a RedisStore over an existing client. The store owns
// the client and closes it on Close.
func NewRedisStore(client radix.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Put stores the record under the key.
func (s *RedisStore) Put(ctx context.Context, key string, rec *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	args := []string{key, string(data)}
	if s.ttl > 0 {
		px := s.ttl.Milliseconds()
		if px < 1 {
			px = 1
		}

		args = append(args, "PX", strconv.FormatInt(px, 10))
	}

	if err := s.client.Do(radix.Cmd(nil, "SET", args...)); err != nil {
		return fmt.Errorf("put %s into redis store: %w", key, err)
	}

	return nil
}

// Get returns the record stored under the key.
func (s *RedisStore) Get(ctx context.Context, key string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var data []byte

	mn := radix.MaybeNil{Rcv: &data}
	if err := s.client.Do(radix.Cmd(&mn, "GET", key)); err != nil {
		return nil, fmt.Errorf("get %s from redis store: %w", key, err)
	}

	if mn.Nil {
		return nil, ErrNotFound
	}

	return decodeRecord(data)
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
