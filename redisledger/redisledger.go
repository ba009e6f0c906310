// Package redisledger is a lookbook.RowStore that keeps rows in Redis. Image
// URLs live in a sorted set scored by insertion time so old identities age out
// after the ledger TTL.
package redisledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/anatolykoptev/go-lookbook"
)

const defaultPrefix = "lookbook"

// Config configures the ledger connection and keys.
type Config struct {
	Addr     string // e.g. localhost:6379
	Password string
	DB       int
	Prefix   string        // key prefix, default "lookbook"
	TTL      time.Duration // 0 = rows never expire
}

// Ledger stores rows as hashes and their identities in a sorted set.
type Ledger struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

var _ lookbook.RowStore = (*Ledger)(nil)

// New connects to Redis and pings it.
func New(ctx context.Context, cfg Config) (*Ledger, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}
	return NewWithClient(rdb, cfg), nil
}

// NewWithClient wraps an existing client. Addr, Password and DB are ignored.
func NewWithClient(rdb *redis.Client, cfg Config) *Ledger {
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	return &Ledger{client: rdb, prefix: cfg.Prefix, ttl: cfg.TTL, now: time.Now}
}

func (l *Ledger) identitiesKey() string { return l.prefix + ":identities" }

func (l *Ledger) rowKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return l.prefix + ":row:" + hex.EncodeToString(sum[:])
}

// AppendRows stores every row and records its identity in one transaction.
func (l *Ledger) AppendRows(ctx context.Context, rows []lookbook.Row) error {
	if len(rows) == 0 {
		return nil
	}
	score := float64(l.now().Unix())
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, row := range rows {
			url := row[lookbook.IdentityColumn]
			if url == "" {
				continue
			}
			key := l.rowKey(url)
			fields := make(map[string]any, len(row))
			for k, v := range row {
				fields[k] = v
			}
			pipe.HSet(ctx, key, fields)
			if l.ttl > 0 {
				pipe.Expire(ctx, key, l.ttl)
			}
			pipe.ZAdd(ctx, l.identitiesKey(), redis.Z{Score: score, Member: url})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store %d rows in redis: %w", len(rows), err)
	}
	return nil
}

// ListExisting drops identities older than the TTL and returns the rest,
// oldest first.
func (l *Ledger) ListExisting(ctx context.Context) ([]string, error) {
	key := l.identitiesKey()
	if l.ttl > 0 {
		cutoff := l.now().Add(-l.ttl).Unix()
		if err := l.client.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(cutoff, 10)).Err(); err != nil {
			return nil, fmt.Errorf("expire identities: %w", err)
		}
	}
	urls, err := l.client.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	return urls, nil
}

// Row returns the stored fields for url, or nil when unknown.
func (l *Ledger) Row(ctx context.Context, url string) (lookbook.Row, error) {
	fields, err := l.client.HGetAll(ctx, l.rowKey(url)).Result()
	if err != nil {
		return nil, fmt.Errorf("read row %s: %w", url, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return lookbook.Row(fields), nil
}

// Close closes the Redis client.
func (l *Ledger) Close() error {
	return l.client.Close()
}
