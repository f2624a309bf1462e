// Package natskv keeps anonymous usage counters in a JetStream key-value
// bucket, using revision compare-and-set for atomic increments.
package natskv

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

const maxCASRetries = 8

// counterTTL outlives the monthly bucket a key belongs to.
const counterTTL = 40 * 24 * time.Hour

var (
	errNotFound = errors.New("key not found")
	errExists   = errors.New("key exists")

	// ErrContention is returned when the CAS loop keeps losing races.
	ErrContention = errors.New("counter update contention")
)

type casStore interface {
	get(key string) ([]byte, uint64, error)
	create(key string, val []byte) error
	update(key string, val []byte, rev uint64) error
}

// Counters implements ports.CounterStore.
type Counters struct {
	kv casStore
}

// Open binds to the bucket, creating it when missing.
func Open(js nats.JetStreamContext, bucket string) (*Counters, error) {
	kv, err := js.KeyValue(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:  bucket,
			History: 1,
			TTL:     counterTTL,
			Storage: nats.FileStorage,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("open kv bucket %s: %w", bucket, err)
	}
	return &Counters{kv: natsKV{kv}}, nil
}

// kvKey maps quota keys onto the KV key alphabet.
func kvKey(key string) string {
	return strings.NewReplacer(":", ".", " ", "_").Replace(key)
}

func (c *Counters) Increment(ctx context.Context, key string) (int, error) {
	return c.add(ctx, kvKey(key), 1)
}

// Decrement never takes a counter below zero.
func (c *Counters) Decrement(ctx context.Context, key string) error {
	_, err := c.add(ctx, kvKey(key), -1)
	if errors.Is(err, errNotFound) {
		return nil
	}
	return err
}

func (c *Counters) add(ctx context.Context, key string, delta int) (int, error) {
	var lastErr error
	for range maxCASRetries {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		raw, rev, err := c.kv.get(key)
		if errors.Is(err, errNotFound) {
			if delta < 0 {
				return 0, errNotFound
			}
			err = c.kv.create(key, []byte(strconv.Itoa(delta)))
			if err == nil {
				return delta, nil
			}
			if !errors.Is(err, errExists) {
				return 0, fmt.Errorf("create counter %s: %w", key, err)
			}
			lastErr = err
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("get counter %s: %w", key, err)
		}

		n, err := strconv.Atoi(string(raw))
		if err != nil {
			return 0, fmt.Errorf("counter %s holds %q: %w", key, raw, err)
		}
		next := max(n+delta, 0)
		if err := c.kv.update(key, []byte(strconv.Itoa(next)), rev); err != nil {
			lastErr = err
			continue
		}
		return next, nil
	}
	return 0, fmt.Errorf("%w on %s: %w", ErrContention, key, lastErr)
}

type natsKV struct{ kv nats.KeyValue }

func (n natsKV) get(key string) ([]byte, uint64, error) {
	e, err := n.kv.Get(key)
	if errors.Is(err, nats.ErrKeyNotFound) {
		return nil, 0, errNotFound
	}
	if err != nil {
		return nil, 0, err
	}
	return e.Value(), e.Revision(), nil
}

func (n natsKV) create(key string, val []byte) error {
	_, err := n.kv.Create(key, val)
	if errors.Is(err, nats.ErrKeyExists) {
		return errExists
	}
	return err
}

func (n natsKV) update(key string, val []byte, rev uint64) error {
	_, err := n.kv.Update(key, val, rev)
	return err
}
