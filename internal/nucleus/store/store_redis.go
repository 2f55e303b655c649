package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"protocell/internal/organelle"
	"protocell/pkg/domain"
	"protocell/pkg/platform/sentinel"
)

// RedisStore persists organelle tables in Redis. Each registry owns three
// keys: a name hash, a reverse address hash, and an insertion-order list.
// Writes run inside a WATCH transaction so the three keys stay consistent.
type RedisStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func keyByName(registry domain.Address) string {
	return "nucleus:" + registry.String() + ":byname"
}

func keyByAddr(registry domain.Address) string {
	return "nucleus:" + registry.String() + ":byaddr"
}

func keyOrder(registry domain.Address) string {
	return "nucleus:" + registry.String() + ":order"
}

func encodeEntry(entry organelle.Organelle) string {
	return entry.Address.String() + "|" + strconv.FormatBool(entry.Replicable)
}

func decodeEntry(name, raw string) (organelle.Organelle, error) {
	addrPart, flagPart, ok := strings.Cut(raw, "|")
	if !ok {
		return organelle.Organelle{}, fmt.Errorf("malformed organelle value %q", raw)
	}
	addr, err := domain.ParseAddress(addrPart)
	if err != nil {
		return organelle.Organelle{}, fmt.Errorf("parse organelle address: %w", err)
	}
	replicable, err := strconv.ParseBool(flagPart)
	if err != nil {
		return organelle.Organelle{}, fmt.Errorf("parse organelle flag: %w", err)
	}
	return organelle.Organelle{Name: name, Address: addr, Replicable: replicable}, nil
}

func (s *RedisStore) Append(ctx context.Context, registry domain.Address, entry organelle.Organelle) error {
	byName, byAddr, order := keyByName(registry), keyByAddr(registry), keyOrder(registry)

	txn := func(tx *redis.Tx) error {
		nameTaken, err := tx.HExists(ctx, byName, entry.Name).Result()
		if err != nil {
			return err
		}
		addrTaken, err := tx.HExists(ctx, byAddr, entry.Address.String()).Result()
		if err != nil {
			return err
		}
		if nameTaken || addrTaken {
			return sentinel.ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, byName, entry.Name, encodeEntry(entry))
			pipe.HSet(ctx, byAddr, entry.Address.String(), entry.Name)
			pipe.RPush(ctx, order, entry.Name)
			return nil
		})
		return err
	}
	if err := s.client.Watch(ctx, txn, byName, byAddr); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("append organelle: %w", err)
	}
	return nil
}

func (s *RedisStore) Update(ctx context.Context, registry domain.Address, entry organelle.Organelle) error {
	byName, byAddr := keyByName(registry), keyByAddr(registry)

	txn := func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, byName, entry.Name).Result()
		if errors.Is(err, redis.Nil) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return err
		}
		previous, err := decodeEntry(entry.Name, raw)
		if err != nil {
			return err
		}
		holder, err := tx.HGet(ctx, byAddr, entry.Address.String()).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil && holder != entry.Name {
			return sentinel.ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HDel(ctx, byAddr, previous.Address.String())
			pipe.HSet(ctx, byName, entry.Name, encodeEntry(entry))
			pipe.HSet(ctx, byAddr, entry.Address.String(), entry.Name)
			return nil
		})
		return err
	}
	if err := s.client.Watch(ctx, txn, byName, byAddr); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) || errors.Is(err, sentinel.ErrConflict) {
			return err
		}
		return fmt.Errorf("update organelle: %w", err)
	}
	return nil
}

func (s *RedisStore) ByName(ctx context.Context, registry domain.Address, name string) (organelle.Organelle, error) {
	raw, err := s.client.HGet(ctx, keyByName(registry), name).Result()
	if errors.Is(err, redis.Nil) {
		return organelle.Organelle{}, sentinel.ErrNotFound
	}
	if err != nil {
		return organelle.Organelle{}, fmt.Errorf("get organelle by name: %w", err)
	}
	return decodeEntry(name, raw)
}

func (s *RedisStore) ByAddress(ctx context.Context, registry domain.Address, addr domain.Address) (organelle.Organelle, error) {
	name, err := s.client.HGet(ctx, keyByAddr(registry), addr.String()).Result()
	if errors.Is(err, redis.Nil) {
		return organelle.Organelle{}, sentinel.ErrNotFound
	}
	if err != nil {
		return organelle.Organelle{}, fmt.Errorf("get organelle by address: %w", err)
	}
	return s.ByName(ctx, registry, name)
}

func (s *RedisStore) List(ctx context.Context, registry domain.Address) (organelle.Table, error) {
	names, err := s.client.LRange(ctx, keyOrder(registry), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list organelles: %w", err)
	}
	if len(names) == 0 {
		return organelle.Table{}, nil
	}
	raws, err := s.client.HMGet(ctx, keyByName(registry), names...).Result()
	if err != nil {
		return nil, fmt.Errorf("list organelles: %w", err)
	}
	entries := make(organelle.Table, 0, len(names))
	for i, name := range names {
		raw, ok := raws[i].(string)
		if !ok {
			return nil, fmt.Errorf("organelle %q missing from name hash", name)
		}
		entry, err := decodeEntry(name, raw)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
