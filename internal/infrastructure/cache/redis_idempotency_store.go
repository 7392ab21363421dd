package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisIdempotencyStore comparte las claves entre instancias de la API.
type RedisIdempotencyStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisClient abre y verifica la conexión.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewRedisIdempotencyStore construye el store sobre un cliente existente.
func NewRedisIdempotencyStore(client *redis.Client, ttl time.Duration) *RedisIdempotencyStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisIdempotencyStore{client: client, keyPrefix: "mecef:idempotency:", ttl: ttl}
}

// Reserve toma la clave con SETNX. Si ya existía devuelve el registro guardado
// (Pending=true mientras la primera petición no termina) y acquired=false.
func (s *RedisIdempotencyStore) Reserve(ctx context.Context, key, fingerprint string) (*Record, bool, error) {
	raw, err := json.Marshal(Record{Fingerprint: fingerprint, Pending: true})
	if err != nil {
		return nil, false, err
	}
	ok, err := s.client.SetNX(ctx, s.keyPrefix+key, raw, s.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if ok {
		return nil, true, nil
	}
	rec, err := s.get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if rec == nil {
		// expiró entre SETNX y GET: se reintenta una vez
		return s.Reserve(ctx, key, fingerprint)
	}
	return rec, false, nil
}

// Complete guarda la respuesta final con el TTL completo.
func (s *RedisIdempotencyStore) Complete(ctx context.Context, key string, rec Record) error {
	rec.Pending = false
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.keyPrefix+key, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	return nil
}

// Release libera la clave para que el cliente pueda reintentar.
func (s *RedisIdempotencyStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

func (s *RedisIdempotencyStore) get(ctx context.Context, key string) (*Record, error) {
	raw, err := s.client.Get(ctx, s.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get idempotency key: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode idempotency record: %w", err)
	}
	return &rec, nil
}

// Close cierra el cliente Redis.
func (s *RedisIdempotencyStore) Close() error {
	return s.client.Close()
}
