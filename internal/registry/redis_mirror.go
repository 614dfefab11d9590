package registry

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"gt06gateway/internal/model"
)

// RedisMirror is an optional cross-process mirror of session records,
// keyed by IMEI, using Redis's native EXPIRE for the same TTL the
// in-process registry enforces. It is a struct rather than package
// globals so a process can run with or without it.
type RedisMirror struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisMirror parses redisURL and pings the server. A non-nil error
// means the caller should run without a mirror rather than fail startup.
func NewRedisMirror(redisURL string, ttl time.Duration) (*RedisMirror, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisMirror{client: client, ttl: ttl}, nil
}

// Close releases the underlying Redis connection.
func (m *RedisMirror) Close() error {
	return m.client.Close()
}

func sessionKey(imei string) string {
	return "gt06:session:" + imei
}

// Set mirrors s under its IMEI key with the registry's idle TTL.
func (m *RedisMirror) Set(s *model.DeviceSession) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	data, err := json.Marshal(s)
	if err != nil {
		log.Printf("[registry] failed to marshal session %s for mirror: %v", s.IMEI, err)
		return
	}
	if err := m.client.Set(ctx, sessionKey(s.IMEI), data, m.ttl).Err(); err != nil {
		log.Printf("[registry] failed to mirror session %s: %v", s.IMEI, err)
	}
}

// Get loads a mirrored session by IMEI, if present.
func (m *RedisMirror) Get(imei string) (*model.DeviceSession, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	data, err := m.client.Get(ctx, sessionKey(imei)).Bytes()
	if err != nil {
		return nil, err
	}
	var s model.DeviceSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Delete removes the mirrored record for imei.
func (m *RedisMirror) Delete(imei string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.client.Del(ctx, sessionKey(imei)).Err(); err != nil {
		log.Printf("[registry] failed to delete mirrored session %s: %v", imei, err)
	}
}
