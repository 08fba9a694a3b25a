package cron

import (
	"context"
	"testing"
	"time"
)

type memoryRedis struct {
	values map[string]string
}

func (m *memoryRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryRedis) CompareAndDelete(_ context.Context, key, expected string) (bool, error) {
	if v, ok := m.values[key]; ok && v == expected {
		delete(m.values, key)
		return true, nil
	}
	return false, nil
}

func TestRedisLockIsExclusive(t *testing.T) {
	store := &memoryRedis{values: map[string]string{}}
	ctx := context.Background()
	a, err := NewRedisLock(store, "mk:lock:cron", time.Minute)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	b, _ := NewRedisLock(store, "mk:lock:cron", time.Minute)

	if ok, err := a.Acquire(ctx); err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if ok, _ := b.Acquire(ctx); ok {
		t.Fatal("second instance must not acquire a held lock")
	}
	if err := b.Release(ctx); err != nil {
		t.Fatalf("release by non-owner: %v", err)
	}
	if _, held := store.values["mk:lock:cron"]; !held {
		t.Fatal("non-owner release must not free the lock")
	}
	if err := a.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := b.Acquire(ctx); !ok {
		t.Fatal("lock should be free after owner release")
	}
}

func TestRedisLockDoesNotFreeForeignOwner(t *testing.T) {
	store := &memoryRedis{values: map[string]string{}}
	ctx := context.Background()
	lock, _ := NewRedisLock(store, "k", time.Minute)
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("acquire failed")
	}
	// expired and taken over by another instance
	store.values["k"] = "someone-else"
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if store.values["k"] != "someone-else" {
		t.Fatal("foreign owner lock was deleted")
	}
}

func TestRedisLockRejectsReentrantAcquire(t *testing.T) {
	store := &memoryRedis{values: map[string]string{}}
	ctx := context.Background()
	lock, _ := NewRedisLock(store, "k", time.Minute)
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("acquire failed")
	}
	if _, err := lock.Acquire(ctx); err == nil {
		t.Fatal("expected error when acquiring a lock this worker already holds")
	}
}

func TestNewRedisLockValidates(t *testing.T) {
	if _, err := NewRedisLock(nil, "k", 0); err == nil {
		t.Fatal("expected client error")
	}
	if _, err := NewRedisLock(&memoryRedis{}, "", 0); err == nil {
		t.Fatal("expected key error")
	}
}
