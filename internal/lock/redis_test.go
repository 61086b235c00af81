package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis implements RedisClient over a map, running the release script
// semantics directly.
type fakeRedis struct {
	mu       sync.Mutex
	data     map[string]string
	setErr   error
	released []string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}}
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return redis.NewBoolResult(false, f.setErr)
	}
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) compareAndDelete(keys []string, args []any) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data[keys[0]] == args[0].(string) {
		delete(f.data, keys[0])
		f.released = append(f.released, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func (f *fakeRedis) Eval(_ context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	return f.compareAndDelete(keys, args)
}

func (f *fakeRedis) EvalSha(_ context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	return f.compareAndDelete(keys, args)
}

func (f *fakeRedis) EvalRO(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	return f.Eval(ctx, script, keys, args...)
}

func (f *fakeRedis) EvalShaRO(ctx context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	return f.EvalSha(ctx, sha, keys, args...)
}

func (f *fakeRedis) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (f *fakeRedis) ScriptLoad(_ context.Context, _ string) *redis.StringCmd {
	return redis.NewStringResult("sha", nil)
}

func TestRedis_AcquireRelease(t *testing.T) {
	fake := newFakeRedis()
	r := NewRedis(fake, time.Minute)

	release, err := r.Acquire(context.Background(), "s1")
	require.NoError(t, err)
	assert.Contains(t, fake.data, "interview:lock:s1")

	release()
	release()
	assert.Empty(t, fake.data)
	assert.Equal(t, []string{"interview:lock:s1"}, fake.released)
}

func TestRedis_HeldLockTimesOut(t *testing.T) {
	fake := newFakeRedis()
	fake.data["interview:lock:s1"] = "someone-else"
	r := NewRedis(fake, time.Minute)
	r.poll = 5 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := r.Acquire(ctx, "s1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotAcquired))
	assert.Equal(t, "someone-else", fake.data["interview:lock:s1"])
}

func TestRedis_WaitsForRelease(t *testing.T) {
	fake := newFakeRedis()
	r := NewRedis(fake, time.Minute)
	r.poll = 5 * time.Millisecond

	first, err := r.Acquire(context.Background(), "s1")
	require.NoError(t, err)

	go func() {
		time.Sleep(15 * time.Millisecond)
		first()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	second, err := r.Acquire(ctx, "s1")
	require.NoError(t, err)
	second()
}

func TestRedis_ReleaseKeepsForeignToken(t *testing.T) {
	fake := newFakeRedis()
	r := NewRedis(fake, time.Minute)

	release, err := r.Acquire(context.Background(), "s1")
	require.NoError(t, err)

	// Lock expired and another holder took it.
	fake.mu.Lock()
	fake.data["interview:lock:s1"] = "other"
	fake.mu.Unlock()

	release()
	assert.Equal(t, "other", fake.data["interview:lock:s1"])
}

func TestRedis_SetNXError(t *testing.T) {
	fake := newFakeRedis()
	fake.setErr = errors.New("connection refused")
	r := NewRedis(fake, 0)

	_, err := r.Acquire(context.Background(), "s1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lock: setnx s1")
	assert.Equal(t, defaultTTL, r.ttl)
}

func TestNewRedisFromURL_Invalid(t *testing.T) {
	_, _, err := NewRedisFromURL("not-a-url://", time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lock: parse redis url")
}
