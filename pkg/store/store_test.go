package store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backends returns a fresh instance of every Store implementation.
func backends(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "attrs.db"))
	require.NoError(t, err)

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
		"redis":  NewRedisStore(newFakeRedis()),
		"s3":     NewS3Store(newFakeS3(), "bucket", "test/"),
	}
}

func TestStoreContract(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			defer s.Close()

			_, err := s.Get(ctx, "42", "credits")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Set(ctx, "42", "credits", []byte("100")))
			got, err := s.Get(ctx, "42", "credits")
			require.NoError(t, err)
			assert.Equal(t, []byte("100"), got)

			// Overwrite.
			require.NoError(t, s.Set(ctx, "42", "credits", []byte("500")))
			got, err = s.Get(ctx, "42", "credits")
			require.NoError(t, err)
			assert.Equal(t, []byte("500"), got)

			// Keys are scoped per entity.
			_, err = s.Get(ctx, "43", "credits")
			assert.ErrorIs(t, err, ErrNotFound)

			// Empty values are values.
			require.NoError(t, s.Set(ctx, "42", "motto", nil))
			got, err = s.Get(ctx, "42", "motto")
			require.NoError(t, err)
			assert.Empty(t, got)

			require.NoError(t, s.Delete(ctx, "42", "credits"))
			_, err = s.Get(ctx, "42", "credits")
			assert.ErrorIs(t, err, ErrNotFound)
			require.NoError(t, s.Delete(ctx, "42", "credits"))

			require.NoError(t, s.Close())
			require.NoError(t, s.Close())
			_, err = s.Get(ctx, "42", "motto")
			assert.ErrorIs(t, err, ErrStoreClosed)
			assert.ErrorIs(t, s.Set(ctx, "42", "motto", nil), ErrStoreClosed)
		})
	}
}

func TestNotFoundCarriesKey(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Get(context.Background(), "7", "figure")

	var kerr *KeyError
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, "7", kerr.Entity)
	assert.Equal(t, "figure", kerr.Key)
	assert.Equal(t, "store: get 7/figure: store: not found", err.Error())
}

func TestMemoryStoreCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	v := []byte("abc")
	require.NoError(t, s.Set(ctx, "1", "k", v))
	v[0] = 'X'

	got, _ := s.Get(ctx, "1", "k")
	assert.Equal(t, "abc", string(got))
	got[0] = 'Y'

	again, _ := s.Get(ctx, "1", "k")
	assert.Equal(t, "abc", string(again))
	assert.Equal(t, 1, s.Count())
}

func TestSQLiteReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "attrs.db")

	s, err := OpenSQLite(ctx, path, WithSQLTableName("attrs"))
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "1", "username", []byte("alice")))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path, WithSQLTableName("attrs"))
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(ctx, "1", "username")
	require.NoError(t, err)
	assert.Equal(t, "alice", string(got))
}

func TestRedisKeyLayout(t *testing.T) {
	r := newFakeRedis()
	s := NewRedisStore(r, WithRedisPrefix("game:"))

	require.NoError(t, s.Set(context.Background(), "5", "motto", []byte("hi")))
	assert.Contains(t, r.data, "game:5:motto")
}

func TestRedisBackendError(t *testing.T) {
	r := newFakeRedis()
	r.getErr = errors.New("connection reset")
	s := NewRedisStore(r)

	_, err := s.Get(context.Background(), "5", "motto")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestGoRedisAdapter(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	s := NewRedisStore(NewGoRedisClient(client))
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := s.Get(ctx, "5", "motto")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)

	var kerr *KeyError
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, "get", kerr.Op)
}

func TestOpenUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := OpenRedis(ctx, "http://localhost")
	assert.ErrorContains(t, err, "failed to parse redis url")

	_, err = OpenRedis(ctx, "redis://127.0.0.1:1/0?dial_timeout=100ms&max_retries=-1")
	assert.ErrorContains(t, err, "failed to connect to redis")

	_, err = OpenPostgres(ctx, "postgres://ihi@127.0.0.1:1/ihi?connect_timeout=1")
	assert.ErrorContains(t, err, "failed to connect to database")

	_, err = OpenMySQL(ctx, "ihi@tcp(127.0.0.1:1)/ihi?timeout=100ms")
	assert.ErrorContains(t, err, "failed to connect to database")
}

func TestS3KeyLayout(t *testing.T) {
	f := newFakeS3()
	s := NewS3Store(f, "bucket", "prod/")

	require.NoError(t, s.Set(context.Background(), "5", "figure", []byte("hd-180-1")))
	assert.Contains(t, f.objects, "prod/5/figure")
}

func TestTypedHelpers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, SetInt(ctx, s, "1", "credits", -25))
	n, err := GetInt(ctx, s, "1", "credits")
	require.NoError(t, err)
	assert.Equal(t, int64(-25), n)

	require.NoError(t, SetString(ctx, s, "1", "motto", "hello"))
	str, err := GetString(ctx, s, "1", "motto")
	require.NoError(t, err)
	assert.Equal(t, "hello", str)

	when := time.Date(2024, 3, 1, 12, 30, 0, 0, time.FixedZone("x", 3600))
	require.NoError(t, SetTime(ctx, s, "1", "created", when))
	got, err := GetTime(ctx, s, "1", "created")
	require.NoError(t, err)
	assert.True(t, when.Equal(got))
	assert.Equal(t, time.UTC, got.Location())

	require.NoError(t, SetJSON(ctx, s, "1", "perms", map[string]int{"a": 1}))
	var m map[string]int
	require.NoError(t, GetJSON(ctx, s, "1", "perms", &m))
	assert.Equal(t, map[string]int{"a": 1}, m)

	require.NoError(t, s.Set(ctx, "1", "bad", []byte("nope")))
	_, err = GetInt(ctx, s, "1", "bad")
	assert.Error(t, err)
	_, err = GetTime(ctx, s, "1", "bad")
	assert.Error(t, err)
	assert.Error(t, GetJSON(ctx, s, "1", "bad", &m))

	_, err = GetInt(ctx, s, "1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

// fakeRedis is a map-backed RedisClient.
type fakeRedis struct {
	mu     sync.Mutex
	data   map[string][]byte
	getErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string][]byte)}
}

type fakeStatusCmd struct{ err error }

func (c fakeStatusCmd) Err() error { return c.err }

type fakeStringCmd struct {
	data []byte
	err  error
}

func (c fakeStringCmd) Bytes() ([]byte, error) { return c.data, c.err }
func (c fakeStringCmd) Err() error             { return c.err }

func (r *fakeRedis) Set(_ context.Context, key string, value interface{}, _ time.Duration) RedisStatusCmd {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[key] = append([]byte{}, value.([]byte)...)
	return fakeStatusCmd{}
}

func (r *fakeRedis) Get(_ context.Context, key string) RedisStringCmd {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return fakeStringCmd{err: r.getErr}
	}
	v, ok := r.data[key]
	if !ok {
		return fakeStringCmd{err: ErrRedisNil}
	}
	return fakeStringCmd{data: append([]byte{}, v...)}
}

func (r *fakeRedis) Del(_ context.Context, keys ...string) RedisIntCmd {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range keys {
		delete(r.data, k)
	}
	return fakeStatusCmd{}
}

func (r *fakeRedis) Close() error { return nil }

// fakeS3 is a map-backed S3API.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("missing")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(v))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}
