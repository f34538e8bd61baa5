package leader

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestStatic(t *testing.T) {
	ok, err := Static(true).IsLeader(context.Background())
	assert.NoError(t, err)
	assert.True(t, ok)

	ok, _ = Static(false).IsLeader(context.Background())
	assert.False(t, ok)
}

func TestIdentity_Unique(t *testing.T) {
	assert.NotEqual(t, Identity(), Identity())
}

func TestRedisElector_SingleLeader(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()

	a := NewRedisElector(client, "lease", "a", 10*time.Second, zerolog.Nop())
	b := NewRedisElector(client, "lease", "b", 10*time.Second, zerolog.Nop())

	ok, err := a.IsLeader(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.IsLeader(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// the holder keeps extending
	mr.FastForward(8 * time.Second)
	ok, _ = a.IsLeader(ctx)
	assert.True(t, ok)
	mr.FastForward(8 * time.Second)
	ok, _ = b.IsLeader(ctx)
	assert.False(t, ok, "lease was extended, b must not take over")

	// holder goes silent: lease expires and b takes over
	mr.FastForward(11 * time.Second)
	ok, _ = b.IsLeader(ctx)
	assert.True(t, ok)
	ok, _ = a.IsLeader(ctx)
	assert.False(t, ok)
}

func TestRedisElector_Release(t *testing.T) {
	_, client := setupTestRedis(t)
	ctx := context.Background()

	a := NewRedisElector(client, "lease", "a", time.Minute, zerolog.Nop())
	b := NewRedisElector(client, "lease", "b", time.Minute, zerolog.Nop())

	ok, _ := a.IsLeader(ctx)
	require.True(t, ok)

	// releasing someone else's lease is a no-op
	require.NoError(t, b.Release(ctx))
	ok, _ = b.IsLeader(ctx)
	assert.False(t, ok)

	require.NoError(t, a.Release(ctx))
	ok, _ = b.IsLeader(ctx)
	assert.True(t, ok)
}

func TestRedisElector_RedisDown(t *testing.T) {
	mr, client := setupTestRedis(t)
	mr.Close()

	_, err := NewRedisElector(client, "lease", "a", time.Minute, zerolog.Nop()).IsLeader(context.Background())
	assert.Error(t, err)
}

func serveElector(t *testing.T, status int, body string) *fasthttp.Client {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(status)
		ctx.SetBodyString(body)
	}}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() {
		_ = srv.Shutdown()
		_ = ln.Close()
	})
	return &fasthttp.Client{Dial: func(addr string) (net.Conn, error) { return ln.Dial() }}
}

func TestHTTPElector(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    bool
		wantErr bool
	}{
		{"is leader", 200, `{"name":"pod-1"}`, true, false},
		{"other leader", 200, `{"name":"pod-2"}`, false, false},
		{"no leader", 200, `{"name":""}`, false, false},
		{"bad status", 503, ``, false, true},
		{"bad body", 200, `not json`, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := serveElector(t, tt.status, tt.body)
			e := NewHTTPElector("http://elector.test/", "pod-1", hc, time.Second)
			got, err := e.IsLeader(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
