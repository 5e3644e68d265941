package browser

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/law-makers/marketwatch/internal/proxy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDriver struct {
	mu       sync.Mutex
	launches int
	proxies  []string
	pingErr  error
	tabErr   error
}

func (d *fakeDriver) Launch(ctx context.Context) (*Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.launches++
	bctx, cancel := context.WithCancel(context.Background())
	return &Session{Ctx: bctx, Cancel: cancel, PID: 1000 + d.launches}, nil
}

func (d *fakeDriver) OpenTab(s *Session, proxyServer string) (context.Context, context.CancelFunc, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tabErr != nil {
		return nil, nil, d.tabErr
	}
	d.proxies = append(d.proxies, proxyServer)
	ctx, cancel := context.WithCancel(s.Ctx)
	return ctx, cancel, nil
}

func (d *fakeDriver) Ping(ctx context.Context, s *Session) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pingErr
}

func (d *fakeDriver) launchCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.launches
}

func newTestManager(t *testing.T, max int, pool *proxy.Pool) (*Manager, *fakeDriver) {
	t.Helper()
	d := &fakeDriver{}
	m, err := New(context.Background(), Options{MaxContexts: max, Driver: d, Proxies: pool})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return m, d
}

func TestAcquireBlocksAtCapacity(t *testing.T) {
	m, _ := newTestManager(t, 2, nil)

	l1, err := m.Acquire(context.Background())
	require.NoError(t, err)
	l2, err := m.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, m.Active())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = m.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	l1.Release()
	l3, err := m.Acquire(context.Background())
	require.NoError(t, err)

	l2.Release()
	l3.Release()
	assert.Equal(t, 0, m.Active())
}

func TestReleaseIsIdempotent(t *testing.T) {
	m, _ := newTestManager(t, 2, nil)

	l1, err := m.Acquire(context.Background())
	require.NoError(t, err)
	l1.Release()
	l1.Release()
	l1.Release()
	assert.Equal(t, 0, m.Active())

	a, err := m.Acquire(context.Background())
	require.NoError(t, err)
	b, err := m.Acquire(context.Background())
	require.NoError(t, err)

	// A double release must not have freed a phantom slot
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = m.Acquire(ctx)
	assert.Error(t, err)

	a.Release()
	b.Release()
}

func TestLeaseContextCancelledOnRelease(t *testing.T) {
	m, _ := newTestManager(t, 1, nil)

	l, err := m.Acquire(context.Background())
	require.NoError(t, err)
	l.Release()
	assert.Error(t, l.Ctx.Err())
}

func TestConcurrentLeasesNeverExceedMax(t *testing.T) {
	const max = 3
	m, _ := newTestManager(t, max, nil)

	var current, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l, err := m.Acquire(context.Background())
			if !assert.NoError(t, err) {
				return
			}
			defer l.Release()

			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			current.Add(-1)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(max))
	assert.Equal(t, 0, m.Active())
}

func TestAcquireAssignsProxies(t *testing.T) {
	m, d := newTestManager(t, 2, proxy.NewPool([]string{"http://p1:8080", "http://p2:8080"}, time.Minute))

	l1, err := m.Acquire(context.Background())
	require.NoError(t, err)
	l2, err := m.Acquire(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "http://p1:8080", l1.Proxy)
	assert.Equal(t, "http://p2:8080", l2.Proxy)
	assert.Equal(t, []string{"http://p1:8080", "http://p2:8080"}, d.proxies)

	l1.Release()
	l2.Release()
}

func TestAcquireReleasesSlotWhenTabFails(t *testing.T) {
	m, d := newTestManager(t, 1, nil)
	d.tabErr = errors.New("target crashed")

	_, err := m.Acquire(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, m.Active())

	d.tabErr = nil
	l, err := m.Acquire(context.Background())
	require.NoError(t, err)
	l.Release()
}

func TestEnsureAliveRelaunchesDeadBrowser(t *testing.T) {
	m, d := newTestManager(t, 1, nil)
	require.Equal(t, 1, d.launchCount())

	require.NoError(t, m.EnsureAlive(context.Background(), false))
	assert.Equal(t, 1, d.launchCount())

	d.pingErr = errors.New("websocket closed")
	require.NoError(t, m.EnsureAlive(context.Background(), false))
	assert.Equal(t, 2, d.launchCount())
	assert.Equal(t, int64(1), m.Metrics().Relaunches)
}

func TestEnsureAliveForceAfterCrash(t *testing.T) {
	m, d := newTestManager(t, 1, nil)

	m.mu.RLock()
	m.session.Cancel()
	m.mu.RUnlock()
	assert.False(t, m.Connected())

	require.NoError(t, m.EnsureAlive(context.Background(), true))
	assert.Equal(t, 2, d.launchCount())
	assert.True(t, m.Connected())

	// A second forced call right after a healthy relaunch is collapsed
	require.NoError(t, m.EnsureAlive(context.Background(), true))
	assert.Equal(t, 2, d.launchCount())
}

func TestAcquireOnDisconnectedBrowser(t *testing.T) {
	m, _ := newTestManager(t, 1, nil)

	m.mu.RLock()
	m.session.Cancel()
	m.mu.RUnlock()

	_, err := m.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrDisconnected)
	assert.Equal(t, 0, m.Active())
}

func TestShutdownDrainsActiveLeases(t *testing.T) {
	m, _ := newTestManager(t, 2, nil)

	l, err := m.Acquire(context.Background())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- m.Shutdown(context.Background()) }()

	select {
	case <-done:
		t.Fatal("Shutdown returned before the lease was released")
	case <-time.After(50 * time.Millisecond):
	}

	_, err = m.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrClosed)

	l.Release()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Shutdown did not finish after release")
	}
	assert.False(t, m.Connected())
}

func TestShutdownTimeout(t *testing.T) {
	m, _ := newTestManager(t, 1, nil)
	l, err := m.Acquire(context.Background())
	require.NoError(t, err)
	defer l.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.Shutdown(ctx), context.DeadlineExceeded)
}

func TestMetricsSnapshot(t *testing.T) {
	m, _ := newTestManager(t, 4, nil)
	l, err := m.Acquire(context.Background())
	require.NoError(t, err)
	defer l.Release()

	met := m.Metrics()
	assert.True(t, met.Connected)
	assert.Equal(t, 1, met.ActiveContexts)
	assert.Equal(t, 4, met.MaxContexts)
	assert.Equal(t, 1001, met.BrowserPID)
	assert.NotZero(t, met.HeapAllocBytes)
	assert.False(t, met.LastLaunch.IsZero())
}

func TestParseStatm(t *testing.T) {
	rss, err := parseStatm("2048 512 100 10 0 300 0\n", 4096)
	require.NoError(t, err)
	assert.Equal(t, uint64(512*4096), rss)

	_, err = parseStatm("garbage", 4096)
	assert.Error(t, err)
}

func TestChromeCandidatesPerOS(t *testing.T) {
	env := func(k string) string {
		if k == "ProgramFiles" {
			return `C:\Program Files`
		}
		return ""
	}

	linux := chromeCandidates("linux", "/home/u", env)
	assert.Contains(t, linux, "/usr/bin/chromium")
	assert.Contains(t, linux, "/home/u/.local/share/flatpak/exports/bin/org.chromium.Chromium")

	darwin := chromeCandidates("darwin", "", env)
	assert.Contains(t, darwin, "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome")

	windows := chromeCandidates("windows", "", env)
	assert.NotEmpty(t, windows)
}
