// internal/browser/manager.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/law-makers/marketwatch/internal/proxy"
	"github.com/rs/zerolog/log"
)

var (
	// ErrClosed is returned by Acquire once Shutdown has started
	ErrClosed = errors.New("browser manager is shut down")
	// ErrDisconnected means the shared browser process is gone
	ErrDisconnected = errors.New("browser disconnected")
)

// relaunchDebounce collapses forced relaunches requested by several
// scrapes that observed the same crash
const relaunchDebounce = time.Second

// Options configures the browser manager
type Options struct {
	MaxContexts  int
	Headless     bool
	ChromePath   string
	UserAgent    string
	WindowWidth  int
	WindowHeight int
	ExtraArgs    []chromedp.ExecAllocatorOption
	PingTimeout  time.Duration
	Proxies      *proxy.Pool

	// Driver replaces the chromedp driver, mainly for tests
	Driver Driver
}

// Manager owns one long-lived browser process and bounds the number of
// concurrently leased browser contexts
type Manager struct {
	opts   Options
	driver Driver
	slots  chan struct{}
	done   chan struct{}

	mu      sync.RWMutex
	session *Session
	closed  bool
	leases  sync.WaitGroup

	launchMu   sync.Mutex
	lastLaunch atomic.Int64
	relaunches atomic.Int64
	active     atomic.Int64
}

// Lease is one isolated browser context with a single tab. Ctx is a
// chromedp context usable with chromedp.Run.
type Lease struct {
	Ctx        context.Context
	Proxy      string
	AcquiredAt time.Time

	m       *Manager
	cancel  context.CancelFunc
	once    sync.Once
	proxyOK atomic.Bool
}

// New launches the shared browser and returns a ready manager
func New(ctx context.Context, opts Options) (*Manager, error) {
	if opts.MaxContexts <= 0 {
		opts.MaxContexts = 3
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = 5 * time.Second
	}

	driver := opts.Driver
	if driver == nil {
		driver = &ChromeDriver{
			Headless:     opts.Headless,
			ChromePath:   opts.ChromePath,
			UserAgent:    opts.UserAgent,
			WindowWidth:  opts.WindowWidth,
			WindowHeight: opts.WindowHeight,
			ExtraArgs:    opts.ExtraArgs,
		}
	}

	m := &Manager{
		opts:   opts,
		driver: driver,
		slots:  make(chan struct{}, opts.MaxContexts),
		done:   make(chan struct{}),
	}

	if err := m.launch(ctx); err != nil {
		return nil, err
	}

	log.Info().Int("max_contexts", opts.MaxContexts).Int("proxies", opts.Proxies.Len()).Msg("Browser manager ready")
	return m, nil
}

func (m *Manager) launch(ctx context.Context) error {
	s, err := m.driver.Launch(ctx)
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	m.mu.Lock()
	old := m.session
	m.session = s
	m.mu.Unlock()

	if old != nil {
		old.Cancel()
	}
	m.lastLaunch.Store(time.Now().UnixNano())
	return nil
}

// Acquire blocks until a context slot is free, then opens an isolated
// browser context for the caller. The returned lease must be released.
func (m *Manager) Acquire(ctx context.Context) (*Lease, error) {
	select {
	case <-m.done:
		return nil, ErrClosed
	default:
	}

	select {
	case m.slots <- struct{}{}:
	case <-m.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for browser context: %w", ctx.Err())
	}

	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		<-m.slots
		return nil, ErrClosed
	}
	session := m.session
	m.leases.Add(1)
	m.mu.RUnlock()
	m.active.Add(1)

	lease := &Lease{
		m:          m,
		Proxy:      m.opts.Proxies.Next(),
		AcquiredAt: time.Now(),
	}

	if session == nil || session.Ctx.Err() != nil {
		lease.Release()
		return nil, ErrDisconnected
	}

	tabCtx, cancel, err := m.driver.OpenTab(session, lease.Proxy)
	if err != nil {
		if lease.Proxy != "" && session.Ctx.Err() == nil {
			m.opts.Proxies.MarkFailed(lease.Proxy)
		}
		lease.Release()
		return nil, fmt.Errorf("failed to open browser context: %w", err)
	}
	lease.Ctx = tabCtx
	lease.cancel = cancel

	log.Debug().
		Int64("active", m.active.Load()).
		Str("proxy", lease.Proxy).
		Msg("Browser context acquired")

	return lease, nil
}

// Release closes the lease's browser context and frees its slot. It is
// safe to call more than once.
func (l *Lease) Release() {
	if l == nil {
		return
	}
	l.once.Do(func() {
		if l.cancel != nil {
			l.cancel()
		}
		if l.Proxy != "" && l.proxyOK.Load() {
			l.m.opts.Proxies.MarkHealthy(l.Proxy)
		}
		l.m.active.Add(-1)
		<-l.m.slots
		l.m.leases.Done()

		log.Debug().
			Int64("active", l.m.active.Load()).
			Dur("held", time.Since(l.AcquiredAt)).
			Msg("Browser context released")
	})
}

// ProxySucceeded records that the lease's proxy served a page
func (l *Lease) ProxySucceeded() {
	l.proxyOK.Store(true)
}

// ProxyFailed benches the lease's proxy
func (l *Lease) ProxyFailed() {
	if l.Proxy != "" {
		l.m.opts.Proxies.MarkFailed(l.Proxy)
	}
}

// Connected reports whether the shared browser is believed to be running
func (m *Manager) Connected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session != nil && m.session.Ctx.Err() == nil
}

// EnsureAlive checks the browser connection and relaunches the browser when
// it is gone or when force is set
func (m *Manager) EnsureAlive(ctx context.Context, force bool) error {
	m.launchMu.Lock()
	defer m.launchMu.Unlock()

	m.mu.RLock()
	closed, session := m.closed, m.session
	m.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	if force {
		since := time.Since(time.Unix(0, m.lastLaunch.Load()))
		if since < relaunchDebounce && m.pingSession(ctx, session) == nil {
			log.Debug().Dur("since_launch", since).Msg("Browser relaunched moments ago, skipping")
			return nil
		}
	} else if err := m.pingSession(ctx, session); err == nil {
		return nil
	} else {
		log.Warn().Err(err).Msg("Browser health check failed")
	}

	log.Warn().Bool("forced", force).Str("previous", session.String()).Msg("Relaunching browser")
	if err := m.launch(ctx); err != nil {
		return err
	}
	m.relaunches.Add(1)
	return nil
}

func (m *Manager) pingSession(ctx context.Context, s *Session) error {
	if s == nil || s.Ctx.Err() != nil {
		return ErrDisconnected
	}
	pctx, cancel := context.WithTimeout(ctx, m.opts.PingTimeout)
	defer cancel()
	if err := m.driver.Ping(pctx, s); err != nil {
		return fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	return nil
}

// Shutdown stops new acquisitions, waits for active leases to be released
// (or ctx to end), then terminates the browser
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.done)
	m.mu.Unlock()

	log.Debug().Int("active", m.Active()).Msg("Draining browser contexts")

	drained := make(chan struct{})
	go func() {
		m.leases.Wait()
		close(drained)
	}()

	var err error
	select {
	case <-drained:
	case <-ctx.Done():
		err = fmt.Errorf("browser drain interrupted with %d active contexts: %w", m.active.Load(), ctx.Err())
	}

	m.mu.Lock()
	if m.session != nil {
		m.session.Cancel()
		m.session = nil
	}
	m.mu.Unlock()

	log.Info().Msg("Browser manager shut down")
	return err
}

// MaxContexts returns the configured concurrency cap
func (m *Manager) MaxContexts() int {
	return cap(m.slots)
}

// Active returns the number of leased contexts
func (m *Manager) Active() int {
	return int(m.active.Load())
}
