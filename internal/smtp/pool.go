package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"sync"
	"time"

	"github.com/byagge/vashsender-2.0-sub000/pkg/logger"
)

var (
	// ErrConnection is returned when every candidate host has been exhausted.
	ErrConnection = errors.New("smtp: connection failed")
	// ErrPoolClosed is returned on Acquire after CloseAll.
	ErrPoolClosed = errors.New("smtp: pool closed")
)

const fallbackHeloDomain = "localhost"

type Config struct {
	// Hosts is the ranked candidate list: primary relay, configured
	// fallbacks, then the last-resort direct address. Entries are host:port.
	Hosts []string

	// HeloDomain is the identity presented in EHLO. When the server rejects
	// it, the dial is retried once with a generic localhost identity.
	HeloDomain string

	Username string
	Password string

	// EnableTLS negotiates STARTTLS opportunistically when the server
	// advertises it. It is never required: relays on trusted networks keep
	// working without it.
	EnableTLS bool
	TLSConfig *tls.Config

	MaxConnections int
	ConnectTimeout time.Duration
	SendTimeout    time.Duration
}

// RankHosts assembles the failover candidate list in rank order: primary
// relay, configured fallbacks, then the last-resort direct address. Blank
// and duplicate entries are dropped, keeping the first occurrence's rank.
func RankHosts(primary string, fallbacks []string, direct string) []string {
	candidates := make([]string, 0, len(fallbacks)+2)
	candidates = append(candidates, primary)
	candidates = append(candidates, fallbacks...)
	candidates = append(candidates, direct)

	seen := make(map[string]bool, len(candidates))
	hosts := make([]string, 0, len(candidates))
	for _, h := range candidates {
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		hosts = append(hosts, h)
	}
	return hosts
}

// Pool hands out authenticated, reusable SMTP sessions. It is the only
// shared mutable resource inside a worker process: access is mutex-guarded,
// capacity is bounded by MaxConnections, and idle sessions are probed with
// NOOP before reuse.
type Pool struct {
	config Config

	mu     sync.Mutex
	idle   []*Session
	closed bool

	sem chan struct{}
}

func NewPool(config Config) (*Pool, error) {
	if len(config.Hosts) == 0 {
		return nil, errors.New("smtp: at least one host is required")
	}
	if config.MaxConnections <= 0 {
		config.MaxConnections = 10
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	if config.SendTimeout == 0 {
		config.SendTimeout = 30 * time.Second
	}
	if config.HeloDomain == "" {
		config.HeloDomain = fallbackHeloDomain
	}

	return &Pool{
		config: config,
		idle:   make([]*Session, 0, config.MaxConnections),
		sem:    make(chan struct{}, config.MaxConnections),
	}, nil
}

// Acquire returns a ready-to-use session, reusing an idle one when its
// liveness probe passes and dialing otherwise. It blocks while
// MaxConnections sessions are checked out, until ctx expires.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrConnection, ctx.Err())
	}

	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			<-p.sem
			return nil, ErrPoolClosed
		}
		if len(p.idle) == 0 {
			p.mu.Unlock()
			break
		}
		s := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		p.mu.Unlock()

		if err := s.probe(); err == nil {
			return s, nil
		}
		s.close()
	}

	s, err := p.dial(ctx)
	if err != nil {
		<-p.sem
		return nil, err
	}
	return s, nil
}

// Release returns a session to the pool. Sessions that fail the liveness
// probe, were marked broken by a transport error, or exceed pool capacity
// are closed instead. Checkout/return is strictly paired: callers release
// on every path, including errors.
func (p *Pool) Release(s *Session) {
	if s == nil {
		return
	}
	defer func() { <-p.sem }()

	if s.broken || s.probe() != nil {
		s.close()
		return
	}

	p.mu.Lock()
	if p.closed || len(p.idle) >= p.config.MaxConnections {
		p.mu.Unlock()
		s.close()
		return
	}
	p.idle = append(p.idle, s)
	p.mu.Unlock()
}

// CloseAll drains the idle set and refuses further acquisitions.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.closed = true
	p.mu.Unlock()

	for _, s := range idle {
		s.close()
	}
}

// dial walks the ranked host list. The first host that completes every
// required step wins; all other attempts are abandoned without error
// propagation. When no host succeeds, the last observed error wins.
func (p *Pool) dial(ctx context.Context) (*Session, error) {
	var lastErr error

	for _, addr := range p.config.Hosts {
		s, err := p.attempt(ctx, addr, p.config.HeloDomain)
		if err == nil {
			return s, nil
		}
		lastErr = err

		// Greeting rejections are retried once per host with a generic
		// identity; net/smtp allows a single HELO per connection, so the
		// retry is a fresh dial.
		if errors.Is(err, errGreetingRejected) && p.config.HeloDomain != fallbackHeloDomain {
			s, err = p.attempt(ctx, addr, fallbackHeloDomain)
			if err == nil {
				return s, nil
			}
			lastErr = err
		}

		logger.Debug("smtp host attempt failed", "addr", addr, "error", err)
	}

	if lastErr == nil {
		return nil, ErrConnection
	}
	return nil, fmt.Errorf("%w: %v", ErrConnection, lastErr)
}

var errGreetingRejected = errors.New("smtp: greeting rejected")

func (p *Pool) attempt(ctx context.Context, addr, helo string) (*Session, error) {
	d := net.Dialer{Timeout: p.config.ConnectTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	_ = conn.SetDeadline(time.Now().Add(p.config.ConnectTimeout))

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := client.Hello(helo); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", errGreetingRejected, err)
	}

	if p.config.EnableTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			tlsConfig := p.config.TLSConfig
			if tlsConfig == nil {
				tlsConfig = &tls.Config{ServerName: host}
			}
			// StartTLS re-issues the greeting over the upgraded transport.
			if err := client.StartTLS(tlsConfig); err != nil {
				client.Close()
				return nil, err
			}
		}
	}

	if p.config.Username != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			auth := smtp.PlainAuth("", p.config.Username, p.config.Password, host)
			if err := client.Auth(auth); err != nil {
				client.Close()
				return nil, err
			}
		}
	}

	_ = conn.SetDeadline(time.Time{})

	return &Session{
		client:      client,
		conn:        conn,
		addr:        addr,
		sendTimeout: p.config.SendTimeout,
	}, nil
}
