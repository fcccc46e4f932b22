package agent

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultSessionIdle closes pooled sessions nobody has used for this long.
const DefaultSessionIdle = 30 * time.Minute

// pooledSession serialises turns for one user.
type pooledSession struct {
	mu       sync.Mutex
	session  *Session
	lastUsed time.Time
}

// SessionPool keeps one session per user name so front-ends that see
// independent requests (HTTP, Telegram updates) share conversation memory.
type SessionPool struct {
	agent   *Agent
	channel string
	idle    time.Duration

	mu       sync.Mutex
	sessions map[string]*pooledSession
}

// NewSessionPool opens sessions on channel. idle <= 0 uses DefaultSessionIdle.
func NewSessionPool(a *Agent, channel string, idle time.Duration) *SessionPool {
	if idle <= 0 {
		idle = DefaultSessionIdle
	}
	return &SessionPool{
		agent:    a,
		channel:  channel,
		idle:     idle,
		sessions: make(map[string]*pooledSession),
	}
}

// Handle runs one turn for user, opening the session on first use.
func (p *SessionPool) Handle(ctx context.Context, user, text string) (Reply, error) {
	ps, err := p.get(ctx, user)
	if err != nil {
		return Reply{}, err
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.lastUsed = time.Now()
	reply := ps.session.Handle(ctx, text)

	if reply.Exit {
		p.drop(user, ps)
	}
	return reply, nil
}

func (p *SessionPool) get(ctx context.Context, user string) (*pooledSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ps, ok := p.sessions[user]; ok {
		return ps, nil
	}
	s, err := p.agent.NewSession(ctx, user, p.channel)
	if err != nil {
		return nil, err
	}
	ps := &pooledSession{session: s, lastUsed: time.Now()}
	p.sessions[user] = ps
	return ps, nil
}

// drop closes ps if it is still the session registered for user. Callers
// hold ps.mu.
func (p *SessionPool) drop(user string, ps *pooledSession) {
	p.mu.Lock()
	if p.sessions[user] == ps {
		delete(p.sessions, user)
	}
	p.mu.Unlock()
	ps.session.Close()
}

// Len returns the number of open sessions.
func (p *SessionPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// Expire closes sessions idle longer than the pool's idle window.
func (p *SessionPool) Expire() int {
	cutoff := time.Now().Add(-p.idle)

	p.mu.Lock()
	var stale []*pooledSession
	for user, ps := range p.sessions {
		if !ps.mu.TryLock() {
			continue
		}
		if ps.lastUsed.Before(cutoff) {
			delete(p.sessions, user)
			stale = append(stale, ps)
		} else {
			ps.mu.Unlock()
		}
	}
	p.mu.Unlock()

	for _, ps := range stale {
		ps.session.Close()
		ps.mu.Unlock()
	}
	return len(stale)
}

// Janitor runs Expire every interval until ctx is done.
func (p *SessionPool) Janitor(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := p.Expire(); n > 0 {
				log.Debug().Int("closed", n).Str("channel", p.channel).Msg("Idle sessions closed")
			}
		}
	}
}

// CloseAll closes every open session.
func (p *SessionPool) CloseAll() {
	p.mu.Lock()
	sessions := p.sessions
	p.sessions = make(map[string]*pooledSession)
	p.mu.Unlock()

	for _, ps := range sessions {
		ps.mu.Lock()
		ps.session.Close()
		ps.mu.Unlock()
	}
}
