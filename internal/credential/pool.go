package credential

import (
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
)

const (
	// MinKeyLength is the shortest secret Add accepts.
	MinKeyLength = 5
	// ErrorThreshold is the error count a credential may reach before it is
	// exhausted automatically. The count must exceed it.
	ErrorThreshold = 10
)

var (
	ErrKeyTooShort     = errors.New("credential too short")
	ErrDuplicateKey    = errors.New("credential already present")
	ErrUnknownSuffix   = errors.New("no credential ends with suffix")
	ErrAmbiguousSuffix = errors.New("suffix matches more than one credential")
)

// Credential is one API secret and its health counters.
type Credential struct {
	Key         string     `json:"key"`
	Label       string     `json:"label,omitempty"`
	IsActive    bool       `json:"isActive"`
	IsExhausted bool       `json:"isExhausted,omitempty"`
	UsageCount  int64      `json:"usageCount"`
	ErrorCount  int64      `json:"errorCount"`
	LastUsed    *time.Time `json:"lastUsed,omitempty"`
}

// Usable reports whether the credential may be handed out.
func (c Credential) Usable() bool {
	return c.IsActive && !c.IsExhausted
}

// Pool holds the credentials of a single provider. It is safe for concurrent use.
type Pool struct {
	mu    sync.Mutex
	creds []*Credential

	// swapped in tests
	intn func(n int) int
	now  func() time.Time
}

// NewPool builds a pool from persisted credentials. The input is copied.
func NewPool(creds []Credential) *Pool {
	p := &Pool{
		intn: rand.IntN,
		now:  time.Now,
	}
	for _, c := range creds {
		if c.LastUsed != nil {
			t := *c.LastUsed
			c.LastUsed = &t
		}
		p.creds = append(p.creds, &c)
	}
	return p
}

func (p *Pool) find(secret string) *Credential {
	for _, c := range p.creds {
		if c.Key == secret {
			return c
		}
	}
	return nil
}

// Add appends a new active credential.
func (p *Pool) Add(secret string) error {
	if len(secret) < MinKeyLength {
		return ErrKeyTooShort
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.find(secret) != nil {
		return ErrDuplicateKey
	}
	p.creds = append(p.creds, &Credential{Key: secret, IsActive: true})
	return nil
}

// Select picks a usable credential uniformly at random and records the use.
// The boolean is false when no credential is usable.
func (p *Pool) Select() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	usable := make([]*Credential, 0, len(p.creds))
	for _, c := range p.creds {
		if c.Usable() {
			usable = append(usable, c)
		}
	}
	if len(usable) == 0 {
		return "", false
	}

	selected := usable[p.intn(len(usable))]
	now := p.now()
	selected.LastUsed = &now
	selected.UsageCount++

	return selected.Key, true
}

// MarkExhausted disables a credential until an operator resets it.
func (p *Pool) MarkExhausted(secret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.markExhausted(secret)
}

func (p *Pool) markExhausted(secret string) {
	if c := p.find(secret); c != nil {
		c.IsExhausted = true
	}
}

// MarkError records a failed call and exhausts the credential once the error
// count exceeds ErrorThreshold. It reports whether the credential is now exhausted.
func (p *Pool) MarkError(secret string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	c := p.find(secret)
	if c == nil {
		return false
	}
	c.ErrorCount++
	if c.ErrorCount > ErrorThreshold {
		p.markExhausted(secret)
	}
	return c.IsExhausted
}

// Remove deletes a credential. It reports whether one was found.
func (p *Pool) Remove(secret string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, c := range p.creds {
		if c.Key == secret {
			p.creds = append(p.creds[:i], p.creds[i+1:]...)
			return true
		}
	}
	return false
}

// SetActive is the operator switch for a credential.
func (p *Pool) SetActive(secret string, active bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	c := p.find(secret)
	if c == nil {
		return false
	}
	c.IsActive = active
	return true
}

// Reset clears exhaustion and the error count. Nothing else un-exhausts a credential.
func (p *Pool) Reset(secret string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	c := p.find(secret)
	if c == nil {
		return false
	}
	c.IsExhausted = false
	c.ErrorCount = 0
	return true
}

// UsableCount returns the number of credentials Select could return.
func (p *Pool) UsableCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, c := range p.creds {
		if c.Usable() {
			n++
		}
	}
	return n
}

// Len returns the total number of credentials, usable or not.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.creds)
}

// Snapshot returns a deep copy of the credentials in insertion order.
func (p *Pool) Snapshot() []Credential {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Credential, 0, len(p.creds))
	for _, c := range p.creds {
		cp := *c
		if c.LastUsed != nil {
			t := *c.LastUsed
			cp.LastUsed = &t
		}
		out = append(out, cp)
	}
	return out
}

// FindBySuffix returns the secret of the only credential ending with suffix.
func (p *Pool) FindBySuffix(suffix string) (string, error) {
	if suffix == "" {
		return "", ErrUnknownSuffix
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var found string
	matches := 0
	for _, c := range p.creds {
		if strings.HasSuffix(c.Key, suffix) {
			found = c.Key
			matches++
		}
	}
	switch matches {
	case 0:
		return "", ErrUnknownSuffix
	case 1:
		return found, nil
	default:
		return "", ErrAmbiguousSuffix
	}
}

// Mask hides all but the last four characters of a secret.
func Mask(secret string) string {
	if len(secret) <= 4 {
		return "****"
	}
	return "..." + secret[len(secret)-4:]
}
