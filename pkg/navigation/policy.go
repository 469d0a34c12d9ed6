// Package navigation decides which requests a page may make and which
// navigations a frame may perform.
//
// Requests whose address matches a blocked pattern are refused outright.
// Navigations of frames are put to the "navigate" callback of the frame,
// whose answer is interpreted by Accepts.
package navigation

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/gobwas/glob"
	"github.com/rs/zerolog"

	"github.com/entrhq/koala/pkg/metrics"
)

// Reason describes what triggered a navigation request.
type Reason string

const (
	ReasonLink   Reason = "link"
	ReasonForm   Reason = "form"
	ReasonReload Reason = "reload"
	ReasonOther  Reason = "other"
)

// DefaultBlocked is the pattern list used when none is configured: local
// files and embedded resources are never reachable from page content.
var DefaultBlocked = []string{"file:*", "qrc:*"}

// BlockedFunc is notified of every refused request.
type BlockedFunc func(address string)

// Policy holds the compiled blocked patterns.
type Policy struct {
	patterns []string
	blocked  []glob.Glob

	mu        sync.Mutex
	onBlocked []BlockedFunc
	log       zerolog.Logger
}

// Option configures a Policy.
type Option func(*Policy)

// WithLogger sets the policy logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Policy) { p.log = l }
}

// NewPolicy compiles patterns into a policy. A nil slice selects
// DefaultBlocked; an empty non-nil slice blocks nothing.
func NewPolicy(patterns []string, opts ...Option) (*Policy, error) {
	if patterns == nil {
		patterns = DefaultBlocked
	}

	p := &Policy{
		patterns: append([]string(nil), patterns...),
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}

	for _, pattern := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid blocked pattern '%s': %w", pattern, err)
		}
		p.blocked = append(p.blocked, g)
	}
	return p, nil
}

// Patterns returns the configured blocked patterns.
func (p *Policy) Patterns() []string {
	return append([]string(nil), p.patterns...)
}

// OnBlocked registers fn to be called for every refused request.
func (p *Policy) OnBlocked(fn BlockedFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onBlocked = append(p.onBlocked, fn)
}

// Blocked reports whether address matches a blocked pattern. Matching
// requests are counted and reported to OnBlocked subscribers.
func (p *Policy) Blocked(address string) bool {
	normalized := normalize(address)
	for _, g := range p.blocked {
		if g.Match(normalized) {
			p.refuse(address, metrics.BlockPattern)
			return true
		}
	}
	return false
}

// Refused records a navigation turned down by a callback.
func (p *Policy) Refused(address string) {
	p.refuse(address, metrics.BlockCallback)
}

func (p *Policy) refuse(address, rule string) {
	metrics.RequestsBlocked.WithLabelValues(rule).Inc()
	p.log.Debug().Str("url", address).Str("rule", rule).Msg("request blocked")

	p.mu.Lock()
	subs := append([]BlockedFunc(nil), p.onBlocked...)
	p.mu.Unlock()

	for _, fn := range subs {
		fn(address)
	}
}

// normalize lowercases the scheme so that FILE:/x and file:/x match alike.
func normalize(address string) string {
	u, err := url.Parse(address)
	if err != nil || u.Scheme == "" {
		return address
	}
	return strings.ToLower(u.Scheme) + address[len(u.Scheme):]
}

// Accepts interprets the result of a navigate callback. Only an explicit
// false refuses; no answer or a non-boolean answer accepts.
func Accepts(result any) bool {
	if b, ok := result.(bool); ok {
		return b
	}
	return true
}

// Confirms interprets the result of a confirm callback. Anything other than
// an explicit true declines.
func Confirms(result any) bool {
	b, ok := result.(bool)
	return ok && b
}

// PromptText interprets the result of a prompt callback. A string answer is
// returned with ok set; anything else dismisses the prompt.
func PromptText(result any) (text string, ok bool) {
	text, ok = result.(string)
	return text, ok
}
