package diff

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/verso/internal/fault"
	"github.com/roach88/verso/internal/ir"
	"github.com/roach88/verso/internal/textdiff"
)

// ErrFrozen is returned by registration calls after Freeze.
var ErrFrozen = errors.New("diff registry is frozen")

// Predicate matches a kind given its supertypes, nearest first.
type Predicate func(kind ir.Kind, parents []ir.Kind) bool

type rule struct {
	name     string
	kind     ir.Kind // exact match when pred is nil
	pred     Predicate
	strategy Strategy
}

func (r rule) matches(kind ir.Kind, parents []ir.Kind) bool {
	if r.pred == nil {
		return r.kind == kind
	}
	return r.pred(kind, parents)
}

// Registry resolves field kinds to strategies.
//
// Rules are evaluated in registration order at every level of the kind's
// supertype chain: the kind itself first, then each supertype. The first
// match wins. Without a match the generic strategy is used.
//
// Registration is meant for setup time. Freeze makes the registry read-only.
type Registry struct {
	mu      sync.RWMutex
	rules   []rule
	named   map[string]Strategy
	generic Strategy
	frozen  bool
	logger  atomic.Pointer[slog.Logger]
}

// NewRegistry returns an empty registry with no generic strategy.
func NewRegistry() *Registry {
	r := &Registry{named: make(map[string]Strategy)}
	r.logger.Store(slog.Default())
	return r
}

// SetLogger sets the logger that expression rules report evaluation errors
// to. Default: slog.Default(). A nil logger is ignored.
func (r *Registry) SetLogger(l *slog.Logger) {
	if l != nil {
		r.logger.Store(l)
	}
}

// Predicates run under the read lock, so the logger is read without it.
func (r *Registry) currentLogger() *slog.Logger {
	return r.logger.Load()
}

// NewBuiltinRegistry returns a registry with the built-in strategies:
// text for text, html for html, file for file, and opaque as the generic
// fallback. text-exact is available by name.
func NewBuiltinRegistry(opts textdiff.Options) *Registry {
	r := NewRegistry()
	_ = r.Register(ir.KindText, Text{Options: opts})
	_ = r.Register(ir.KindHTML, HTML{})
	_ = r.Register(ir.KindFile, File{})
	_ = r.Define(TextExact{})
	_ = r.SetGeneric(Opaque{})
	return r
}

var (
	defaultRegistry *Registry
	defaultOnce     sync.Once
)

// Default returns the process-wide registry, created with the built-in
// strategies on first use. Register custom strategies at startup, then
// call Freeze.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewBuiltinRegistry(textdiff.Options{})
	})
	return defaultRegistry
}

// Register sets the strategy for an exact kind. A later registration for the
// same kind replaces the earlier one and keeps its position.
func (r *Registry) Register(kind ir.Kind, s Strategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return ErrFrozen
	}
	r.named[s.Name()] = s
	for i := range r.rules {
		if r.rules[i].pred == nil && r.rules[i].kind == kind {
			r.rules[i].strategy = s
			return nil
		}
	}
	r.rules = append(r.rules, rule{name: string(kind), kind: kind, strategy: s})
	return nil
}

// RegisterRule appends a predicate rule.
func (r *Registry) RegisterRule(name string, pred Predicate, s Strategy) error {
	if pred == nil {
		return fmt.Errorf("register rule %q: nil predicate", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return ErrFrozen
	}
	r.named[s.Name()] = s
	r.rules = append(r.rules, rule{name: name, pred: pred, strategy: s})
	return nil
}

// SetGeneric sets the fallback strategy used when no rule matches.
func (r *Registry) SetGeneric(s Strategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return ErrFrozen
	}
	r.named[s.Name()] = s
	r.generic = s
	return nil
}

// Define makes s available by name without binding it to a kind.
func (r *Registry) Define(s Strategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return ErrFrozen
	}
	r.named[s.Name()] = s
	return nil
}

// Freeze makes the registry read-only. Further registration returns
// ErrFrozen.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen reports whether Freeze was called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Strategy returns the strategy registered under name.
func (r *Registry) Strategy(name string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.named[name]
	if !ok {
		return nil, fault.StrategyNotFound(name).With("strategy", name)
	}
	return s, nil
}

// Lookup resolves a kind given its supertype chain, which starts with the
// kind itself. Fails with StrategyNotFound only when nothing matches and no
// generic strategy is set.
func (r *Registry) Lookup(chain []ir.Kind) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i, kind := range chain {
		parents := chain[i+1:]
		for _, rl := range r.rules {
			if rl.matches(kind, parents) {
				return rl.strategy, nil
			}
		}
	}
	if r.generic != nil {
		return r.generic, nil
	}
	var kind ir.Kind
	if len(chain) > 0 {
		kind = chain[0]
	}
	return nil, fault.StrategyNotFound(string(kind))
}

// Rules returns the rule names in evaluation order.
func (r *Registry) Rules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.rules))
	for i, rl := range r.rules {
		names[i] = rl.name
	}
	return names
}
