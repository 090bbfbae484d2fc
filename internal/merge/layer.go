package merge

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/verso/internal/fault"
	"github.com/roach88/verso/internal/history"
	"github.com/roach88/verso/internal/ir"
)

// Layer is the only path through which edit sessions write entities.
type Layer struct {
	engine *history.Engine
	hook   Hook
	logger *slog.Logger
}

// Option configures a Layer.
type Option func(*Layer)

// WithHook sets the merge hook. Default: DefaultHook.
func WithHook(h Hook) Option {
	return func(l *Layer) {
		l.hook = h
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Layer) {
		l.logger = logger
	}
}

// New creates a Layer writing through engine.
func New(engine *history.Engine, opts ...Option) *Layer {
	l := &Layer{
		engine: engine,
		hook:   DefaultHook,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Outcome describes an applied submission.
type Outcome struct {
	Change history.Change `json:"change"`

	// Merged is set when the hook produced the applied values.
	Merged bool `json:"merged"`
}

// Fingerprint returns the current version fingerprint of ent.
func (l *Layer) Fingerprint(ctx context.Context, ent ir.Entity) (string, error) {
	et, err := l.entityType(ent.Type)
	if err != nil {
		return "", err
	}
	var fp string
	err = l.engine.Atomic(ctx, func(tx *history.Tx) error {
		var err error
		fp, err = fingerprint(ctx, tx, et, ent)
		return err
	})
	return fp, err
}

// Open starts an edit session on the live entity typ/pk.
func (l *Layer) Open(ctx context.Context, typ string, pk int64) (*Session, error) {
	et, err := l.entityType(typ)
	if err != nil {
		return nil, err
	}
	var fp string
	err = l.engine.Atomic(ctx, func(tx *history.Tx) error {
		ent, err := tx.Get(ctx, typ, pk)
		if err != nil {
			return err
		}
		fp, err = fingerprint(ctx, tx, et, ent)
		return err
	})
	if err != nil {
		return nil, err
	}
	s, err := newSession(typ, pk, fp)
	if err != nil {
		return nil, err
	}
	l.logger.Debug("edit session opened", "session", s.ID, "type", typ, "pk", pk, "fingerprint", fp)
	return s, nil
}

// Submit applies yours to the session's entity.
//
// When the entity's fingerprint still matches the session's, yours is
// applied as is. Otherwise the hook decides: merged values are applied, an
// error leaves the entity untouched, moves the session to
// RejectedWithConflict with a refreshed fingerprint and is returned as a
// Conflict fault.
//
// Generated fields in yours (identity, auto-now, version) are ignored;
// unknown fields are rejected.
func (l *Layer) Submit(ctx context.Context, s *Session, yours ir.Record) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "merge.Submit", trace.WithAttributes(
		attribute.String("entity_type", s.Type),
		attribute.Int64("pk", s.PK),
		attribute.String("session", s.ID.String()),
	))
	defer span.End()

	out, err := l.submit(ctx, s, yours)
	switch {
	case err == nil && out.Merged:
		submissionsTotal.WithLabelValues("merged").Inc()
	case err == nil:
		submissionsTotal.WithLabelValues("clean").Inc()
	case fault.IsConflict(err):
		submissionsTotal.WithLabelValues("conflict").Inc()
		span.SetAttributes(attribute.Bool("conflict", true))
	default:
		submissionsTotal.WithLabelValues("failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return out, err
}

func (l *Layer) submit(ctx context.Context, s *Session, yours ir.Record) (Outcome, error) {
	et, err := l.entityType(s.Type)
	if err != nil {
		return Outcome{}, err
	}
	cleaned, err := clean(et, yours)
	if err != nil {
		return Outcome{}, err
	}

	var (
		out      Outcome
		conflict error
		latest   string
	)
	err = l.engine.Atomic(ctx, func(tx *history.Tx) error {
		current, err := tx.Get(ctx, s.Type, s.PK)
		if err != nil {
			return err
		}
		fp, err := fingerprint(ctx, tx, et, current)
		if err != nil {
			return err
		}

		values := cleaned
		if fp != s.Fingerprint {
			theirs := current.Fields.Clone()
			base := ancestor(ctx, tx, et, current, s.Fingerprint)
			merged, herr := l.hook(cleaned.Clone(), theirs, base)
			if herr != nil {
				conflict = asConflict(herr, et.Name, current.PK)
				latest = fp
				return nil
			}
			if values, err = clean(et, merged); err != nil {
				return err
			}
			out.Merged = true
		}

		out.Change, err = tx.Update(ctx, s.Type, s.PK, values)
		if err != nil {
			return err
		}
		latest, err = fingerprint(ctx, tx, et, out.Change.Entity)
		return err
	})
	if err != nil {
		return Outcome{}, err
	}

	previous := s.Fingerprint
	s.Fingerprint = latest
	if conflict != nil {
		s.State = RejectedWithConflict
		l.logger.Warn("edit rejected",
			"session", s.ID,
			"type", s.Type,
			"pk", s.PK,
			"submitted", previous,
			"current", latest,
		)
		return Outcome{}, conflict
	}
	s.State = Clean
	l.logger.Info("edit applied",
		"session", s.ID,
		"type", s.Type,
		"pk", s.PK,
		"merged", out.Merged,
	)
	return out, nil
}

func (l *Layer) entityType(name string) (*ir.EntityType, error) {
	et, ok := l.engine.Types().Type(name)
	if !ok {
		return nil, fault.Invalid(name, "unknown entity type")
	}
	return et, nil
}

// clean drops generated fields and rejects unknown ones.
func clean(et *ir.EntityType, values ir.Record) (ir.Record, error) {
	out := make(ir.Record, len(values))
	for _, name := range values.SortedKeys() {
		if _, ok := et.Field(name); !ok {
			return nil, fault.Invalid(et.Name, "unknown field %q", name)
		}
		if et.Editable(name) {
			out[name] = values[name]
		}
	}
	return out, nil
}

// asConflict turns a hook error into a Conflict fault for typ/pk.
func asConflict(err error, typ string, pk int64) error {
	var fe *fault.Error
	if errors.As(err, &fe) && fe.Code == fault.CodeConflict {
		c := *fe
		if c.Type == "" {
			c.Type = typ
		}
		if c.Key == "" {
			c.Key = ir.PKKey(pk)
		}
		return &c
	}
	c := fault.Conflict(typ, ir.PKKey(pk), err.Error())
	c.Cause = err
	return c
}
