package merge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/verso/internal/fault"
	"github.com/roach88/verso/internal/history"
	"github.com/roach88/verso/internal/ir"
	"github.com/roach88/verso/internal/store"
	"github.com/roach88/verso/internal/testutil"
)

func testTypes(t *testing.T) *ir.TypeSet {
	t.Helper()
	id := ir.FieldSpec{Name: "id", Kind: ir.KindAuto, AutoID: true}
	types := []*ir.EntityType{
		{
			Name:      "Article",
			Fields:    []ir.FieldSpec{id, {Name: "contents", Kind: ir.KindText}},
			Versioned: true,
		},
		{
			Name:      "Doc",
			Fields:    []ir.FieldSpec{id, {Name: "title", Kind: ir.KindText}, {Name: "body", Kind: ir.KindText}},
			Versioned: true,
		},
		{
			Name:         "Counter",
			Fields:       []ir.FieldSpec{id, {Name: "label", Kind: ir.KindText}, {Name: "revision", Kind: ir.KindInt}},
			VersionField: "revision",
		},
		{
			Name:         "Ledger",
			Fields:       []ir.FieldSpec{id, {Name: "amount", Kind: ir.KindInt}, {Name: "revision", Kind: ir.KindInt}},
			VersionField: "revision",
			Versioned:    true,
		},
		{
			Name:   "Stamp",
			Fields: []ir.FieldSpec{id, {Name: "body", Kind: ir.KindText}, {Name: "modified", Kind: ir.KindDatetime, AutoNow: true}},
		},
		{
			Name:   "Bare",
			Fields: []ir.FieldSpec{id, {Name: "label", Kind: ir.KindText}},
		},
	}
	ts, err := ir.NewTypeSet(types, nil)
	require.NoError(t, err)
	return ts
}

func newTestEngine(t *testing.T) *history.Engine {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "merge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return history.New(s, testTypes(t),
		history.WithClock(testutil.NewDeterministicClock()),
		history.WithLogger(logger),
	)
}

func newTestLayer(t *testing.T, opts ...Option) (*Layer, *history.Engine) {
	t.Helper()
	e := newTestEngine(t)
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return New(e, opts...), e
}

func create(t *testing.T, e *history.Engine, typ string, fields ir.Record) ir.Entity {
	t.Helper()
	ch, err := e.Create(context.Background(), typ, fields)
	require.NoError(t, err)
	return ch.Entity
}

func open(t *testing.T, l *Layer, ent ir.Entity) *Session {
	t.Helper()
	s, err := l.Open(context.Background(), ent.Type, ent.PK)
	require.NoError(t, err)
	return s
}

func TestConflictWithDefaultHook(t *testing.T) {
	l, e := newTestLayer(t)
	ctx := context.Background()
	m := create(t, e, "Article", ir.Record{"contents": ir.String("abc")})

	a := open(t, l, m)
	b := open(t, l, m)
	require.Equal(t, a.Fingerprint, b.Fingerprint)
	assert.Equal(t, Opened, a.State)

	out, err := l.Submit(ctx, b, ir.Record{"contents": ir.String("B content")})
	require.NoError(t, err)
	assert.False(t, out.Merged)
	assert.Equal(t, Clean, b.State)
	assert.NotEqual(t, a.Fingerprint, b.Fingerprint)

	_, err = l.Submit(ctx, a, ir.Record{"contents": ir.String("A content")})
	require.Error(t, err)
	assert.True(t, fault.IsConflict(err))
	var fe *fault.Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, DefaultWarning, fe.Message)
	assert.Equal(t, "Article", fe.Type)

	assert.Equal(t, RejectedWithConflict, a.State)
	assert.Equal(t, b.Fingerprint, a.Fingerprint, "fingerprint refreshed to the current version")

	live, err := e.Get(ctx, "Article", m.PK)
	require.NoError(t, err)
	assert.Equal(t, ir.String("B content"), live.Fields["contents"])

	_, err = l.Submit(ctx, a, ir.Record{"contents": ir.String("A content")})
	require.NoError(t, err, "resubmission with the refreshed fingerprint is clean")
	assert.Equal(t, Clean, a.State)

	live, err = e.Get(ctx, "Article", m.PK)
	require.NoError(t, err)
	assert.Equal(t, ir.String("A content"), live.Fields["contents"])
}

func TestMergeHookConcatenates(t *testing.T) {
	concat := func(yours, theirs, ancestor ir.Record) (ir.Record, error) {
		yours["contents"] = ir.String(ir.Text(yours["contents"]) + ir.Text(theirs["contents"]))
		return yours, nil
	}
	l, e := newTestLayer(t, WithHook(concat))
	ctx := context.Background()
	m := create(t, e, "Article", ir.Record{"contents": ir.String("abc")})

	a := open(t, l, m)
	b := open(t, l, m)
	_, err := l.Submit(ctx, b, ir.Record{"contents": ir.String("def")})
	require.NoError(t, err)

	out, err := l.Submit(ctx, a, ir.Record{"contents": ir.String("abc")})
	require.NoError(t, err)
	assert.True(t, out.Merged)
	assert.Equal(t, Clean, a.State)
	assert.Equal(t, ir.String("abcdef"), out.Change.Entity.Fields["contents"])

	live, err := e.Get(ctx, "Article", m.PK)
	require.NoError(t, err)
	assert.Equal(t, ir.String("abcdef"), live.Fields["contents"])

	fp, err := l.Fingerprint(ctx, live)
	require.NoError(t, err)
	assert.Equal(t, fp, a.Fingerprint)
}

func TestThreeWayHookMergesDisjointEdits(t *testing.T) {
	l, e := newTestLayer(t, WithHook(ThreeWayHook))
	ctx := context.Background()
	d := create(t, e, "Doc", ir.Record{"title": ir.String("T"), "body": ir.String("B")})

	a := open(t, l, d)
	b := open(t, l, d)
	_, err := l.Submit(ctx, b, ir.Record{"title": ir.String("T2"), "body": ir.String("B")})
	require.NoError(t, err)

	out, err := l.Submit(ctx, a, ir.Record{"title": ir.String("T"), "body": ir.String("B2")})
	require.NoError(t, err)
	assert.True(t, out.Merged)
	assert.Equal(t, ir.String("T2"), out.Change.Entity.Fields["title"])
	assert.Equal(t, ir.String("B2"), out.Change.Entity.Fields["body"])
}

func TestThreeWayHookRejectsOverlappingEdits(t *testing.T) {
	l, e := newTestLayer(t, WithHook(ThreeWayHook))
	ctx := context.Background()
	d := create(t, e, "Doc", ir.Record{"title": ir.String("T"), "body": ir.String("B")})

	a := open(t, l, d)
	b := open(t, l, d)
	_, err := l.Submit(ctx, b, ir.Record{"title": ir.String("Theirs")})
	require.NoError(t, err)

	_, err = l.Submit(ctx, a, ir.Record{"title": ir.String("Mine")})
	require.True(t, fault.IsConflict(err))
	var fe *fault.Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "title", fe.Details["fields"])
	assert.Equal(t, RejectedWithConflict, a.State)
}

func TestThreeWayHookWithoutAncestor(t *testing.T) {
	merged, err := ThreeWayHook(
		ir.Record{"a": ir.Int(1), "b": ir.Int(2)},
		ir.Record{"a": ir.Int(1), "b": ir.Int(3)},
		nil,
	)
	assert.Nil(t, merged)
	assert.True(t, fault.IsConflict(err))

	merged, err = ThreeWayHook(ir.Record{"a": ir.Int(1)}, ir.Record{"a": ir.Int(1)}, nil)
	require.NoError(t, err)
	assert.Equal(t, ir.Record{"a": ir.Int(1)}, merged)
}

func TestVersionFieldFingerprint(t *testing.T) {
	var seen ir.Record
	capture := func(yours, theirs, ancestor ir.Record) (ir.Record, error) {
		seen = ancestor
		return nil, Conflict("stale counter")
	}
	l, e := newTestLayer(t, WithHook(capture))
	ctx := context.Background()
	c := create(t, e, "Counter", ir.Record{"label": ir.String("hits")})

	s := open(t, l, c)
	assert.Equal(t, "1", s.Fingerprint)

	_, err := e.Update(ctx, "Counter", c.PK, ir.Record{"label": ir.String("visits")})
	require.NoError(t, err)

	_, err = l.Submit(ctx, s, ir.Record{"label": ir.String("views"), "revision": ir.Int(50)})
	require.True(t, fault.IsConflict(err))
	assert.Equal(t, "stale counter", err.(*fault.Error).Message)
	assert.Nil(t, seen, "unversioned types have no ancestor")
	assert.Equal(t, "2", s.Fingerprint)

	out, err := l.Submit(ctx, s, ir.Record{"label": ir.String("views"), "revision": ir.Int(50)})
	require.NoError(t, err)
	assert.Equal(t, ir.Int(3), out.Change.Entity.Fields["revision"], "version field is generated, not submitted")
	assert.Equal(t, "3", s.Fingerprint)
}

func TestVersionFieldAncestorFromHistory(t *testing.T) {
	var seen ir.Record
	capture := func(yours, theirs, ancestor ir.Record) (ir.Record, error) {
		seen = ancestor
		return yours, nil
	}
	l, e := newTestLayer(t, WithHook(capture))
	ctx := context.Background()
	ledger := create(t, e, "Ledger", ir.Record{"amount": ir.Int(10)})

	s := open(t, l, ledger)
	_, err := e.Update(ctx, "Ledger", ledger.PK, ir.Record{"amount": ir.Int(20)})
	require.NoError(t, err)

	out, err := l.Submit(ctx, s, ir.Record{"amount": ir.Int(15)})
	require.NoError(t, err)
	assert.True(t, out.Merged)
	require.NotNil(t, seen)
	assert.Equal(t, ir.Int(10), seen["amount"])
	assert.Equal(t, ir.Int(1), seen["revision"])
}

func TestAutoNowFingerprint(t *testing.T) {
	l, e := newTestLayer(t)
	ctx := context.Background()
	st := create(t, e, "Stamp", ir.Record{"body": ir.String("x")})

	s := open(t, l, st)
	assert.Equal(t, ir.Text(st.Fields["modified"]), s.Fingerprint)

	out, err := l.Submit(ctx, s, ir.Record{"body": ir.String("y")})
	require.NoError(t, err)
	assert.Equal(t, ir.Text(out.Change.Entity.Fields["modified"]), s.Fingerprint)
	assert.NotEqual(t, st.Fields["modified"], out.Change.Entity.Fields["modified"])
}

func TestFingerprintRequiresSource(t *testing.T) {
	l, e := newTestLayer(t)
	bare := create(t, e, "Bare", ir.Record{"label": ir.String("x")})

	_, err := l.Open(context.Background(), "Bare", bare.PK)
	assert.True(t, fault.IsConfiguration(err))

	_, err = l.Fingerprint(context.Background(), bare)
	assert.True(t, fault.IsConfiguration(err))
}

func TestSubmitCleansInput(t *testing.T) {
	l, e := newTestLayer(t)
	ctx := context.Background()
	m := create(t, e, "Article", ir.Record{"contents": ir.String("abc")})
	s := open(t, l, m)

	_, err := l.Submit(ctx, s, ir.Record{"contents": ir.String("x"), "author": ir.String("me")})
	assert.True(t, fault.IsInvalid(err))
	assert.Equal(t, Opened, s.State)

	out, err := l.Submit(ctx, s, ir.Record{"id": ir.Int(99), "contents": ir.String("x")})
	require.NoError(t, err)
	assert.Equal(t, m.PK, out.Change.Entity.PK)
	assert.Equal(t, ir.Int(m.PK), out.Change.Entity.Fields["id"])
}

func TestOpenMissingEntity(t *testing.T) {
	l, _ := newTestLayer(t)
	_, err := l.Open(context.Background(), "Article", 42)
	assert.True(t, fault.IsNotFound(err))

	_, err = l.Open(context.Background(), "Nope", 1)
	assert.True(t, fault.IsInvalid(err))
}

func TestSessionIdentity(t *testing.T) {
	l, e := newTestLayer(t)
	m := create(t, e, "Article", ir.Record{"contents": ir.String("abc")})

	a := open(t, l, m)
	b := open(t, l, m)
	assert.NotEqual(t, a.ID, b.ID)
	assert.EqualValues(t, 7, a.ID.Version())

	r, err := Resume("Article", m.PK, a.Fingerprint)
	require.NoError(t, err)
	assert.Equal(t, Opened, r.State)
	assert.Equal(t, a.Fingerprint, r.Fingerprint)
}
