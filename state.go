package ormkit

import (
	"context"
)

type stateKey struct{}

// State is the ambient state of one call chain: the active transaction and
// the installed results filter. Every change derives a child State in a new
// context, so goroutines and sibling chains never see each other's changes.
type State struct {
	parent *State
	tx     *Tx
	filter *filterEntry
}

// WithState returns a context carrying a State, reusing the one already in
// ctx when present.
func WithState(ctx context.Context) (context.Context, *State) {
	if s := StateFrom(ctx); s != nil {
		return ctx, s
	}
	s := &State{}
	return context.WithValue(ctx, stateKey{}, s), s
}

// StateFrom returns the State carried by ctx, or nil.
func StateFrom(ctx context.Context) *State {
	s, _ := ctx.Value(stateKey{}).(*State)
	return s
}

// withTx returns a context whose state holds tx and inherits everything else
// from the state of ctx.
func withTx(ctx context.Context, tx *Tx) context.Context {
	return context.WithValue(ctx, stateKey{}, &State{parent: StateFrom(ctx), tx: tx})
}

// withFilter is withTx for a results filter.
func withFilter(ctx context.Context, e *filterEntry) context.Context {
	return context.WithValue(ctx, stateKey{}, &State{parent: StateFrom(ctx), filter: e})
}

// Tx returns the innermost transaction of the chain, or nil.
func (s *State) Tx() *Tx {
	for st := s; st != nil; st = st.parent {
		if st.tx != nil {
			return st.tx
		}
	}
	return nil
}

// Filter returns the innermost open results filter of the chain, or nil.
func (s *State) Filter() ResultsFilter {
	for st := s; st != nil; st = st.parent {
		if e := st.filter; e != nil && !e.closed.Load() {
			return e.filter
		}
	}
	return nil
}

func ambient(ctx context.Context) (*Tx, ResultsFilter) {
	s := StateFrom(ctx)
	if s == nil {
		return nil, nil
	}
	return s.Tx(), s.Filter()
}
