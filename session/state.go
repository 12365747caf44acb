package session

import (
	"fmt"

	"github.com/jrsteele09/go-auth-session/tokenstore"
	"github.com/rs/zerolog"
)

// State is the lifecycle state of one browser session as seen by one attempt
// (a sign-in completion, a refresh or a sign-out).
type State int

const (
	StateAnonymous State = iota
	StateExchanging
	StateAuthenticated
	StateRefreshing
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateExchanging:
		return "exchanging"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// transitions lists the legal moves. Failed is terminal for the attempt.
var transitions = map[State][]State{
	StateAnonymous:     {StateExchanging, StateFailed},
	StateExchanging:    {StateAuthenticated, StateFailed},
	StateAuthenticated: {StateExchanging, StateRefreshing, StateAnonymous, StateFailed},
	StateRefreshing:    {StateAuthenticated, StateAnonymous},
	StateFailed:        nil,
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// stateOf derives the starting state of an attempt from the stored session.
// A session whose access token lapsed but that still holds a refresh token
// counts as authenticated-but-expired.
func stateOf(s tokenstore.Session) State {
	if s.Authenticated() || s.RefreshToken != "" {
		return StateAuthenticated
	}
	return StateAnonymous
}

// attempt tracks the state of one lifecycle operation and logs every move.
type attempt struct {
	op    string
	state State
	log   zerolog.Logger
}

func (m *Manager) newAttempt(op string, from State) *attempt {
	return &attempt{op: op, state: from, log: m.log}
}

// to moves the attempt. Re-entering the current state is a no-op; anything
// not in the table is a programming error.
func (a *attempt) to(next State) error {
	if a.state == next {
		return nil
	}
	if !CanTransition(a.state, next) {
		err := fmt.Errorf("illegal session transition %s -> %s during %s", a.state, next, a.op)
		a.log.Error().Err(err).Msg("session state machine")
		return err
	}
	a.log.Debug().Str("op", a.op).Stringer("from", a.state).Stringer("to", next).Msg("session transition")
	a.state = next
	return nil
}
