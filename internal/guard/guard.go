// Package guard gates routes on the session state.
package guard

import (
	"context"
	"fmt"

	"github.com/and161185/c3ds-console/internal/nav"
	"github.com/and161185/c3ds-console/internal/session"
)

// Requirement is what a route demands of the session.
type Requirement struct {
	Authenticated bool
	Participant   bool
}

var (
	Public          = Requirement{}
	SignedIn        = Requirement{Authenticated: true}
	ParticipantOnly = Requirement{Authenticated: true, Participant: true}
)

// Outcome of a guard decision.
type Outcome int

const (
	Loading Outcome = iota
	Redirect
	Render
)

func (o Outcome) String() string {
	switch o {
	case Loading:
		return "loading"
	case Redirect:
		return "redirect"
	case Render:
		return "render"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Decision is the result of Decide. To is set for Redirect.
type Decision struct {
	Outcome Outcome
	To      nav.Route
}

// Decide is the pure guard. It never redirects while the session is Unknown.
func Decide(s session.Snapshot, req Requirement) Decision {
	if !req.Authenticated && !req.Participant {
		return Decision{Outcome: Render}
	}
	switch s.State {
	case session.Unknown:
		return Decision{Outcome: Loading}
	case session.Unauthenticated:
		return Decision{Outcome: Redirect, To: nav.Home}
	case session.Authenticated:
		if req.Participant && !s.IsParticipant() {
			return Decision{Outcome: Redirect, To: nav.Home}
		}
		return Decision{Outcome: Render}
	}
	panic(fmt.Sprintf("guard: unhandled session state %v", s.State))
}

// Sessions is the part of the session store the guard reads.
type Sessions interface {
	Snapshot() session.Snapshot
	Wait(ctx context.Context) (session.Snapshot, error)
}

// Enter decides for route, waiting out a Loading decision, and applies the
// final decision through n. onLoading, if set, runs once before waiting.
func Enter(ctx context.Context, s Sessions, n nav.Navigator, route nav.Route, req Requirement, onLoading func()) (Decision, error) {
	d := Decide(s.Snapshot(), req)
	if d.Outcome == Loading {
		if onLoading != nil {
			onLoading()
		}
		snap, err := s.Wait(ctx)
		if err != nil {
			return d, err
		}
		d = Decide(snap, req)
	}
	switch d.Outcome {
	case Redirect:
		n.Navigate(d.To)
	case Render:
		n.Navigate(route)
	case Loading:
		return d, fmt.Errorf("guard: session still unresolved for %s", route)
	}
	return d, nil
}
