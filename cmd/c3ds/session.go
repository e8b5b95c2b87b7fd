package main

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/and161185/c3ds-console/internal/guard"
	"github.com/and161185/c3ds-console/internal/model"
	"github.com/and161185/c3ds-console/internal/nav"
	"github.com/and161185/c3ds-console/internal/session"
	"github.com/and161185/c3ds-console/internal/view"
)

// enter resolves the session and applies the route guard for route.
func (e *env) enter(ctx context.Context, route nav.Route, req guard.Requirement) error {
	s := e.app.Session
	if s.State() == session.Unknown {
		go func() { _, _ = s.Check(ctx) }()
	}
	d, err := guard.Enter(ctx, s, e.app.Nav, route, req, func() {
		e.app.Log.Debug("waiting for session", zap.String("route", string(route)))
	})
	if err != nil {
		return err
	}
	if d.Outcome == guard.Render {
		return nil
	}
	if !s.IsAuthenticated() {
		return errLoginRequired
	}
	return errParticipantRequired
}

func cmdLogin(ctx context.Context, e *env, args []string) error {
	fs := newFlags("login", e.errOut)
	u := fs.String("u", "", "username")
	p := fs.String("p", "", "password")
	remember := fs.Bool("remember", false, "keep the session for longer")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := need(e.errOut, *u != "" && *p != "", "need -u and -p"); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	snap, err := e.app.Session.Login(ctx, model.Credentials{Username: *u, Password: *p, RememberMe: *remember})
	if err != nil {
		return err
	}
	return e.show(snap.User, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "Signed in as %s.\n", snap.User.Username)
		return err
	})
}

func cmdLogout(ctx context.Context, e *env, args []string) error {
	if err := parse(newFlags("logout", e.errOut), args); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	e.app.Session.Logout(ctx)
	_, err := fmt.Fprintln(e.out, "Signed out.")
	return err
}

func cmdRegister(ctx context.Context, e *env, args []string) error {
	fs := newFlags("register", e.errOut)
	u := fs.String("u", "", "username")
	email := fs.String("email", "", "email")
	p := fs.String("p", "", "password")
	confirm := fs.String("confirm", "", "password again")
	participant := fs.Bool("participant", false, "register as a participant")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := need(e.errOut, *u != "" && *p != "", "need -u and -p"); err != nil {
		return err
	}
	ut := model.UserTypeNonParticipant
	if *participant {
		ut = model.UserTypeParticipant
	}
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	err := e.app.Session.Register(ctx, model.Registration{
		Username:  *u,
		Email:     *email,
		Password1: *p,
		Password2: *confirm,
		UserType:  ut,
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(e.out, "Account %s created. Run `c3ds login` to sign in.\n", *u)
	return err
}

func cmdWhoami(ctx context.Context, e *env, args []string) error {
	if err := parse(newFlags("whoami", e.errOut), args); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	if err := e.enter(ctx, nav.Dashboard, guard.SignedIn); err != nil {
		return err
	}
	u := e.app.Session.User()
	return e.show(u, func(w io.Writer) error { return view.User(w, u) })
}
