package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/c3ds-console/internal/errs"
)

var (
	errUsage               = errors.New("usage")
	errLoginRequired       = errors.New("login required")
	errParticipantRequired = errors.New("participant account required")
)

// describe turns a command error into the line shown to the user.
func describe(err error, hinted bool) string {
	switch {
	case errors.Is(err, errLoginRequired), errors.Is(err, errs.ErrUnauthorized):
		if hinted {
			return ""
		}
		return "You are not signed in. Run `c3ds login` first."
	case errors.Is(err, errParticipantRequired), errors.Is(err, errs.ErrForbidden):
		return "This action requires a participant account."
	case errors.Is(err, errs.ErrMissingCSRF):
		return "Request blocked: no anti-forgery token. Run `c3ds login` again."
	case errors.Is(err, errs.ErrExpired):
		return "The download window has expired. Regenerate the certificate with `c3ds gen-cert` and download again."
	case errors.Is(err, errs.ErrNotFound):
		return "Not found."
	case errors.Is(err, errs.ErrNetwork):
		return fmt.Sprintf("Cannot reach the backend: %v", err)
	case errors.Is(err, errs.ErrServer):
		return "The server failed to handle the request. Try again later."
	}
	if fields := errs.FieldErrors(err); len(fields) > 0 {
		return fieldLines(fields)
	}
	return err.Error()
}

// fieldLines renders per-field messages, non-field errors first.
func fieldLines(fields map[string][]string) string {
	names := make([]string, 0, len(fields))
	for k := range fields {
		if k != errs.NonFieldKey {
			names = append(names, k)
		}
	}
	sort.Strings(names)

	var b strings.Builder
	for _, m := range fields[errs.NonFieldKey] {
		b.WriteString(m + "\n")
	}
	for _, n := range names {
		for _, m := range fields[n] {
			fmt.Fprintf(&b, "%s: %s\n", n, m)
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// newFlags returns a subcommand flag set that reports errors instead of exiting.
func newFlags(name string, w io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(w)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	return nil
}

func need(w io.Writer, ok bool, msg string) error {
	if ok {
		return nil
	}
	fmt.Fprintln(w, msg)
	return errUsage
}

func parseID(w io.Writer, s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, need(w, false, "need -id")
	}
	id, err := uuid.FromString(s)
	if err != nil {
		fmt.Fprintf(w, "bad -id %q: %v\n", s, err)
		return uuid.Nil, errUsage
	}
	return id, nil
}

// setFlags reports which flags were given on the command line.
func setFlags(fs *flag.FlagSet) map[string]bool {
	seen := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { seen[f.Name] = true })
	return seen
}
