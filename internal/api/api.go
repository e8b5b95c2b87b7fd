// Package api implements the backend resources on top of the HTTP adapter
// and describes each of them as cache queries and mutations.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/and161185/c3ds-console/internal/errs"
	"github.com/and161185/c3ds-console/internal/httpclient"
	"github.com/and161185/c3ds-console/internal/query"
)

// Transport is the part of the HTTP adapter the resources depend on.
type Transport interface {
	Do(ctx context.Context, r httpclient.Request) (*httpclient.Response, error)
	CSRFToken() string
}

var _ Transport = (*httpclient.Client)(nil)

// Cache keys. Parameterized keys extend these prefixes.
var (
	KeyMe            = query.K("auth", "me")
	KeyPublicDevices = query.K("devices", "public")
	KeyMyDevices     = query.K("devices", "mine")
	KeyStats         = query.K("dashboard", "stats")
	KeyMessages      = query.K("messages")
)

// Client groups every resource of the backend.
type Client struct {
	t        Transport
	validate *validator.Validate
}

// New returns resource clients over t.
func New(t Transport) *Client {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return &Client{t: t, validate: v}
}

// Validate checks v against its struct tags and reports failures in the
// same shape as a backend 400.
func (c *Client) Validate(v any) error {
	err := c.validate.Struct(v)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return err
	}
	out := &errs.APIError{Status: http.StatusBadRequest, Fields: map[string][]string{}}
	for _, fe := range ves {
		out.Fields[fe.Field()] = append(out.Fields[fe.Field()], fieldMessage(fe))
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "max":
		return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
	case "min":
		return fmt.Sprintf("Ensure this field has at least %s characters.", fe.Param())
	case "email":
		return "Enter a valid email address."
	case "eqfield":
		return "The two password fields didn't match."
	case "oneof":
		return "Select a valid choice."
	case "latitude", "longitude":
		return "Enter a valid coordinate."
	case "lte", "gte":
		return "Ensure this value is within range."
	}
	return "Invalid value."
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	resp, err := c.t.Do(ctx, httpclient.Request{Method: http.MethodGet, Path: path, Query: q})
	if err != nil {
		return err
	}
	return decode(resp, path, out)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, in, out any) error {
	resp, err := c.t.Do(ctx, httpclient.Request{Method: method, Path: path, Body: in})
	if err != nil {
		return err
	}
	return decode(resp, path, out)
}

func decode(resp *httpclient.Response, path string, out any) error {
	if out == nil || len(strings.TrimSpace(string(resp.Body))) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
