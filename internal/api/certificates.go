package api

import (
	"context"
	"net/http"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/c3ds-console/internal/convert"
	"github.com/and161185/c3ds-console/internal/httpclient"
	"github.com/and161185/c3ds-console/internal/model"
	"github.com/and161185/c3ds-console/internal/query"
)

// GenerateCertificate issues a certificate and returns its metadata.
// Key material is fetched separately.
func (c *Client) GenerateCertificate(ctx context.Context, id uuid.UUID) (model.CertificateInfo, error) {
	var w convert.Certificate
	if err := c.sendJSON(ctx, http.MethodPost, devicePath(id)+"certificate/", nil, &w); err != nil {
		return model.CertificateInfo{}, err
	}
	return convert.ToCertificateInfo(w), nil
}

// GenerateCertificateMutation refreshes the list and the device detail.
func (c *Client) GenerateCertificateMutation() query.Mutation[uuid.UUID, model.CertificateInfo] {
	return query.Mutation[uuid.UUID, model.CertificateInfo]{
		Fn:          c.GenerateCertificate,
		Invalidates: func(id uuid.UUID, _ model.CertificateInfo) []query.Key { return listAndDetail(id) },
	}
}

// CertificatePEM downloads the device certificate.
func (c *Client) CertificatePEM(ctx context.Context, id uuid.UUID) ([]byte, error) {
	return c.binary(ctx, httpclient.Request{
		Method: http.MethodGet,
		Path:   devicePath(id) + "certificate/download/",
		Accept: "application/x-pem-file",
	})
}

// PrivateKeyPEM downloads the device private key. The backend serves it
// only inside the download window.
func (c *Client) PrivateKeyPEM(ctx context.Context, id uuid.UUID) ([]byte, error) {
	return c.binary(ctx, httpclient.Request{
		Method: http.MethodGet,
		Path:   devicePath(id) + "private-key/download/",
		Accept: "application/x-pem-file",
	})
}

// CodeBundle builds the firmware archive with the network credentials baked in.
// A closed download window yields errs.ErrExpired.
func (c *Client) CodeBundle(ctx context.Context, id uuid.UUID, req model.BundleRequest) ([]byte, error) {
	if err := c.Validate(req); err != nil {
		return nil, err
	}
	return c.binary(ctx, httpclient.Request{
		Method: http.MethodPost,
		Path:   devicePath(id) + "bundle/",
		Body:   req,
		Accept: "application/zip",
	})
}

func (c *Client) binary(ctx context.Context, r httpclient.Request) ([]byte, error) {
	resp, err := c.t.Do(ctx, r)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
