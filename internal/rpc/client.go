// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package rpc

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/MKhiriev/cachou/internal/apierr"
)

const contentType = "application/msgpack"

// Client is the client-side RPC transport: it POSTs a msgpack-encoded
// envelope to a single configured URL and decodes the msgpack-encoded
// Result. It deliberately does not use resty's own SetRetryCount, which
// retries on any non-2xx status too — every application outcome here comes
// back as HTTP 200, so the only failure resty's retry logic would ever see
// is a transport-level one, but hand-rolling the bound keeps that
// guarantee explicit rather than implicit in a retry-condition callback.
type Client struct {
	http *resty.Client
	url  string
}

// NewClient builds a Client posting to url.
func NewClient(url string) *Client {
	return &Client{http: resty.New(), url: url}
}

// Call sends one RPC of the given kind and decodes its typed result.
// Transport-level failures (no HTTP response at all) are retried exactly
// once; any response the server sent, success or application error, is
// returned as-is without a retry.
func Call[Req any, Ret any](ctx context.Context, c *Client, kind Kind, req Req) (Ret, error) {
	var zero Ret

	body, err := encodeRequest(kind, req)
	if err != nil {
		return zero, apierr.NewClientSideError(err)
	}

	resp, err := c.post(ctx, body)
	if err != nil {
		resp, err = c.post(ctx, body)
		if err != nil {
			return zero, apierr.NewClientSideError(fmt.Errorf("rpc: %s: %w", kind, err))
		}
	}

	var result Result[Ret]
	if err := msgpack.Unmarshal(resp.Body(), &result); err != nil {
		return zero, apierr.NewClientSideError(fmt.Errorf("rpc: %s: decode response: %w", kind, err))
	}
	if result.Err != nil {
		return zero, result.Err
	}
	return result.Value, nil
}

func (c *Client) post(ctx context.Context, body []byte) (*resty.Response, error) {
	return c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", contentType).
		SetBody(body).
		Post(c.url)
}
