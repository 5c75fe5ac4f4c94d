package k8s

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client issues typed verbs against the Kubernetes v1 API.
type Client struct {
	baseURL    string
	apiVersion string
	token      string
	http       *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBearerToken authenticates requests with a bearer token.
func WithBearerToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithClientCert configures mutual-TLS client authentication.
func WithClientCert(cert tls.Certificate, insecureSkipVerify bool) Option {
	return func(c *Client) {
		transport := &http.Transport{
			TLSClientConfig: &tls.Config{
				Certificates:       []tls.Certificate{cert},
				InsecureSkipVerify: insecureSkipVerify,
			},
		}
		c.http.Transport = transport
	}
}

// WithCACertPool verifies the API server's certificate against pool instead
// of the system root set, for clusters using a private CA.
func WithCACertPool(pool *x509.CertPool) Option {
	return func(c *Client) {
		transport, ok := c.http.Transport.(*http.Transport)
		if !ok || transport == nil {
			transport = &http.Transport{TLSClientConfig: &tls.Config{}}
		}
		if transport.TLSClientConfig == nil {
			transport.TLSClientConfig = &tls.Config{}
		}
		transport.TLSClientConfig.RootCAs = pool
		c.http.Transport = transport
	}
}

// New creates a Client against baseURL (e.g. "https://master:6443"), using
// apiVersion (typically "v1") as the API path segment.
func New(baseURL, apiVersion string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiVersion: apiVersion,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// resourcePath builds /api/<version>/<resource>[/<name>] optionally scoped
// to a namespace.
func (c *Client) resourcePath(resource, namespace, name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "/api/%s", c.apiVersion)
	if namespace != "" {
		fmt.Fprintf(&b, "/namespaces/%s", namespace)
	}
	fmt.Fprintf(&b, "/%s", resource)
	if name != "" {
		fmt.Fprintf(&b, "/%s", name)
	}
	return b.String()
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	full := c.baseURL + path
	if len(query) > 0 {
		full += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, full, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("k8s api request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading k8s api response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Method: method, Path: path, Body: string(respBody)}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decoding k8s api response: %w", err)
	}
	return nil
}

// Get fetches a single named object of the given resource kind.
func (c *Client) Get(ctx context.Context, resource, namespace, name string, out any) error {
	return c.do(ctx, http.MethodGet, c.resourcePath(resource, namespace, name), nil, nil, out)
}

// List fetches every object of the given resource kind in namespace ("" for
// cluster-scoped resources or all namespaces).
func (c *Client) List(ctx context.Context, resource, namespace string, out any) error {
	return c.do(ctx, http.MethodGet, c.resourcePath(resource, namespace, ""), nil, nil, out)
}

// Create posts a new object of the given resource kind.
func (c *Client) Create(ctx context.Context, resource, namespace string, body, out any) error {
	return c.do(ctx, http.MethodPost, c.resourcePath(resource, namespace, ""), nil, body, out)
}

// Update replaces an existing named object. Callers must set the object's
// resourceVersion from the last read to avoid a 409 Conflict.
func (c *Client) Update(ctx context.Context, resource, namespace, name string, body, out any) error {
	return c.do(ctx, http.MethodPut, c.resourcePath(resource, namespace, name), nil, body, out)
}

// Delete removes a named object.
func (c *Client) Delete(ctx context.Context, resource, namespace, name string) error {
	return c.do(ctx, http.MethodDelete, c.resourcePath(resource, namespace, name), nil, nil, nil)
}
