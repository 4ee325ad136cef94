// Package client is a typed HTTP client for the labsite content API. The admin
// dashboard and the public pages both talk to the server through it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Record is one entry of a collection section.
type Record map[string]any

// CleanupOutcome reports one blob deletion triggered by a mutation.
type CleanupOutcome struct {
	Ref    string `json:"ref"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// MutationResult is the server's answer to Append, Update and Delete.
type MutationResult struct {
	Message string
	Record  Record
	Cleanup []CleanupOutcome
}

// LoginResult is returned by Login. The client keeps AccessToken for later calls.
type LoginResult struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expiresIn"`
}

// SweepReport lists uploaded blobs no record references.
type SweepReport struct {
	DryRun     bool             `json:"dryRun"`
	Scanned    int              `json:"scanned"`
	Referenced int              `json:"referenced"`
	Orphans    []string         `json:"orphans"`
	Cleanup    []CleanupOutcome `json:"cleanup,omitempty"`
}

// Error is a non-2xx response. Message is the server's human readable message;
// Detail carries the underlying cause on server errors.
type Error struct {
	Status  int
	Message string
	Detail  string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("labsite: %d %s: %s", e.Status, e.Message, e.Detail)
	}
	return fmt.Sprintf("labsite: %d %s", e.Status, e.Message)
}

// StatusOf returns the HTTP status carried by err, or 0 when err is not an *Error.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

type Option func(*Client)

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Login exchanges the admin credentials for tokens and keeps the access token.
func (c *Client) Login(ctx context.Context, username, password string) (LoginResult, error) {
	var out LoginResult
	body := map[string]string{"username": username, "password": password}
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", body, &out); err != nil {
		return LoginResult{}, err
	}
	c.SetToken(out.AccessToken)
	return out, nil
}

// List returns a section verbatim: an array for collections, an object for
// singletons, and [] when the section does not exist.
func (c *Client) List(ctx context.Context, section string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/data/"+url.PathEscape(section), nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Records lists a collection section as records.
func (c *Client) Records(ctx context.Context, section string) ([]Record, error) {
	raw, err := c.List(ctx, section)
	if err != nil {
		return nil, err
	}
	var recs []Record
	if err := decode(bytes.NewReader(raw), &recs); err != nil {
		return nil, fmt.Errorf("section %q is not a collection: %w", section, err)
	}
	return recs, nil
}

func (c *Client) Get(ctx context.Context, section, id string) (Record, error) {
	var rec Record
	if err := c.doJSON(ctx, http.MethodGet, recordPath(section, id), nil, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Append adds rec to a collection, or replaces a singleton section.
func (c *Client) Append(ctx context.Context, section string, rec Record) (MutationResult, error) {
	return c.mutate(ctx, http.MethodPost, "/data/"+url.PathEscape(section), rec)
}

// Update merges patch into the record with the given id.
func (c *Client) Update(ctx context.Context, section, id string, patch Record) (MutationResult, error) {
	return c.mutate(ctx, http.MethodPatch, recordPath(section, id), patch)
}

func (c *Client) Delete(ctx context.Context, section, id string) (MutationResult, error) {
	return c.mutate(ctx, http.MethodDelete, recordPath(section, id), nil)
}

// Upload sends an image and returns the reference to store in a record.
func (c *Client) Upload(ctx context.Context, filename, contentType string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/upload", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var out struct {
		ImageURL string `json:"imageUrl"`
	}
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	return out.ImageURL, nil
}

// DeleteUpload removes an uploaded image. References the server does not own
// are accepted and ignored.
func (c *Client) DeleteUpload(ctx context.Context, ref string) error {
	return c.doJSON(ctx, http.MethodDelete, "/upload", map[string]string{"imageUrl": ref}, nil)
}

// Sweep asks the server to find, and unless dryRun is set delete, orphaned uploads.
func (c *Client) Sweep(ctx context.Context, dryRun bool, grace time.Duration) (SweepReport, error) {
	q := url.Values{}
	q.Set("dryRun", strconv.FormatBool(dryRun))
	q.Set("grace", grace.String())
	var rep SweepReport
	err := c.doJSON(ctx, http.MethodPost, "/upload/sweep?"+q.Encode(), nil, &rep)
	return rep, err
}

func (c *Client) mutate(ctx context.Context, method, path string, body Record) (MutationResult, error) {
	var payload any
	if body != nil {
		payload = body
	}
	var out struct {
		Message     string           `json:"message"`
		Record      Record           `json:"record"`
		UpdatedData Record           `json:"updatedData"`
		Cleanup     []CleanupOutcome `json:"cleanup"`
	}
	if err := c.doJSON(ctx, method, path, payload, &out); err != nil {
		return MutationResult{}, err
	}
	res := MutationResult{Message: out.Message, Record: out.Record, Cleanup: out.Cleanup}
	if res.Record == nil {
		res.Record = out.UpdatedData
	}
	return res, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := c.newRequest(ctx, method, path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		apiErr := &Error{Status: resp.StatusCode}
		var body struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		if json.Unmarshal(b, &body) == nil && body.Message != "" {
			apiErr.Message, apiErr.Detail = body.Message, body.Error
		} else {
			apiErr.Message = strings.TrimSpace(string(b))
			if apiErr.Message == "" {
				apiErr.Message = http.StatusText(resp.StatusCode)
			}
		}
		return apiErr
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return decode(resp.Body, out)
}

// decode keeps numbers as json.Number so record ids and counts survive untouched.
func decode(r io.Reader, out any) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return dec.Decode(out)
}

func recordPath(section, id string) string {
	return "/data/" + url.PathEscape(section) + "/" + url.PathEscape(id)
}
