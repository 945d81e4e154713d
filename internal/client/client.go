// Package client is the Go client for the corpora ingestion API: registering
// uploads, transferring file bytes, polling pipeline progress and reading the
// resulting chunks.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ragstack/corpora/internal/models"
)

// Client talks to one corpora server on behalf of one authenticated user.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     *zap.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient swaps the underlying HTTP client (timeouts, transport).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger attaches a structured logger; the default is a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Registration is the server's answer to a register call: the reserved
// document slot and the URL the file bytes go to.
type Registration struct {
	Document  models.Document `json:"document"`
	UploadURL string          `json:"upload_url"`
}

type registerRequest struct {
	FileName    string `json:"file_name"`
	FileSize    int64  `json:"file_size"`
	ContentType string `json:"content_type"`
}

// Register reserves a document slot for one file in a project.
func (c *Client) Register(ctx context.Context, projectID, fileName string, fileSize int64, contentType string) (*Registration, error) {
	var reg Registration
	err := c.do(ctx, http.MethodPost,
		fmt.Sprintf("/api/projects/%s/documents/register", projectID),
		registerRequest{FileName: fileName, FileSize: fileSize, ContentType: contentType},
		&reg)
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// Transfer PUTs the raw file bytes to the storage URL from a registration.
// The URL is presigned; no Authorization header is sent.
func (c *Client) Transfer(ctx context.Context, uploadURL, contentType string, data io.Reader, size int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, data)
	if err != nil {
		return err
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("storage answered %d", resp.StatusCode)
	}
	return nil
}

// Confirm tells the server the transfer finished, moving the document into
// the processing queue.
func (c *Client) Confirm(ctx context.Context, documentID string) (*models.Document, error) {
	var doc models.Document
	err := c.do(ctx, http.MethodPost,
		fmt.Sprintf("/api/documents/%s/confirm", documentID), nil, &doc)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// Status fetches the document's pipeline snapshot: per-stage states and
// run metrics.
func (c *Client) Status(ctx context.Context, documentID string) (*models.DocumentStatus, error) {
	var st models.DocumentStatus
	err := c.do(ctx, http.MethodGet,
		fmt.Sprintf("/api/documents/%s/status", documentID), nil, &st)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// Chunks fetches the stored chunks of a completed document. While the
// pipeline is still running (the server answers 409) it returns ErrNotReady.
func (c *Client) Chunks(ctx context.Context, documentID string) (*ChunkSet, error) {
	var chunks []models.DocumentChunk
	err := c.do(ctx, http.MethodGet,
		fmt.Sprintf("/api/documents/%s/chunks", documentID), nil, &chunks)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
			return nil, fmt.Errorf("%w: %s", ErrNotReady, apiErr.Message)
		}
		return nil, err
	}
	return NewChunkSet(chunks), nil
}

// DeleteDocument removes a document and everything stored for it. Used both
// directly and as the compensating action when an upload partially fails.
func (c *Client) DeleteDocument(ctx context.Context, documentID string) error {
	return c.do(ctx, http.MethodDelete, "/api/documents/"+documentID, nil, nil)
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server answered %d: %s", e.Status, e.Message)
}

// do runs one JSON request against the API, decoding the answer into out
// when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := readErrMessage(resp.Body)
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func readErrMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, 4<<10))
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(raw))
}
