// Package indexer talks to the external document-indexing service that
// makes uploaded onboarding materials searchable. The service is an
// external collaborator consumed through three contracts: upload, update
// and delete.
package indexer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// Indexer receives material lifecycle notifications.
type Indexer interface {
	Upload(ctx context.Context, doc Document, body io.Reader) error
	Update(ctx context.Context, doc Document, body io.Reader) error
	Delete(ctx context.Context, documentID string) error
}

// Document describes the material being indexed.
type Document struct {
	ID          string
	TaskID      string
	FileName    string
	ContentType string
}

// Client is the HTTP implementation of Indexer.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client against the service base URL.
func New(baseURL string) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("indexer: base url is required")
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (c *Client) Upload(ctx context.Context, doc Document, body io.Reader) error {
	return c.send(ctx, http.MethodPost, c.baseURL+"/documents", doc, body)
}

func (c *Client) Update(ctx context.Context, doc Document, body io.Reader) error {
	return c.send(ctx, http.MethodPut, c.baseURL+"/documents/"+doc.ID, doc, body)
}

func (c *Client) Delete(ctx context.Context, documentID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/documents/"+documentID, nil)
	if err != nil {
		return err
	}
	return c.do(req)
}

func (c *Client) send(ctx context.Context, method, url string, doc Document, body io.Reader) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for field, value := range map[string]string{
		"document_id":  doc.ID,
		"task_id":      doc.TaskID,
		"file_name":    doc.FileName,
		"content_type": doc.ContentType,
	} {
		if err := mw.WriteField(field, value); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile("file", doc.FileName)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, body); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req)
}

func (c *Client) do(req *http.Request) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("indexer: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("indexer: %s %s: status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	return nil
}

// Disabled is a no-op Indexer used when no service URL is configured.
type Disabled struct{}

func (Disabled) Upload(context.Context, Document, io.Reader) error { return nil }
func (Disabled) Update(context.Context, Document, io.Reader) error { return nil }
func (Disabled) Delete(context.Context, string) error              { return nil }
