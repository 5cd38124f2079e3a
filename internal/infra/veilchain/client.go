// Package veilchain is the networked implementation of the ledger
// contract, speaking JSON to the external VeilChain audit service. All
// transient failure is isolated here: network errors and 5xx responses
// are retried with bounded backoff and surface as ErrLedgerUnavailable
// once attempts are exhausted.
package veilchain

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"veilcloud/internal/domain"
)

type Client struct {
	baseURL string
	httpDo  func(*http.Request) (*http.Response, error)

	timeout  time.Duration
	attempts int
	backoff  time.Duration

	sleep func(context.Context, time.Duration) error
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpDo = httpClient.Do
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

func WithRetry(attempts int, backoff time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.attempts = attempts
		}
		if backoff > 0 {
			c.backoff = backoff
		}
	}
}

func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("ledger base url is required")
	}
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		httpDo:   http.DefaultClient.Do,
		timeout:  5 * time.Second,
		attempts: 3,
		backoff:  100 * time.Millisecond,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type appendRequest struct {
	Entry string `json:"entry"`
}

type appendResponse struct {
	EntryID string `json:"entry_id"`
	Index   int64  `json:"index"`
	Hash    string `json:"hash"`
}

type entryResponse struct {
	EntryID   string    `json:"entry_id"`
	Index     int64     `json:"index"`
	Hash      string    `json:"hash"`
	Data      string    `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type proofResponse struct {
	Root       string             `json:"root"`
	Path       []string           `json:"path"`
	Directions []domain.Direction `json:"directions"`
	Index      int64              `json:"index"`
	TreeSize   int64              `json:"tree_size"`
}

type consistencyResponse struct {
	Path []string `json:"path"`
}

type rootResponse struct {
	Root     string `json:"root"`
	TreeSize int64  `json:"tree_size"`
}

func (c *Client) Append(ctx context.Context, scope string, entry []byte) (domain.AppendReceipt, error) {
	body, err := json.Marshal(appendRequest{Entry: base64.StdEncoding.EncodeToString(entry)})
	if err != nil {
		return domain.AppendReceipt{}, err
	}
	var resp appendResponse
	if err := c.do(ctx, http.MethodPost, c.scopeURL(scope, "entries"), body, &resp); err != nil {
		return domain.AppendReceipt{}, err
	}
	hash, err := hex.DecodeString(resp.Hash)
	if err != nil {
		return domain.AppendReceipt{}, fmt.Errorf("decode entry hash: %w", err)
	}
	return domain.AppendReceipt{
		EntryID: resp.EntryID,
		Index:   resp.Index,
		Hash:    hash,
	}, nil
}

func (c *Client) GetEntry(ctx context.Context, scope, entryID string) (*domain.LedgerEntry, error) {
	var resp entryResponse
	if err := c.do(ctx, http.MethodGet, c.scopeURL(scope, "entries", entryID), nil, &resp); err != nil {
		return nil, err
	}
	return entryFromResponse(resp)
}

func (c *Client) GetProof(ctx context.Context, scope, entryID string) (*domain.LedgerProof, error) {
	var resp proofResponse
	if err := c.do(ctx, http.MethodGet, c.scopeURL(scope, "proof", entryID), nil, &resp); err != nil {
		return nil, err
	}
	root, err := hex.DecodeString(resp.Root)
	if err != nil {
		return nil, fmt.Errorf("decode root: %w", err)
	}
	siblings, err := decodeHexPath(resp.Path)
	if err != nil {
		return nil, err
	}
	return &domain.LedgerProof{
		Root:       root,
		Siblings:   siblings,
		Directions: resp.Directions,
		Index:      resp.Index,
		TreeSize:   resp.TreeSize,
	}, nil
}

func (c *Client) GetConsistencyProof(ctx context.Context, scope string, fromSize, toSize int64) ([][]byte, error) {
	query := url.Values{}
	query.Set("from", strconv.FormatInt(fromSize, 10))
	query.Set("to", strconv.FormatInt(toSize, 10))
	var resp consistencyResponse
	if err := c.do(ctx, http.MethodGet, c.scopeURL(scope, "consistency")+"?"+query.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return decodeHexPath(resp.Path)
}

func (c *Client) GetRootHash(ctx context.Context, scope string) ([]byte, error) {
	var resp rootResponse
	if err := c.do(ctx, http.MethodGet, c.scopeURL(scope, "root"), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Root == "" {
		return nil, nil
	}
	root, err := hex.DecodeString(resp.Root)
	if err != nil {
		return nil, fmt.Errorf("decode root: %w", err)
	}
	return root, nil
}

func (c *Client) GetTreeSize(ctx context.Context, scope string) (int64, error) {
	var resp rootResponse
	if err := c.do(ctx, http.MethodGet, c.scopeURL(scope, "size"), nil, &resp); err != nil {
		return 0, err
	}
	return resp.TreeSize, nil
}

func (c *Client) GetLatestEntry(ctx context.Context, scope string) (*domain.LedgerEntry, error) {
	var resp entryResponse
	err := c.do(ctx, http.MethodGet, c.scopeURL(scope, "entries", "latest"), nil, &resp)
	if errors.Is(err, domain.ErrEntryNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entryFromResponse(resp)
}

func (c *Client) scopeURL(scope string, parts ...string) string {
	segments := append([]string{"v1", "logs", url.PathEscape(scope)}, parts...)
	return c.baseURL + "/" + strings.Join(segments, "/")
}

// do runs one request with per-attempt timeout, retrying network errors
// and 5xx responses with doubling backoff.
func (c *Client) do(ctx context.Context, method, rawURL string, body []byte, out any) error {
	backoff := c.backoff
	var lastErr error
	for attempt := 0; attempt < c.attempts; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, backoff); err != nil {
				return err
			}
			backoff *= 2
		}

		retriable, err := c.doOnce(ctx, method, rawURL, body, out)
		if err == nil {
			return nil
		}
		if !retriable {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("%w: %v", domain.ErrLedgerUnavailable, lastErr)
}

func (c *Client) doOnce(ctx context.Context, method, rawURL string, body []byte, out any) (retriable bool, err error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(attemptCtx, method, rawURL, reader)
	if err != nil {
		return false, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpDo(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return true, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return true, err
	}
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return false, nil
		}
		if err := json.Unmarshal(payload, out); err != nil {
			return false, fmt.Errorf("decode ledger response: %w", err)
		}
		return false, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, domain.ErrEntryNotFound
	case resp.StatusCode >= 500:
		return true, fmt.Errorf("ledger returned status %d", resp.StatusCode)
	default:
		return false, fmt.Errorf("ledger returned status %d", resp.StatusCode)
	}
}

func entryFromResponse(resp entryResponse) (*domain.LedgerEntry, error) {
	hash, err := hex.DecodeString(resp.Hash)
	if err != nil {
		return nil, fmt.Errorf("decode entry hash: %w", err)
	}
	var data []byte
	if resp.Data != "" {
		data, err = base64.StdEncoding.DecodeString(resp.Data)
		if err != nil {
			return nil, fmt.Errorf("decode entry data: %w", err)
		}
	}
	return &domain.LedgerEntry{
		ID:        resp.EntryID,
		Index:     resp.Index,
		Hash:      hash,
		Data:      data,
		Timestamp: resp.Timestamp,
	}, nil
}

func decodeHexPath(path []string) ([][]byte, error) {
	out := make([][]byte, 0, len(path))
	for i, raw := range path {
		decoded, err := hex.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("decode path element %d: %w", i, err)
		}
		out = append(out, decoded)
	}
	return out, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
