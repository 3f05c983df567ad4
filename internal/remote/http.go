package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/cyclecount/internal/catalog"
	"github.com/roach88/cyclecount/internal/quantity"
)

// Encoding selects how POST bodies are encoded.
type Encoding string

const (
	EncodingJSON Encoding = "json"
	EncodingForm Encoding = "form"
)

// maxBodyBytes caps how much of a response is read.
const maxBodyBytes = 8 << 20

// HTTPClient implements Client over HTTP.
type HTTPClient struct {
	baseURL  string
	http     *http.Client
	encoding Encoding
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) {
		h.http = c
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(h *HTTPClient) {
		h.http.Timeout = d
	}
}

// WithEncoding selects JSON or form-encoded POST bodies.
func WithEncoding(e Encoding) Option {
	return func(h *HTTPClient) {
		h.encoding = e
	}
}

// NewHTTPClient creates a client for the store at baseURL.
func NewHTTPClient(baseURL string, opts ...Option) *HTTPClient {
	h := &HTTPClient{
		baseURL:  baseURL,
		http:     &http.Client{Timeout: 20 * time.Second},
		encoding: EncodingJSON,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// envelope covers every response shape the store sends.
type envelope struct {
	OK      *bool        `json:"ok"`
	Error   string       `json:"error"`
	NewQty  *json.Number `json:"newQty"`
	Updated *json.Number `json:"updated"`
	Items   []wireItem   `json:"items"`
}

// wireItem tolerates spreadsheet cells that arrive as strings or numbers.
type wireItem struct {
	ProductTitle any `json:"productTitle"`
	ImageURL     any `json:"imageUrl"`
	CasesQty     any `json:"casesQty"`
	Location     any `json:"location"`
}

// Catalog fetches the current product snapshot.
func (h *HTTPClient) Catalog(ctx context.Context) ([]catalog.Product, error) {
	const op = "catalog"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL, nil)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	body, err := h.do(op, req)
	if err != nil {
		return nil, err
	}

	items, err := decodeCatalog(body)
	if err != nil {
		return nil, err
	}

	products := make([]catalog.Product, 0, len(items))
	for _, it := range items {
		p := catalog.Product{
			Title:       catalog.NormalizeTitle(cellString(it.ProductTitle)),
			ImageURL:    strings.TrimSpace(cellString(it.ImageURL)),
			ExpectedQty: quantity.ClampNonNegative(cellNumber(it.CasesQty)),
			Location:    strings.TrimSpace(cellString(it.Location)),
		}
		if p.Title == "" {
			continue
		}
		products = append(products, p)
	}
	slog.Debug("catalog fetched", "items", len(products))
	return products, nil
}

// Save writes one product's count.
func (h *HTTPClient) Save(ctx context.Context, title string, cases int64) (SaveResult, error) {
	const op = "save"

	fields := map[string]string{
		"productTitle": title,
		"casesQty":     strconv.FormatInt(cases, 10),
	}
	jsonBody := struct {
		ProductTitle string `json:"productTitle"`
		CasesQty     int64  `json:"casesQty"`
	}{title, cases}

	env, err := h.post(ctx, op, jsonBody, fields)
	if err != nil {
		return SaveResult{}, err
	}

	var result SaveResult
	newQty := ""
	if env.NewQty != nil {
		newQty = env.NewQty.String()
		qty, err := decimal.NewFromString(env.NewQty.String())
		if err != nil {
			return SaveResult{}, &LogicalError{Op: op, Message: fmt.Sprintf("bad newQty %q", env.NewQty.String())}
		}
		result.NewQty = &qty
	}
	slog.Debug("save acknowledged", "title", title, "cases", cases, "new_qty", newQty)
	return result, nil
}

// Commit submits a batch.
func (h *HTTPClient) Commit(ctx context.Context, batch Batch) (CommitResult, error) {
	const op = "commit"

	items := batch.Items
	if items == nil {
		items = []BatchItem{}
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return CommitResult{}, fmt.Errorf("%s: encode payload: %w", op, err)
	}
	createdAt := batch.CreatedAt.UTC().Format(time.RFC3339Nano)

	fields := map[string]string{
		"action":    "batch",
		"payload":   string(payload),
		"sessionId": batch.SessionID,
		"createdAt": createdAt,
	}

	env, err := h.post(ctx, op, fields, fields)
	if err != nil {
		return CommitResult{}, err
	}

	var result CommitResult
	if env.Updated != nil {
		n, err := env.Updated.Int64()
		if err != nil {
			return CommitResult{}, &LogicalError{Op: op, Message: fmt.Sprintf("bad updated %q", env.Updated.String())}
		}
		result.Updated = int(n)
	}
	slog.Info("batch committed", "session", batch.SessionID, "items", len(items), "updated", result.Updated)
	return result, nil
}

// post sends either jsonBody or form fields depending on the encoding and
// decodes the envelope, turning ok:false into a *LogicalError.
func (h *HTTPClient) post(ctx context.Context, op string, jsonBody any, form map[string]string) (envelope, error) {
	var (
		body        io.Reader
		contentType string
	)
	switch h.encoding {
	case EncodingForm:
		values := url.Values{}
		for k, v := range form {
			values.Set(k, v)
		}
		body = strings.NewReader(values.Encode())
		contentType = "application/x-www-form-urlencoded"
	default:
		data, err := json.Marshal(jsonBody)
		if err != nil {
			return envelope{}, fmt.Errorf("%s: encode body: %w", op, err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL, body)
	if err != nil {
		return envelope{}, &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", contentType)

	raw, err := h.do(op, req)
	if err != nil {
		return envelope{}, err
	}

	var env envelope
	if err := decodeJSON(raw, &env); err != nil {
		return envelope{}, &LogicalError{Op: op, Message: "bad response format"}
	}
	if env.OK != nil && !*env.OK {
		return envelope{}, &LogicalError{Op: op, Message: failureMessage(env.Error, op)}
	}
	return env, nil
}

func (h *HTTPClient) do(op string, req *http.Request) ([]byte, error) {
	resp, err := h.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &TransportError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        errors.New(strings.TrimSpace(string(data))),
		}
	}
	return data, nil
}

func decodeCatalog(body []byte) ([]wireItem, error) {
	const op = "catalog"

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []wireItem
		if err := decodeJSON(trimmed, &items); err != nil {
			return nil, &LogicalError{Op: op, Message: "bad response format"}
		}
		return items, nil
	}

	var env envelope
	if err := decodeJSON(trimmed, &env); err != nil {
		return nil, &LogicalError{Op: op, Message: "bad response format"}
	}
	if env.OK != nil && !*env.OK {
		return nil, &LogicalError{Op: op, Message: failureMessage(env.Error, op)}
	}
	if env.Items == nil {
		return nil, &LogicalError{Op: op, Message: "bad response format"}
	}
	return env.Items, nil
}

func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func failureMessage(msg, op string) string {
	if msg != "" {
		return msg
	}
	return "backend returned ok:false on " + op
}

func cellString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// cellNumber reads a numeric cell; anything unreadable counts as zero.
func cellNumber(v any) decimal.Decimal {
	var s string
	switch val := v.(type) {
	case json.Number:
		s = val.String()
	case string:
		s = strings.TrimSpace(val)
	default:
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
