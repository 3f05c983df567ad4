package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/roach88/cyclecount/internal/remote"
)

// NewInventoryServer serves inv over the web app protocol the HTTP client
// speaks. The server is closed when the test ends.
func NewInventoryServer(t *testing.T, inv *FakeInventory) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(InventoryHandler(inv))
	t.Cleanup(srv.Close)
	return srv
}

// InventoryHandler answers catalog GETs and save or batch POSTs from inv.
// Logical failures are reported as {"ok": false} with status 200, as the
// deployed store does.
func InventoryHandler(inv *FakeInventory) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			serveCatalog(w, r, inv)
		case http.MethodPost:
			fields, err := readFields(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if fields["action"] == "batch" {
				serveBatch(w, r, inv, fields)
				return
			}
			serveSave(w, r, inv, fields)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}

func serveCatalog(w http.ResponseWriter, r *http.Request, inv *FakeInventory) {
	products, err := inv.Catalog(r.Context())
	if err != nil {
		writeJSON(w, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	items := make([]map[string]any, 0, len(products))
	for _, p := range products {
		items = append(items, map[string]any{
			"productTitle": p.Title,
			"imageUrl":     p.ImageURL,
			"casesQty":     json.Number(p.ExpectedQty.String()),
			"location":     p.Location,
		})
	}
	writeJSON(w, map[string]any{"items": items})
}

func serveSave(w http.ResponseWriter, r *http.Request, inv *FakeInventory, fields map[string]string) {
	cases, err := strconv.ParseInt(fields["casesQty"], 10, 64)
	if err != nil {
		writeJSON(w, map[string]any{"ok": false, "error": "bad casesQty"})
		return
	}
	res, err := inv.Save(r.Context(), fields["productTitle"], cases)
	if err != nil {
		writeJSON(w, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, map[string]any{"ok": true, "newQty": json.Number(res.Confirmed(cases).String())})
}

func serveBatch(w http.ResponseWriter, r *http.Request, inv *FakeInventory, fields map[string]string) {
	var items []remote.BatchItem
	if err := json.Unmarshal([]byte(fields["payload"]), &items); err != nil {
		writeJSON(w, map[string]any{"ok": false, "error": "bad payload"})
		return
	}
	createdAt, err := time.Parse(time.RFC3339Nano, fields["createdAt"])
	if err != nil {
		writeJSON(w, map[string]any{"ok": false, "error": "bad createdAt"})
		return
	}
	res, err := inv.Commit(r.Context(), remote.Batch{
		SessionID: fields["sessionId"],
		CreatedAt: createdAt,
		Items:     items,
	})
	if err != nil {
		writeJSON(w, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, map[string]any{"ok": true, "updated": res.Updated})
}

// readFields flattens a form or JSON body into strings.
func readFields(r *http.Request) (map[string]string, error) {
	fields := make(map[string]string)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
		for k := range r.PostForm {
			fields[k] = r.PostForm.Get(k)
		}
		return fields, nil
	}

	var body map[string]any
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	for k, v := range body {
		fields[k] = fmt.Sprint(v)
	}
	return fields, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	// the deployed store answers with text/plain
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write(buf.Bytes())
}
