package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func respond(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// the deployed backend answers with text/plain
		w.Header().Set("Content-Type", "text/plain")
		io.WriteString(w, body)
	}
}

func TestCatalog_BareArray(t *testing.T) {
	srv := serve(t, respond(`[
		{"productTitle":" Soda 12pk ","imageUrl":"http://img/soda.png","casesQty":4,"location":"Aisle 3"},
		{"productTitle":"","casesQty":9},
		{"productTitle":"Chips","casesQty":"7"},
		{"productTitle":"Water","casesQty":"lots"},
		{"productTitle":"Ice","casesQty":-3}
	]`))

	products, err := NewHTTPClient(srv.URL).Catalog(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 4)

	assert.Equal(t, "Soda 12pk", products[0].Title)
	assert.Equal(t, "http://img/soda.png", products[0].ImageURL)
	assert.Equal(t, "Aisle 3", products[0].Location)
	assert.True(t, decimal.NewFromInt(4).Equal(products[0].ExpectedQty))

	assert.True(t, decimal.NewFromInt(7).Equal(products[1].ExpectedQty), "string cells are numbers too")
	assert.True(t, products[2].ExpectedQty.IsZero(), "unreadable quantity becomes zero")
	assert.True(t, products[3].ExpectedQty.IsZero(), "negative quantity clamps to zero")
}

func TestCatalog_ItemsEnvelope(t *testing.T) {
	srv := serve(t, respond(`{"ok":true,"items":[{"productTitle":"Soda 12pk","casesQty":4}]}`))

	products, err := NewHTTPClient(srv.URL).Catalog(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Soda 12pk", products[0].Title)
}

func TestCatalog_LogicalFailure(t *testing.T) {
	srv := serve(t, respond(`{"ok":false,"error":"sheet locked"}`))

	_, err := NewHTTPClient(srv.URL).Catalog(context.Background())
	require.Error(t, err)
	assert.True(t, IsLogicalError(err))
	assert.Contains(t, err.Error(), "sheet locked")
}

func TestCatalog_BadFormat(t *testing.T) {
	for name, body := range map[string]string{
		"no items": `{"ok":true}`,
		"garbage":  `<html>oops</html>`,
		"empty":    ``,
	} {
		t.Run(name, func(t *testing.T) {
			srv := serve(t, respond(body))
			_, err := NewHTTPClient(srv.URL).Catalog(context.Background())
			assert.True(t, IsLogicalError(err), "got %v", err)
		})
	}
}

func TestCatalog_HTTPStatusIsTransportError(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	_, err := NewHTTPClient(srv.URL).Catalog(context.Background())
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusBadGateway, te.StatusCode)
}

func TestCatalog_Timeout(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	})

	_, err := NewHTTPClient(srv.URL, WithTimeout(20*time.Millisecond)).Catalog(context.Background())
	assert.True(t, IsTransportError(err))
}

func TestSave_JSONBodyAndNewQty(t *testing.T) {
	var got map[string]any
	var contentType string
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		contentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		io.WriteString(w, `{"ok":true,"newQty":5}`)
	})

	res, err := NewHTTPClient(srv.URL).Save(context.Background(), "Soda 12pk", 6)
	require.NoError(t, err)

	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, "Soda 12pk", got["productTitle"])
	assert.Equal(t, float64(6), got["casesQty"])

	require.NotNil(t, res.NewQty)
	assert.True(t, decimal.NewFromInt(5).Equal(res.Confirmed(6)), "server value overrides request")
}

func TestSave_FormBody(t *testing.T) {
	var form url.Values
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		io.WriteString(w, `{"ok":true}`)
	})

	res, err := NewHTTPClient(srv.URL, WithEncoding(EncodingForm)).Save(context.Background(), "Soda 12pk", 6)
	require.NoError(t, err)

	assert.Equal(t, "Soda 12pk", form.Get("productTitle"))
	assert.Equal(t, "6", form.Get("casesQty"))
	assert.Nil(t, res.NewQty)
	assert.True(t, decimal.NewFromInt(6).Equal(res.Confirmed(6)))
}

func TestSave_OkFalse(t *testing.T) {
	srv := serve(t, respond(`{"ok":false,"error":"Title not found"}`))

	_, err := NewHTTPClient(srv.URL).Save(context.Background(), "Ghost", 1)
	require.Error(t, err)
	assert.True(t, IsLogicalError(err))
	assert.Contains(t, err.Error(), "Title not found")
}

func TestSave_OkFalseWithoutMessage(t *testing.T) {
	srv := serve(t, respond(`{"ok":false}`))

	_, err := NewHTTPClient(srv.URL).Save(context.Background(), "Ghost", 1)
	assert.EqualError(t, err, "save: backend returned ok:false on save")
}

func TestSave_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(respond(`{}`))
	srv.Close()

	_, err := NewHTTPClient(srv.URL).Save(context.Background(), "Soda 12pk", 1)
	assert.True(t, IsTransportError(err))
}

func TestCommit_WireFormat(t *testing.T) {
	var got map[string]string
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		io.WriteString(w, `{"ok":true,"updated":2}`)
	})

	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	res, err := NewHTTPClient(srv.URL).Commit(context.Background(), Batch{
		SessionID: "s-1",
		CreatedAt: created,
		Items: []BatchItem{
			{ProductTitle: "Chips", CasesQty: 3},
			{ProductTitle: "Soda 12pk", CasesQty: 6},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Updated)

	assert.Equal(t, "batch", got["action"])
	assert.Equal(t, "s-1", got["sessionId"])
	assert.Equal(t, "2026-03-01T09:00:00Z", got["createdAt"])
	assert.JSONEq(t, `[{"productTitle":"Chips","casesQty":3},{"productTitle":"Soda 12pk","casesQty":6}]`, got["payload"])
}

func TestCommit_FormWireFormat(t *testing.T) {
	var form url.Values
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		io.WriteString(w, `{"ok":true,"updated":1}`)
	})

	_, err := NewHTTPClient(srv.URL, WithEncoding(EncodingForm)).Commit(context.Background(), Batch{
		SessionID: "s-1",
		Items:     []BatchItem{{ProductTitle: "Soda 12pk", CasesQty: 6}},
	})
	require.NoError(t, err)
	assert.Equal(t, "batch", form.Get("action"))
	assert.JSONEq(t, `[{"productTitle":"Soda 12pk","casesQty":6}]`, form.Get("payload"))
}

func TestCommit_OkFalse(t *testing.T) {
	srv := serve(t, respond(`{"ok":false,"error":"quota"}`))

	_, err := NewHTTPClient(srv.URL).Commit(context.Background(), Batch{SessionID: "s-1"})
	assert.True(t, IsLogicalError(err))
}
