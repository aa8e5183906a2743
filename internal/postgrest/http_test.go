package postgrest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sqlrest/internal/ir"
)

type capturedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   string
}

func newTestServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*HTTPClient, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		*captured = capturedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Header: r.Header.Clone(),
			Body:   string(body),
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := NewHTTPClient(HTTPConfig{URL: srv.URL + "/rest/v1/", APIKey: "secret", Schema: "crm"})
	require.NoError(t, err)
	return client, captured
}

func TestNewHTTPClient_FailsFast(t *testing.T) {
	_, err := NewHTTPClient(HTTPConfig{APIKey: "k"})
	assert.ErrorContains(t, err, "URL is required")

	_, err = NewHTTPClient(HTTPConfig{URL: "http://localhost:3000"})
	assert.ErrorContains(t, err, "API key is required")

	_, err = NewHTTPClient(HTTPConfig{URL: "ftp://localhost", APIKey: "k"})
	assert.ErrorContains(t, err, "scheme")
}

func TestHTTPClient_Select(t *testing.T) {
	client, got := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":1,"name":"Ann","score":12.50}]`))
	})

	req := From("leads").Select().Eq(Column("status"), ir.String("new")).Range(0, 9).Request()
	resp, err := client.Execute(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, http.MethodGet, got.Method)
	assert.Equal(t, "/rest/v1/leads", got.Path)
	assert.Equal(t, "select=%2A&status=eq.new", got.Query)
	assert.Equal(t, "secret", got.Header.Get("apikey"))
	assert.Equal(t, "Bearer secret", got.Header.Get("Authorization"))
	assert.Equal(t, "crm", got.Header.Get("Accept-Profile"))
	assert.Equal(t, "0-9", got.Header.Get("Range"))
	assert.Equal(t, "items", got.Header.Get("Range-Unit"))

	require.Len(t, resp.Rows, 1)
	assert.Equal(t, json.Number("1"), resp.Rows[0]["id"])
	assert.Equal(t, json.Number("12.50"), resp.Rows[0]["score"])
	assert.Equal(t, "Ann", resp.Rows[0]["name"])
	assert.Nil(t, resp.Count)
}

func TestHTTPClient_Count(t *testing.T) {
	client, got := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Range", "0-24/3573")
		w.WriteHeader(http.StatusOK)
	})

	resp, err := client.Execute(context.Background(), From("leads").Count().Request())
	require.NoError(t, err)

	assert.Equal(t, http.MethodHead, got.Method)
	assert.Equal(t, "count=exact", got.Header.Get("Prefer"))
	require.NotNil(t, resp.Count)
	assert.Equal(t, int64(3573), *resp.Count)
}

func TestHTTPClient_Update(t *testing.T) {
	client, got := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":"lead-1","status":"won"}]`))
	})

	req := From("leads").
		Update(ir.Object{"status": ir.String("won")}).
		Eq(Column("id"), ir.String("lead-1")).
		Request()
	resp, err := client.Execute(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPatch, got.Method)
	assert.Equal(t, `{"status":"won"}`, got.Body)
	assert.Equal(t, "return=representation", got.Header.Get("Prefer"))
	assert.Equal(t, "crm", got.Header.Get("Content-Profile"))
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.Equal(t, int64(1), resp.Affected)
}

func TestHTTPClient_Insert(t *testing.T) {
	client, got := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`[{"id":10},{"id":11}]`))
	})

	req := From("activities").
		Insert(ir.Object{"kind": ir.String("call")}, ir.Object{"kind": ir.String("email")}).
		Returning("id").
		Request()
	resp, err := client.Execute(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, `[{"kind":"call"},{"kind":"email"}]`, got.Body)
	assert.Equal(t, "columns=kind&select=id", got.Query)
	assert.Equal(t, int64(2), resp.Affected)
	assert.Len(t, resp.Rows, 2)
}

func TestHTTPClient_Delete(t *testing.T) {
	client, got := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	resp, err := client.Execute(context.Background(), From("leads").Delete().Eq(Column("id"), ir.Int(9)).Request())
	require.NoError(t, err)

	assert.Equal(t, http.MethodDelete, got.Method)
	assert.Equal(t, "id=eq.9", got.Query)
	assert.Equal(t, int64(0), resp.Affected)
	assert.Empty(t, resp.Rows)
}

func TestHTTPClient_ErrorBody(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"PGRST204","message":"Could not find the 'lead_score' column of 'leads' in the schema cache","details":null,"hint":null}`))
	})

	_, err := client.Execute(context.Background(), From("leads").Update(ir.Object{"lead_score": ir.Int(1)}).Eq(Column("id"), ir.Int(1)).Request())
	require.Error(t, err)

	pe, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, "PGRST204", pe.Code)
	assert.Equal(t, http.StatusBadRequest, pe.Status)
	assert.Contains(t, pe.Message, "schema cache")
}

func TestHTTPClient_NonJSONError(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})

	_, err := client.Execute(context.Background(), From("leads").Request())
	pe, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, "HTTP502", pe.Code)
	assert.Equal(t, "upstream down", pe.Message)
}

func TestHTTPClient_ContextCanceled(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Execute(ctx, From("leads").Request())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseContentRange(t *testing.T) {
	n, err := parseContentRange("*/42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	_, err = parseContentRange("0-9/*")
	assert.Error(t, err)
	_, err = parseContentRange("")
	assert.Error(t, err)
}
