package sheetsclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRows(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("expected GET, got %s", r.Method)
		}
		if got := r.URL.Query().Get("sheet"); got != "Transactions" {
			t.Fatalf("expected sheet=Transactions, got %q", got)
		}
		if got := r.Header.Get("x-api-key"); got != "secret" {
			t.Fatalf("expected api key header, got %q", got)
		}
		json.NewEncoder(w).Encode(RowsResponse{
			Rows:        []Row{{"Reference": "INV-001"}},
			RowCount:    1,
			ColumnCount: 9,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret")
	resp, err := client.Rows(context.Background(), "Transactions")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Rows) != 1 || resp.Rows[0]["Reference"] != "INV-001" {
		t.Fatalf("unexpected rows: %v", resp.Rows)
	}
	if resp.RowCount != 1 || resp.ColumnCount != 9 {
		t.Fatalf("unexpected counts: %d/%d", resp.RowCount, resp.ColumnCount)
	}
}

func TestAppendSendsRowBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", r.Method)
		}
		var body map[string]Row
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		if body["row"]["Reference"] != "INV-001" {
			t.Fatalf("unexpected body: %v", body)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(AppendResponse{Row: body["row"]})
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret")
	resp, err := client.Append(context.Background(), "Transactions", Row{"Reference": "INV-001"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Row["Reference"] != "INV-001" {
		t.Fatalf("unexpected appended row: %v", resp.Row)
	}
}

func TestUpdateTargetsColumnAndValue(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Fatalf("expected PATCH, got %s", r.Method)
		}
		if r.URL.Path != "/v1/rows/Reference/INV-001" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(UpdateResponse{Updated: 1})
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret")
	resp, err := client.Update(context.Background(), "Orders", "Reference", "INV-001", Row{"Status": "Paid"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Updated != 1 {
		t.Fatalf("expected 1 updated row, got %d", resp.Updated)
	}
}

func TestErrorResponseIsTyped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid api key"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "wrong")
	_, err := client.Rows(context.Background(), "Transactions")

	var apiErr *ErrorResponse
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected ErrorResponse, got %v", err)
	}
	if apiErr.Status != http.StatusForbidden || apiErr.Message != "invalid api key" {
		t.Fatalf("unexpected error fields: %+v", apiErr)
	}
}
