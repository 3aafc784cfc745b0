package graph

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestHTTPClient_CreateSubscription(t *testing.T) {
	var gotAuth string
	var gotBody Subscription

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/subscriptions" {
			t.Errorf("got %s %s, want POST /subscriptions", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)

		created := gotBody
		created.ID = "ext-sub-1"
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(created)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "token-abc", nil, testLogger())

	expires := time.Now().Add(71 * time.Hour).UTC().Truncate(time.Second)
	created, err := client.CreateSubscription(context.Background(), Subscription{
		Resource:           "/users/ops@example.com/mailFolders('inbox')/messages",
		ChangeType:         "created",
		NotificationURL:    "https://bridge.example.com/webhooks/notifications",
		ExpirationDateTime: expires,
		ClientState:        "secret1",
	})
	if err != nil {
		t.Fatalf("CreateSubscription: %v", err)
	}

	if created.ID != "ext-sub-1" {
		t.Errorf("ID = %q, want %q", created.ID, "ext-sub-1")
	}
	if gotAuth != "Bearer token-abc" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotBody.ClientState != "secret1" {
		t.Errorf("clientState = %q, want %q", gotBody.ClientState, "secret1")
	}
	if !gotBody.ExpirationDateTime.Equal(expires) {
		t.Errorf("expirationDateTime = %v, want %v", gotBody.ExpirationDateTime, expires)
	}
}

func TestHTTPClient_RenewSubscription(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/subscriptions/ext-sub-1" {
			t.Errorf("got %s %s, want PATCH /subscriptions/ext-sub-1", r.Method, r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["expirationDateTime"] == "" {
			t.Error("missing expirationDateTime in renew body")
		}

		json.NewEncoder(w).Encode(Subscription{
			ID:                 "ext-sub-1",
			ExpirationDateTime: time.Now().Add(71 * time.Hour).UTC(),
		})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "token-abc", nil, testLogger())

	renewed, err := client.RenewSubscription(context.Background(), "ext-sub-1", time.Now().Add(71*time.Hour))
	if err != nil {
		t.Fatalf("RenewSubscription: %v", err)
	}
	if renewed.ID != "ext-sub-1" {
		t.Errorf("ID = %q", renewed.ID)
	}
}

func TestHTTPClient_RenewNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "token-abc", nil, testLogger())

	_, err := client.RenewSubscription(context.Background(), "gone", time.Now().Add(time.Hour))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if IsTransient(err) {
		t.Error("not-found classified as transient")
	}
}

func TestHTTPClient_DeleteSubscription(t *testing.T) {
	var called bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if r.Method != http.MethodDelete || r.URL.Path != "/subscriptions/ext-sub-1" {
			t.Errorf("got %s %s, want DELETE /subscriptions/ext-sub-1", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "token-abc", nil, testLogger())

	if err := client.DeleteSubscription(context.Background(), "ext-sub-1"); err != nil {
		t.Fatalf("DeleteSubscription: %v", err)
	}
	if !called {
		t.Error("delete endpoint not called")
	}
}

func TestHTTPClient_GetMessage(t *testing.T) {
	received := time.Date(2026, 8, 20, 9, 30, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/ops@example.com/messages/msg-42" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":               "msg-42",
			"subject":          "Quarterly report",
			"bodyPreview":      "Please find attached",
			"receivedDateTime": received.Format(time.RFC3339),
			"hasAttachments":   true,
			"from": map[string]interface{}{
				"emailAddress": map[string]string{
					"name":    "Jordan Lee",
					"address": "jordan@example.com",
				},
			},
		})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "token-abc", nil, testLogger())

	msg, err := client.GetMessage(context.Background(), "ops@example.com", "msg-42")
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if msg.ID != "msg-42" {
		t.Errorf("ID = %q", msg.ID)
	}
	if msg.Subject != "Quarterly report" {
		t.Errorf("Subject = %q", msg.Subject)
	}
	if !msg.ReceivedDateTime.Equal(received) {
		t.Errorf("ReceivedDateTime = %v, want %v", msg.ReceivedDateTime, received)
	}
	if !msg.HasAttachments {
		t.Error("HasAttachments = false")
	}
	if msg.Sender() != "jordan@example.com" {
		t.Errorf("Sender() = %q", msg.Sender())
	}
}

func TestHTTPClient_ListMessagesSince(t *testing.T) {
	since := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		filter := r.URL.Query().Get("$filter")
		if filter != "receivedDateTime gt 2026-08-20T00:00:00Z" {
			t.Errorf("$filter = %q", filter)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"value": []map[string]interface{}{
				{"id": "msg-1", "receivedDateTime": "2026-08-20T08:00:00Z"},
				{"id": "msg-2", "receivedDateTime": "2026-08-20T09:00:00Z"},
			},
		})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "token-abc", nil, testLogger())

	msgs, err := client.ListMessagesSince(context.Background(), "ops@example.com", since)
	if err != nil {
		t.Fatalf("ListMessagesSince: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].ID != "msg-1" || msgs[1].ID != "msg-2" {
		t.Errorf("unexpected ids: %s, %s", msgs[0].ID, msgs[1].ID)
	}
}

func TestHTTPClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
	}{
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusInternalServerError, true},
		{"bad gateway", http.StatusBadGateway, true},
		{"bad request", http.StatusBadRequest, false},
		{"forbidden", http.StatusForbidden, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			client := NewHTTPClient(server.URL, "token-abc", nil, testLogger())

			_, err := client.GetMessage(context.Background(), "ops@example.com", "msg-1")
			if err == nil {
				t.Fatal("expected error")
			}
			if IsTransient(err) != tt.transient {
				t.Errorf("IsTransient(%v) = %v, want %v", err, !tt.transient, tt.transient)
			}
		})
	}
}
