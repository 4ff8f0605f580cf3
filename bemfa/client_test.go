package bemfa

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type recordedRequest struct {
	path string
	body map[string]any
}

// newTestClient points both API hosts at one httptest server.
func newTestClient(srv *httptest.Server) *Client {
	return &Client{
		http:    &http.Client{Timeout: 5 * time.Second},
		apiBase: srv.URL,
		proBase: srv.URL,
	}
}

func TestAllTopics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/va/alltopic" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("uid") != "key123" || r.URL.Query().Get("type") != "1" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"code": 0,
			"data": []map[string]string{
				{"topic": "vto001", "name": "Front Door"},
				{"topic": "vto002", "name": "Back Door"},
			},
		})
	}))
	defer srv.Close()

	topics, err := newTestClient(srv).AllTopics(context.Background(), "key123")
	if err != nil {
		t.Fatal(err)
	}
	if len(topics) != 2 || topics[0].Topic != "vto001" || topics[0].Name != "Front Door" {
		t.Errorf("unexpected topics: %+v", topics)
	}
}

func TestCreateTopicToleratesExisting(t *testing.T) {
	var got recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&got.body)
		// Topic already registered.
		json.NewEncoder(w).Encode(map[string]any{"code": 40006, "message": "topic exists"})
	}))
	defer srv.Close()

	err := newTestClient(srv).CreateTopic(context.Background(), "key123", "vto001", "Front Door")
	if err != nil {
		t.Fatalf("existing topic reported as error: %v", err)
	}
	if got.path != "/v1/createTopic" {
		t.Errorf("unexpected path %s", got.path)
	}
	if got.body["topic"] != "vto001" || got.body["name"] != "Front Door" {
		t.Errorf("unexpected body: %v", got.body)
	}
}

func TestSendStatusMessage(t *testing.T) {
	var got recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&got.body)
		json.NewEncoder(w).Encode(map[string]any{"code": 0})
	}))
	defer srv.Close()

	err := newTestClient(srv).SendStatusMessage(context.Background(), "key123", "vto001", "off", "door closed")
	if err != nil {
		t.Fatal(err)
	}
	if got.path != "/va/postJsonMsg" {
		t.Errorf("unexpected path %s", got.path)
	}
	if got.body["msg"] != "off" || got.body["wemsg"] != "door closed" {
		t.Errorf("unexpected body: %v", got.body)
	}
}

func TestAPIErrorSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"code": 40001, "message": "bad uid"})
	}))
	defer srv.Close()

	client := newTestClient(srv)
	if err := client.DeleteTopic(context.Background(), "bad", "vto001"); err == nil {
		t.Error("api error code not surfaced for delete")
	}
	if _, err := client.AllTopics(context.Background(), "bad"); err == nil {
		t.Error("api error code not surfaced for list")
	}
}

func TestTransportErrorSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	if err := newTestClient(srv).ModifyTopicName(context.Background(), "key", "vto001", "x"); err == nil {
		t.Error("unreachable api not surfaced")
	}
}
