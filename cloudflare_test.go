package cfquorum

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/cloudflare/cloudflare-go"
	"github.com/rs/zerolog"
)

const (
	testZoneID   = "023e105f4ecef8ad9ca31a8372d0c353"
	testRecordID = "372e67954025e0ba6aaa6d586b9e0b59"
)

func recordJSON(content string) string {
	return fmt.Sprintf(`{
		"id": %q,
		"zone_id": %q,
		"zone_name": "example.com",
		"name": "home.example.com",
		"type": "A",
		"content": %q,
		"proxiable": true,
		"proxied": true,
		"ttl": 300,
		"locked": false,
		"created_on": "2023-01-01T00:00:00Z",
		"modified_on": "2023-01-01T00:00:00Z"
	}`, testRecordID, testZoneID, content)
}

// fakeCloudflare serves just enough of the v4 API for one fetch and one
// update of a single A record.
func fakeCloudflare(t *testing.T) (*cloudflareProvider, *updateCapture) {
	t.Helper()
	captured := &updateCapture{}

	mux := http.NewServeMux()
	mux.HandleFunc("/zones/"+testZoneID+"/dns_records", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"success":true,"errors":[],"messages":[],"result":[%s],"result_info":{"page":1,"per_page":100,"count":1,"total_count":1,"total_pages":1}}`, recordJSON("198.51.100.4"))
	})
	mux.HandleFunc("/zones/"+testZoneID+"/dns_records/"+testRecordID, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			http.Error(w, "unexpected method "+r.Method, http.StatusMethodNotAllowed)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured.params); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		captured.puts++
		fmt.Fprintf(w, `{"success":true,"errors":[],"messages":[],"result":%s}`, recordJSON(captured.params.Content))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	api, err := cloudflare.NewWithAPIToken("test-token", cloudflare.BaseURL(srv.URL))
	if err != nil {
		t.Fatalf("error creating api client: %s", err)
	}
	nop := zerolog.Nop()
	return &cloudflareProvider{api: api, zone: CloudflareZone{ID: testZoneID}, logger: &nop}, captured
}

type updateCapture struct {
	puts   int
	params struct {
		Type    string `json:"type"`
		Name    string `json:"name"`
		Content string `json:"content"`
		TTL     int    `json:"ttl"`
		Proxied *bool  `json:"proxied"`
	}
}

func TestCloudflareCurrentRecord(t *testing.T) {
	cf, _ := fakeCloudflare(t)
	rec, err := cf.CurrentRecord(context.Background(), "home.example.com")
	if err != nil {
		t.Fatalf("CurrentRecord failed: %s", err)
	}
	if rec.ID != testRecordID {
		t.Fatalf("Expected record ID %q; got %q", testRecordID, rec.ID)
	}
	if expected := netip.MustParseAddr("198.51.100.4"); rec.Addr != expected {
		t.Fatalf("Expected %q; got %q", expected, rec.Addr)
	}
	if rec.TTL != 300 {
		t.Fatalf("Expected TTL 300; got %d", rec.TTL)
	}
	if rec.Proxied == nil || !*rec.Proxied {
		t.Fatalf("Expected the proxied flag to be set; got %v", rec.Proxied)
	}
}

func TestCloudflareUpdateRecord(t *testing.T) {
	cf, captured := fakeCloudflare(t)
	rec, err := cf.CurrentRecord(context.Background(), "home.example.com")
	if err != nil {
		t.Fatalf("CurrentRecord failed: %s", err)
	}

	resolved := netip.MustParseAddr("203.0.113.7")
	updated, err := cf.UpdateRecord(context.Background(), rec, resolved)
	if err != nil {
		t.Fatalf("UpdateRecord failed: %s", err)
	}
	if captured.puts != 1 {
		t.Fatalf("Expected exactly 1 update request; got %d", captured.puts)
	}
	if captured.params.Content != "203.0.113.7" {
		t.Fatalf("Expected the new address on the wire; got %q", captured.params.Content)
	}
	// TTL and proxied must go out exactly as fetched.
	if captured.params.TTL != 300 {
		t.Fatalf("Expected TTL 300 on the wire; got %d", captured.params.TTL)
	}
	if captured.params.Proxied == nil || !*captured.params.Proxied {
		t.Fatalf("Expected the proxied flag on the wire; got %v", captured.params.Proxied)
	}
	if updated.Addr != resolved {
		t.Fatalf("Expected the returned snapshot to point at %q; got %q", resolved, updated.Addr)
	}
	if updated.ID != testRecordID || updated.TTL != 300 {
		t.Fatalf("Expected the returned snapshot to keep ID and TTL; got %+v", updated)
	}
}
