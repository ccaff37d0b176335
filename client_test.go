package cfquorum_test

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/wfallows/cfquorum"
)

func TestNewRequiresRecord(t *testing.T) {
	_, err := cfquorum.New("", cfquorum.UsingProvider(&fakeProvider{}))
	if err == nil {
		t.Fatalf("Expected an error for an empty record name; got err == nil")
	}
}

func TestNewRequiresProvider(t *testing.T) {
	_, err := cfquorum.New("home.example.com")
	if err == nil {
		t.Fatalf("Expected an error when no provider is registered; got err == nil")
	}
}

func TestWithTimeoutRejectsZero(t *testing.T) {
	_, err := cfquorum.New("home.example.com",
		cfquorum.UsingProvider(&fakeProvider{}),
		cfquorum.WithTimeout(0),
	)
	if err == nil {
		t.Fatalf("Expected an error for a zero timeout; got err == nil")
	}
}

func TestClientRun(t *testing.T) {
	srv := ipServer(t, "203.0.113.7\n")
	f := &fakeProvider{rec: testRecord("198.51.100.4")}
	client, err := cfquorum.New("home.example.com",
		cfquorum.UsingProvider(f),
		cfquorum.UsingSources(srv.URL),
		cfquorum.WithTimeout(5*time.Second),
	)
	if err != nil {
		t.Fatalf("New failed: %s", err)
	}

	action, err := client.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %s", err)
	}
	if action != cfquorum.ActionUpdated {
		t.Fatalf("Expected %q; got %q", cfquorum.ActionUpdated, action)
	}

	// No network change between runs: the second pass must be a no-op.
	action, err = client.Run(context.Background())
	if err != nil {
		t.Fatalf("Second run failed: %s", err)
	}
	if action != cfquorum.ActionNoOp {
		t.Fatalf("Expected %q; got %q", cfquorum.ActionNoOp, action)
	}
	if f.updates != 1 {
		t.Fatalf("Expected exactly 1 write; got %d", f.updates)
	}
}

func TestClientRunQuorumDryRun(t *testing.T) {
	a1 := ipServer(t, "203.0.113.7")
	a2 := ipServer(t, "203.0.113.7")
	b := ipServer(t, "198.51.100.4")
	f := &fakeProvider{rec: testRecord("198.51.100.4")}

	client, err := cfquorum.New("home.example.com",
		cfquorum.UsingProvider(f),
		cfquorum.UsingSources(a1.URL, a2.URL, b.URL),
		cfquorum.WithTimeout(5*time.Second),
		cfquorum.InQuorumMode(),
		cfquorum.DryRun(),
	)
	if err != nil {
		t.Fatalf("New failed: %s", err)
	}
	// {A: 2, B: 1} out of 3: 2 >= floor(3*2/3) = 2, so A wins and differs
	// from the published record.
	action, err := client.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %s", err)
	}
	if action != cfquorum.ActionWouldUpdate {
		t.Fatalf("Expected %q; got %q", cfquorum.ActionWouldUpdate, action)
	}
	if f.updates != 0 {
		t.Fatalf("Expected 0 writes in dry-run; got %d", f.updates)
	}
}

func TestClientResolveIP(t *testing.T) {
	srv := ipServer(t, "203.0.113.7")
	client, err := cfquorum.New("home.example.com",
		cfquorum.UsingProvider(&fakeProvider{}),
		cfquorum.UsingSources(srv.URL),
	)
	if err != nil {
		t.Fatalf("New failed: %s", err)
	}
	addr, err := client.ResolveIP(context.Background())
	if err != nil {
		t.Fatalf("ResolveIP failed: %s", err)
	}
	if expected := netip.MustParseAddr("203.0.113.7"); addr != expected {
		t.Fatalf("Expected %q; got %q", expected, addr)
	}
}
