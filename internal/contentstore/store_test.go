package contentstore

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	id, err := store.Put(ctx, []byte("course metadata"), "meta.json")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := ValidateContentID(id); err != nil {
		t.Fatalf("derived id %q is not a valid content id: %v", id, err)
	}

	// Identical bytes derive the identical id.
	again, err := store.Put(ctx, []byte("course metadata"), "other-name")
	if err != nil {
		t.Fatalf("put again: %v", err)
	}
	if again != id {
		t.Fatalf("ids differ for identical content: %s vs %s", again, id)
	}

	data, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(data) != "course metadata" {
		t.Fatalf("got %q", data)
	}

	store.Forget(id)
	if _, err := store.Get(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after forget, got %v", err)
	}
}

func TestValidateContentID(t *testing.T) {
	if err := ValidateContentID("QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"); err != nil {
		t.Errorf("v0 cid rejected: %v", err)
	}
	for _, bad := range []string{"", "not-a-cid", "Qm123"} {
		if err := ValidateContentID(bad); err == nil {
			t.Errorf("ValidateContentID(%q) expected error", bad)
		}
	}
}

func TestPinataStorePut(t *testing.T) {
	const pinnedCID = "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pinning/pinFileToIPFS" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("pinata_api_key") != "key" || r.Header.Get("pinata_secret_api_key") != "secret" {
			t.Error("missing pinning credentials")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"IpfsHash":"` + pinnedCID + `","PinSize":11,"Timestamp":"2026-01-01T00:00:00Z"}`))
	}))
	defer server.Close()

	store, err := NewPinataStore(PinataConfig{
		APIURL:     server.URL,
		GatewayURL: server.URL,
		APIKey:     "key",
		SecretKey:  "secret",
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	id, err := store.Put(context.Background(), []byte("video-bytes"), "intro.mp4")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if id != pinnedCID {
		t.Fatalf("id = %s, want %s", id, pinnedCID)
	}
}

func TestPinataStoreGetNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	store, err := NewPinataStore(PinataConfig{
		APIURL:     server.URL,
		GatewayURL: server.URL,
		APIKey:     "key",
		SecretKey:  "secret",
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	_, err = store.Get(context.Background(), "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// A malformed id never reaches the gateway.
	if _, err := store.Get(context.Background(), "junk"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for malformed id, got %v", err)
	}
}

func TestNewPinataStoreRequiresCredentials(t *testing.T) {
	if _, err := NewPinataStore(PinataConfig{APIURL: "http://x", GatewayURL: "http://x"}); err == nil {
		t.Fatal("expected error without credentials")
	}
}
