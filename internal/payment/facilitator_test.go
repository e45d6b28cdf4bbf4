package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPFacilitatorClient_Verify(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		var req VerifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("verify body decode: %v", err)
		}
		if req.PaymentRequirements.Scheme != "exact" {
			t.Errorf("requirements not forwarded, got %+v", req.PaymentRequirements)
		}
		json.NewEncoder(w).Encode(VerifyResponse{IsValid: true, Payer: "0xpayer"})
	}))
	defer srv.Close()

	client := NewHTTPFacilitatorClient(FacilitatorConfig{URL: srv.URL})
	resp, err := client.Verify(context.Background(), VerifyRequest{
		PaymentRequirements: testRequirements(),
	})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if gotPath != "/verify" {
		t.Errorf("expected POST /verify, got %s", gotPath)
	}
	if !resp.IsValid || resp.Payer != "0xpayer" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestHTTPFacilitatorClient_SettleErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewHTTPFacilitatorClient(FacilitatorConfig{URL: srv.URL})
	_, err := client.Settle(context.Background(), SettleRequest{})
	if err == nil {
		t.Fatal("non-200 settle must return an error")
	}
	var perr *Error
	if !errors.As(err, &perr) || perr.Code != ErrCodeFacilitatorError {
		t.Errorf("expected facilitator_error, got %v", err)
	}
}

func TestHTTPFacilitatorClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	client := NewHTTPFacilitatorClient(FacilitatorConfig{
		URL:     srv.URL,
		Timeout: 50 * time.Millisecond,
	})

	start := time.Now()
	_, err := client.GetSupported(context.Background())
	if err == nil {
		t.Fatal("hung facilitator must time out")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout took too long: %v", elapsed)
	}
}

func TestHTTPFacilitatorClient_GetSupported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/supported" || r.Method != http.MethodGet {
			t.Errorf("expected GET /supported, got %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(SupportedResponse{Kinds: []SupportedKind{
			{X402Version: 2, Scheme: "exact", Network: "eip155:84532"},
		}})
	}))
	defer srv.Close()

	client := NewHTTPFacilitatorClient(FacilitatorConfig{URL: srv.URL})
	resp, err := client.GetSupported(context.Background())
	if err != nil {
		t.Fatalf("GetSupported: %v", err)
	}
	if len(resp.Kinds) != 1 || resp.Kinds[0].Scheme != "exact" {
		t.Errorf("unexpected supported kinds: %+v", resp.Kinds)
	}
}
