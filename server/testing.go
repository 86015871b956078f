/*
	This file contains functions useful for testing against the store emulator in other
	packages.  Due to the way Go handles compilation of *_test.go files, these functions
	cannot be in server_test.go since they would be unavailable to test files in external
	packages.  So these functions are exported and contain the "Test" keyword.
*/

package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/janelia-flyem/omerokv/omerokv"
)

const (
	TestUser     = "tester"
	TestPassword = "tester-password"
	TestSecret   = "emulator-test-secret"
)

// TestConfig returns a configuration with a single known user.
func TestConfig() Config {
	return Config{
		SecretKey: TestSecret,
		Users:     map[string]string{TestUser: TestPassword},
	}
}

// NewTestServer starts an emulator on a local port and closes it at test cleanup.
func NewTestServer(t *testing.T) (*Server, *httptest.Server) {
	s := New(TestConfig(), nil)
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)
	return s, ts
}

// TestToken returns a session token for the test user.
func TestToken(t *testing.T, s *Server) string {
	body, _ := json.Marshal(omerokv.SessionRequest{User: TestUser, Password: TestPassword})
	resp := TestHTTPResponse(t, s, "", "POST", "/api/session", bytes.NewBuffer(body))
	if resp.Code != http.StatusOK {
		t.Fatalf("Unable to open test session: %d %s\n", resp.Code, resp.Body.String())
	}
	var session omerokv.SessionResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &session); err != nil {
		t.Fatalf("Couldn't decode session response: %v\n", err)
	}
	return session.Token
}

// TestHTTPResponse returns a response from a test run of the emulator.
// Use TestHTTP if you just want the response body bytes.
func TestHTTPResponse(t *testing.T, s *Server, token, method, urlStr string, payload io.Reader) *httptest.ResponseRecorder {
	req, err := http.NewRequest(method, urlStr, payload)
	if err != nil {
		t.Fatalf("Unsuccessful %s on %q: %v\n", method, urlStr, err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	s.ServeHTTP(resp, req)
	return resp
}

// TestHTTP returns the response body bytes for a test request, making sure any response has
// status OK.
func TestHTTP(t *testing.T, s *Server, token, method, urlStr string, payload io.Reader) []byte {
	resp := TestHTTPResponse(t, s, token, method, urlStr, payload)
	if resp.Code != http.StatusOK {
		t.Fatalf("Bad server response (%d) to %s on %q: %s\n", resp.Code, method, urlStr, resp.Body.String())
	}
	return resp.Body.Bytes()
}

// TestBadHTTP expects a HTTP response with an error status code and returns it.
func TestBadHTTP(t *testing.T, s *Server, token, method, urlStr string, payload io.Reader) int {
	resp := TestHTTPResponse(t, s, token, method, urlStr, payload)
	if resp.Code == http.StatusOK {
		t.Fatalf("Expected bad server response to %s on %q, got %d instead.\n", method, urlStr, resp.Code)
	}
	return resp.Code
}

// TestHTTPResponseRequest serves an already built request.
func TestHTTPResponseRequest(s *Server, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	s.ServeHTTP(resp, req)
	return resp
}
