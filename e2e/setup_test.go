package e2e

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"cargohold/internal/config"
	"cargohold/internal/constants"
	"cargohold/internal/credential"
	"cargohold/internal/database"
	"cargohold/internal/logger"
	"cargohold/internal/server"
)

const testSharedSecret = "e2e-shared-secret"

// TestServer is a fully wired server over a temp working directory, with
// hs256 credentials enabled and a fast re-verification interval.
type TestServer struct {
	HTTP *httptest.Server
	App  *server.App
}

func StartTestServer(t *testing.T) *TestServer {
	t.Helper()

	dir := t.TempDir()
	cfg := &config.Config{WorkingDirectory: dir}
	cfg.ApplyDefaults()
	cfg.Credential.Algorithm = constants.CredentialAlgHS256
	cfg.Credential.SharedSecret = testSharedSecret
	cfg.AdminChannel.VerifyIntervalSecs = 1

	db, err := database.InitServiceDB(filepath.Join(dir, constants.ServiceDB))
	if err != nil {
		t.Fatalf("failed to init service DB: %v", err)
	}

	app, err := server.NewApp(cfg, logger.NewLogger("error"), db)
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}

	srv := server.NewServer(app, ":0")
	httpSrv := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		httpSrv.Close()
		app.Audit.Stop()
		db.Close()
	})

	return &TestServer{HTTP: httpSrv, App: app}
}

// WSURL returns the ws:// URL for a path on the test server.
func (ts *TestServer) WSURL(path string) string {
	return "ws" + strings.TrimPrefix(ts.HTTP.URL, "http") + path
}

// IssueToken signs an hs256 credential for a subject, expiring in an hour.
func IssueToken(t *testing.T, subject string, extra map[string]interface{}) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Unix(),
	}
	for k, v := range extra {
		claims[k] = v
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString(credential.DeriveSharedKey(testSharedSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

// CreateSubject creates a subject through the API and returns its id.
func (ts *TestServer) CreateSubject(t *testing.T, username, role string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": username, "role": role})
	resp, err := http.Post(ts.HTTP.URL+"/api/subjects", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("create subject request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		data, _ := io.ReadAll(resp.Body)
		t.Fatalf("create subject returned %d: %s", resp.StatusCode, data)
	}
	var subject struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&subject); err != nil {
		t.Fatalf("failed to decode subject: %v", err)
	}
	return subject.ID
}

// PutJSON sends a PUT request with a JSON body.
func (ts *TestServer) PutJSON(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()
	data, _ := json.Marshal(body)
	req, err := http.NewRequest(http.MethodPut, ts.HTTP.URL+path, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

// QueryEvents fetches security events of one type from the audit API.
func (ts *TestServer) QueryEvents(t *testing.T, eventType string) []map[string]interface{} {
	t.Helper()
	resp, err := http.Get(ts.HTTP.URL + "/api/audit?event_type=" + eventType)
	if err != nil {
		t.Fatalf("audit query failed: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Entries []map[string]interface{} `json:"entries"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode audit response: %v", err)
	}
	return body.Entries
}

// WaitForEvent polls the audit API until an event of the given type exists.
func (ts *TestServer) WaitForEvent(t *testing.T, eventType string, timeout time.Duration) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if len(ts.QueryEvents(t, eventType)) > 0 {
			return true
		}
		time.Sleep(25 * time.Millisecond)
	}
	return false
}
