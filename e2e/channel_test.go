package e2e

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"cargohold/internal/constants"
)

func dialChannel(t *testing.T, ts *TestServer, token string) (*websocket.Conn, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	header := http.Header{}
	header.Set(constants.HeaderAuthorization, constants.AuthBearerPrefix+token)
	conn, resp, err := websocket.Dial(ctx, ts.WSURL("/api/channel"), &websocket.DialOptions{
		HTTPHeader: header,
	})
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

// readUntilClose blocks until the server closes the connection and returns
// the close status.
func readUntilClose(t *testing.T, conn *websocket.Conn, timeout time.Duration) websocket.StatusCode {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for {
		if _, _, err := conn.Read(ctx); err != nil {
			if status := websocket.CloseStatus(err); status != -1 {
				return status
			}
			t.Fatalf("read failed without close status: %v", err)
		}
	}
}

func TestChannelHandshakeAndPing(t *testing.T) {
	ts := StartTestServer(t)
	subjectID := ts.CreateSubject(t, "chanadmin", constants.RoleAdmin)

	conn, err := dialChannel(t, ts, IssueToken(t, subjectID, nil))
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := wsjson.Write(ctx, conn, map[string]string{"type": "ping"}); err != nil {
		t.Fatalf("ping write failed: %v", err)
	}
	var pong struct {
		Type string `json:"type"`
	}
	if err := wsjson.Read(ctx, conn, &pong); err != nil {
		t.Fatalf("pong read failed: %v", err)
	}
	if pong.Type != "pong" {
		t.Errorf("response type = %q, want pong", pong.Type)
	}

	if !ts.WaitForEvent(t, constants.EventHandshakeAuthorized, 2*time.Second) {
		t.Error("no handshake_authorized event recorded")
	}
}

// A token signed for a subject that does not exist upgrades, then receives
// the generic policy violation close. The precise reason stays server-side.
func TestChannelRejectsUnknownSubject(t *testing.T) {
	ts := StartTestServer(t)

	conn, err := dialChannel(t, ts, IssueToken(t, "ghost-subject", nil))
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if status := readUntilClose(t, conn, 5*time.Second); status != websocket.StatusPolicyViolation {
		t.Errorf("close status = %d, want %d", status, websocket.StatusPolicyViolation)
	}
	if !ts.WaitForEvent(t, constants.EventHandshakeRejected, 2*time.Second) {
		t.Error("no handshake_rejected event recorded")
	}
}

// A forged role claim in the credential does not help: the stored role
// decides, and a non-privileged subject is refused.
func TestChannelIgnoresEmbeddedRoleClaim(t *testing.T) {
	ts := StartTestServer(t)
	subjectID := ts.CreateSubject(t, "plainuser", constants.RoleUser)

	conn, err := dialChannel(t, ts, IssueToken(t, subjectID, map[string]interface{}{"role": "admin"}))
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if status := readUntilClose(t, conn, 5*time.Second); status != websocket.StatusPolicyViolation {
		t.Errorf("close status = %d, want %d", status, websocket.StatusPolicyViolation)
	}
}

// Disabling a subject closes its live session without waiting for the next
// tick, with the same close code a handshake rejection gets.
func TestChannelRevocationClosesLiveSession(t *testing.T) {
	ts := StartTestServer(t)
	subjectID := ts.CreateSubject(t, "revokee", constants.RoleAdmin)

	conn, err := dialChannel(t, ts, IssueToken(t, subjectID, nil))
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Wait for the session to land in the registry.
	deadline := time.Now().Add(2 * time.Second)
	for ts.App.Registry.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if ts.App.Registry.Count() != 1 {
		t.Fatal("session not registered")
	}

	resp := ts.PutJSON(t, "/api/subjects/"+subjectID+"/active", map[string]bool{"active": false})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("disable returned %d", resp.StatusCode)
	}

	if status := readUntilClose(t, conn, 5*time.Second); status != websocket.StatusPolicyViolation {
		t.Errorf("close status = %d, want %d", status, websocket.StatusPolicyViolation)
	}
	if !ts.WaitForEvent(t, constants.EventSessionClosed, 2*time.Second) {
		t.Error("no session_closed event recorded")
	}

	// Re-dialing with the same, still-valid credential is refused now.
	conn2, err := dialChannel(t, ts, IssueToken(t, subjectID, nil))
	if err != nil {
		t.Fatalf("re-dial failed: %v", err)
	}
	defer conn2.Close(websocket.StatusNormalClosure, "")
	if status := readUntilClose(t, conn2, 5*time.Second); status != websocket.StatusPolicyViolation {
		t.Errorf("re-dial close status = %d, want %d", status, websocket.StatusPolicyViolation)
	}
}

// Demoting a subject out of the privileged set has the same effect as
// disabling it.
func TestChannelDemotionClosesLiveSession(t *testing.T) {
	ts := StartTestServer(t)
	subjectID := ts.CreateSubject(t, "demotee", constants.RoleAdmin)

	conn, err := dialChannel(t, ts, IssueToken(t, subjectID, nil))
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	deadline := time.Now().Add(2 * time.Second)
	for ts.App.Registry.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	resp := ts.PutJSON(t, "/api/subjects/"+subjectID+"/role", map[string]string{"role": constants.RoleUser})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("demotion returned %d", resp.StatusCode)
	}

	if status := readUntilClose(t, conn, 5*time.Second); status != websocket.StatusPolicyViolation {
		t.Errorf("close status = %d, want %d", status, websocket.StatusPolicyViolation)
	}
}

func TestChannelExpiredToken(t *testing.T) {
	ts := StartTestServer(t)
	subjectID := ts.CreateSubject(t, "expired", constants.RoleAdmin)

	claims := map[string]interface{}{"exp": time.Now().Add(-10 * time.Minute).Unix()}
	conn, err := dialChannel(t, ts, IssueToken(t, subjectID, claims))
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if status := readUntilClose(t, conn, 5*time.Second); status != websocket.StatusPolicyViolation {
		t.Errorf("close status = %d, want %d", status, websocket.StatusPolicyViolation)
	}
}

func TestChannelMissingToken(t *testing.T) {
	ts := StartTestServer(t)

	resp, err := http.Get(ts.HTTP.URL + "/api/channel")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}
