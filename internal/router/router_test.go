package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/emberhold-oss/keep/internal/database"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	m.Run()
}

func newTestServer(t *testing.T) (*gin.Engine, *bun.DB) {
	t.Helper()

	db, err := database.Connect("sqlite://" + filepath.Join(t.TempDir(), "keep.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	require.NoError(t, database.Migrate(ctx, db))
	require.NoError(t, database.Seed(ctx, db, "admin-pass-1", ""))

	return Setup(db, []byte("test-secret"), time.Hour), db
}

func do(t *testing.T, r *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func register(t *testing.T, r *gin.Engine, username string) string {
	t.Helper()
	w := do(t, r, http.MethodPost, "/auth/register", "", gin.H{
		"username": username,
		"password": "password123",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode(t, w)["token"].(string)
}

func login(t *testing.T, r *gin.Engine, username, password string) string {
	t.Helper()
	w := do(t, r, http.MethodPost, "/auth/login", "", gin.H{
		"username": username,
		"password": password,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode(t, w)["token"].(string)
}

func TestHealth(t *testing.T) {
	r, _ := newTestServer(t)

	w := do(t, r, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "keep", decode(t, w)["service"])
}

func TestAuthRequired(t *testing.T) {
	r, _ := newTestServer(t)

	w := do(t, r, http.MethodGet, "/parties", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, r, http.MethodGet, "/parties", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	r, _ := newTestServer(t)
	register(t, r, "nova")

	w := do(t, r, http.MethodPost, "/auth/login", "", gin.H{
		"username": "nova",
		"password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid_login", decode(t, w)["error"])

	// Unknown user gets the identical response.
	w = do(t, r, http.MethodPost, "/auth/login", "", gin.H{
		"username": "ghost",
		"password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid_login", decode(t, w)["error"])
}

func TestPartyLifecycleOverHTTP(t *testing.T) {
	r, _ := newTestServer(t)

	novaToken := register(t, r, "nova")
	kaliToken := register(t, r, "kali")
	adminToken := login(t, r, "admin", "admin-pass-1")

	// nova files a creation request; a regular member cannot list them.
	w := do(t, r, http.MethodPost, "/parties/requests", novaToken, gin.H{
		"party_name": "Emberwatch",
		"message":    "dawn patrol",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	requestID := decode(t, w)["id"].(string)

	w = do(t, r, http.MethodGet, "/parties/requests", novaToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// nova can see their own pending request.
	w = do(t, r, http.MethodGet, "/parties/requests/me", novaToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	mine := decode(t, w)["request"].(map[string]any)
	assert.Equal(t, "pending", mine["status"])

	// The admin lists and approves it.
	w = do(t, r, http.MethodGet, "/parties/requests", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var pending []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pending))
	require.Len(t, pending, 1)
	assert.Equal(t, "Emberwatch", pending[0]["party_name"])

	w = do(t, r, http.MethodPost, "/parties/requests/"+requestID+"/approve", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	party := decode(t, w)["party"].(map[string]any)
	partyID := party["id"].(string)

	// Approving twice is a conflict.
	w = do(t, r, http.MethodPost, "/parties/requests/"+requestID+"/approve", adminToken, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "request_not_pending", decode(t, w)["error"])

	// nova now shows up as captain of the party.
	w = do(t, r, http.MethodGet, "/parties/me", novaToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	myParty := decode(t, w)["party"].(map[string]any)
	assert.Equal(t, "Emberwatch", myParty["name"])
	assert.Equal(t, "captain", myParty["role"])

	// kali requests to join; nova (captain) sees and approves it.
	w = do(t, r, http.MethodPost, "/parties/"+partyID+"/join-requests", kaliToken, gin.H{
		"message": "take me along",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	joinID := decode(t, w)["id"].(string)

	// The admin is not the captain and cannot review the join request.
	w = do(t, r, http.MethodPost, "/parties/join-requests/"+joinID+"/approve", adminToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, r, http.MethodGet, "/parties/join-requests", novaToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var joins []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &joins))
	require.Len(t, joins, 1)
	assert.Equal(t, "kali", joins[0]["username"])

	w = do(t, r, http.MethodPost, "/parties/join-requests/"+joinID+"/approve", novaToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// kali is in and got a system mail about it.
	w = do(t, r, http.MethodGet, "/parties/me", kaliToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	kaliParty := decode(t, w)["party"].(map[string]any)
	assert.Equal(t, "member", kaliParty["role"])

	w = do(t, r, http.MethodGet, "/mail/unread-count", kaliToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["unread"])

	// Member list reflects the affiliation.
	w = do(t, r, http.MethodGet, "/parties", kaliToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var parties []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &parties))
	require.Len(t, parties, 1)
	assert.Equal(t, float64(2), parties[0]["member_count"])

	// Disband requires leadership; afterwards the party is gone from the list.
	w = do(t, r, http.MethodDelete, "/parties/"+partyID, novaToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, r, http.MethodDelete, "/parties/"+partyID, adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, r, http.MethodGet, "/parties", kaliToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	parties = nil
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &parties))
	assert.Empty(t, parties)

	w = do(t, r, http.MethodGet, "/parties/me", novaToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, decode(t, w)["party"])
}

func TestRankRequestOverHTTP(t *testing.T) {
	r, _ := newTestServer(t)

	kaliToken := register(t, r, "kali")
	adminToken := login(t, r, "admin", "admin-pass-1")

	w := do(t, r, http.MethodPost, "/members/rank-requests", kaliToken, gin.H{
		"requested_rank": "admin",
		"message":        "I can help",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	requestID := decode(t, w)["id"].(string)

	// Requesting anything but admin is invalid.
	w = do(t, r, http.MethodPost, "/members/rank-requests", kaliToken, gin.H{
		"requested_rank": "founder",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodGet, "/members/rank-requests", kaliToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, r, http.MethodPost, "/members/rank-requests/"+requestID+"/approve", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// The stored rank changed, the session snapshot did not.
	w = do(t, r, http.MethodGet, "/auth/me", kaliToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	user := decode(t, w)["user"].(map[string]any)
	assert.Equal(t, "member", user["guild_rank"])

	freshToken := login(t, r, "kali", "password123")
	w = do(t, r, http.MethodGet, "/auth/me", freshToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	user = decode(t, w)["user"].(map[string]any)
	assert.Equal(t, "admin", user["guild_rank"])
}

func TestMailRulesOverHTTP(t *testing.T) {
	r, _ := newTestServer(t)

	novaToken := register(t, r, "nova")
	register(t, r, "kali")
	adminToken := login(t, r, "admin", "admin-pass-1")

	// Member-to-member mail is blocked; member-to-leadership is fine.
	w := do(t, r, http.MethodPost, "/mail/send", novaToken, gin.H{
		"to_username": "kali",
		"subject":     "hey",
		"body":        "psst",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, r, http.MethodPost, "/mail/send", novaToken, gin.H{
		"to_username": "admin",
		"subject":     "request",
		"body":        "please look at my application",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// Leadership can message anyone.
	w = do(t, r, http.MethodPost, "/mail/send", adminToken, gin.H{
		"to_username": "kali",
		"subject":     "welcome",
		"body":        "glad to have you",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// The admin's inbox shows nova's message; marking it read clears the count.
	w = do(t, r, http.MethodGet, "/mail/inbox", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var inbox []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &inbox))
	require.Len(t, inbox, 1)
	assert.Equal(t, "request", inbox[0]["subject"])
	from := inbox[0]["from"].(map[string]any)
	assert.Equal(t, "nova", from["username"])
	msgID := inbox[0]["id"].(string)

	// Only the recipient may mark a message read.
	w = do(t, r, http.MethodPost, "/mail/"+msgID+"/read", novaToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, r, http.MethodPost, "/mail/"+msgID+"/read", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodGet, "/mail/unread-count", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), decode(t, w)["unread"])

	// Sent folder shows the outbound message with its recipient.
	w = do(t, r, http.MethodGet, "/mail/sent", novaToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sent []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sent))
	require.Len(t, sent, 1)
	to := sent[0]["to"].(map[string]any)
	assert.Equal(t, "admin", to["username"])
}

func TestAnnouncementsOverHTTP(t *testing.T) {
	r, _ := newTestServer(t)

	novaToken := register(t, r, "nova")
	adminToken := login(t, r, "admin", "admin-pass-1")

	// Reading is public, posting is leadership-only.
	w := do(t, r, http.MethodGet, "/announcements", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodPost, "/announcements", novaToken, gin.H{
		"title": "Raid night",
		"body":  "Friday at nine",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, r, http.MethodPost, "/announcements", adminToken, gin.H{
		"title": "Raid night",
		"body":  "Friday at nine",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)
	assert.Equal(t, "General", created["tag"])
	assert.Equal(t, "admin", created["author"])
	annID := created["id"].(string)

	w = do(t, r, http.MethodGet, "/announcements", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)

	w = do(t, r, http.MethodDelete, "/announcements/"+annID, adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodDelete, "/announcements/"+annID, adminToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPasswordResetFlow(t *testing.T) {
	r, db := newTestServer(t)
	register(t, r, "nova")

	// Forgot never reveals whether the account exists.
	w := do(t, r, http.MethodPost, "/auth/forgot", "", gin.H{"username": "ghost"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodPost, "/auth/forgot", "", gin.H{"username": "nova"})
	require.Equal(t, http.StatusOK, w.Code)

	// A wrong code is rejected and the old password still works.
	w = do(t, r, http.MethodPost, "/auth/reset", "", gin.H{
		"username":     "nova",
		"code":         "000000",
		"new_password": "hunter22hunter22",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	login(t, r, "nova", "password123")

	// A reset row exists for the user.
	n, err := db.NewSelect().Table("password_resets").Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
