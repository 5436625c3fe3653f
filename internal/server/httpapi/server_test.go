package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/photokeeper/internal/common"
	"github.com/dmitrijs2005/photokeeper/internal/logging"
	"github.com/dmitrijs2005/photokeeper/internal/server/auth"
	"github.com/dmitrijs2005/photokeeper/internal/server/metrics"
	"github.com/dmitrijs2005/photokeeper/internal/server/models"
	"github.com/dmitrijs2005/photokeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/photokeeper/internal/server/services"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// --- fakes ---

type fakeProvider struct {
	identities map[string]models.FederatedIdentity
}

func (p *fakeProvider) AuthCodeURL(state string) string {
	return "https://accounts.example/auth?state=" + state
}

func (p *fakeProvider) Exchange(_ context.Context, code string) (*models.FederatedIdentity, error) {
	id, ok := p.identities[code]
	if !ok {
		return nil, errors.New("bad code")
	}
	return &id, nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

// --- helpers ---

type harness struct {
	srv      *Server
	repos    *repomanager.InMemoryRepositoryManager
	issuer   *auth.Issuer
	provider *fakeProvider
}

func newHarness(t *testing.T, autoLink bool, opts Options) *harness {
	t.Helper()
	repos := repomanager.NewInMemoryRepositoryManager()
	issuer := auth.NewIssuer("k", time.Hour, 10*time.Minute)
	registry := metrics.NewRegistry()
	m := metrics.NewMetrics(registry)
	svc := services.NewAccountService(repos, auth.NewBcryptHasher(bcrypt.MinCost), issuer, nil, logging.Nop(), m,
		services.Options{FederatedAutoLink: autoLink})

	provider := &fakeProvider{identities: map[string]models.FederatedIdentity{
		"code-alice": {SubjectID: "g-alice", Email: "alice@x.com", EmailVerified: true, DisplayName: "Alice", PictureURL: "https://pic/alice"},
		"code-other": {SubjectID: "g-other", Email: "personal@gmail.com", EmailVerified: true},
	}}
	if opts.Provider == nil {
		opts.Provider = provider
	}
	if opts.Gatherer == nil {
		opts.Gatherer = registry
	}

	return &harness{
		srv:      NewServer("127.0.0.1:0", svc, issuer, repos, m, logging.Nop(), opts),
		repos:    repos,
		issuer:   issuer,
		provider: provider,
	}
}

func (h *harness) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (h *harness) postJSON(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return h.do(t, req)
}

func (h *harness) get(t *testing.T, path, token string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+token)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return h.do(t, req)
}

func (h *harness) register(t *testing.T, email, password string) sessionResponse {
	t.Helper()
	rec := h.postJSON(t, "/api/auth/register", registerRequest{Email: email, Password: password, Company: "Acme"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func decodeMsg(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Msg string `json:"msg"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Msg
}

// liveCookies returns the cookies a browser would keep after rec.
func liveCookies(rec *httptest.ResponseRecorder) []*http.Cookie {
	var out []*http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge >= 0 && c.Value != "" {
			out = append(out, c)
		}
	}
	return out
}

func cookieValue(cookies []*http.Cookie, name string) string {
	for _, c := range cookies {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// oauthRoundTrip runs start and callback and returns the callback redirect.
func (h *harness) oauthRoundTrip(t *testing.T, startPath, code string) *url.URL {
	t.Helper()
	start := h.get(t, startPath, "")
	require.Equal(t, http.StatusFound, start.Code, start.Body.String())

	cookies := liveCookies(start)
	state := cookieValue(cookies, common.OAuthStateCookieName)
	require.NotEmpty(t, state)
	assert.Equal(t, "https://accounts.example/auth?state="+state, start.Header().Get("Location"))

	cb := h.get(t, "/api/auth/oauth/callback?"+url.Values{"state": {state}, "code": {code}}.Encode(), "", cookies...)
	require.Equal(t, http.StatusFound, cb.Code)

	loc, err := url.Parse(cb.Header().Get("Location"))
	require.NoError(t, err)
	return loc
}

// --- password routes ---

func TestRegisterLoginMe(t *testing.T) {
	h := newHarness(t, true, Options{})

	reg := h.register(t, "a@x.com", "pw")
	assert.NotEmpty(t, reg.Token)
	assert.Equal(t, "a@x.com", reg.User.Email)
	assert.Equal(t, "Acme", reg.User.Company)

	rec := h.postJSON(t, "/api/auth/login", credentialsRequest{Email: "a@x.com", Password: "pw"})
	require.Equal(t, http.StatusOK, rec.Code)
	var login sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))
	assert.Equal(t, reg.User.ID, login.User.ID)

	rec = h.get(t, "/api/auth/me", login.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	var me meResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, meResponse{
		ID:               reg.User.ID,
		Email:            "a@x.com",
		Company:          "Acme",
		PhotoCredits:     10,
		RemainingCredits: 10,
	}, me)
}

func TestRegister_Errors(t *testing.T) {
	h := newHarness(t, true, Options{})
	h.register(t, "a@x.com", "pw")

	tests := []struct {
		name string
		body any
		msg  string
	}{
		{"missing company", registerRequest{Email: "b@x.com", Password: "pw"}, msgMissingFields},
		{"duplicate", registerRequest{Email: "a@x.com", Password: "pw", Company: "c"}, "User already exists"},
		{"bad code", registerRequest{Email: "c@x.com", Password: "pw", Company: "c", RegistrationCode: strings.Repeat("a", 31)}, services.ErrInvalidCodeFormat.Error()},
		{"not json", "nope", msgMissingFields},
		{"password too long", registerRequest{Email: "d@x.com", Password: strings.Repeat("p", 73), Company: "c"}, msgMissingFields},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.postJSON(t, "/api/auth/register", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.msg, decodeMsg(t, rec))
		})
	}
}

func TestRegister_UnlimitedCode(t *testing.T) {
	h := newHarness(t, true, Options{})
	rec := h.postJSON(t, "/api/auth/register", registerRequest{
		Email: "a@x.com", Password: "pw", Company: "c", RegistrationCode: strings.Repeat("a", 32),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var reg sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reg))

	rec = h.get(t, "/api/auth/me", reg.Token)
	var me meResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.True(t, me.IsUnlimited)
	assert.True(t, me.HasRegistrationCode)
	assert.Equal(t, int64(-1), me.RemainingCredits)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	h := newHarness(t, true, Options{})
	h.register(t, "a@x.com", "pw")

	for _, body := range []credentialsRequest{
		{Email: "a@x.com", Password: "wrong"},
		{Email: "ghost@x.com", Password: "pw"},
	} {
		rec := h.postJSON(t, "/api/auth/login", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, msgInvalidCredentials, decodeMsg(t, rec))
	}
}

func TestMe_Unauthorized(t *testing.T) {
	h := newHarness(t, true, Options{})
	reg := h.register(t, "a@x.com", "pw")
	link, err := h.issuer.IssueLink(reg.User.ID)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, h.get(t, "/api/auth/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, h.get(t, "/api/auth/me", "garbage").Code)
	assert.Equal(t, http.StatusUnauthorized, h.get(t, "/api/auth/me", link).Code)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set(common.AuthorizationHeaderName, reg.Token)
	assert.Equal(t, http.StatusUnauthorized, h.do(t, req).Code)
}

func TestMe_DeletedAccount(t *testing.T) {
	h := newHarness(t, true, Options{})
	token, err := h.issuer.Issue("missing")
	require.NoError(t, err)

	rec := h.get(t, "/api/auth/me", token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, msgUserNotFound, decodeMsg(t, rec))
}

// --- federated routes ---

func TestOAuth_NewAccount(t *testing.T) {
	h := newHarness(t, true, Options{})

	loc := h.oauthRoundTrip(t, "/api/auth/oauth/start", "code-alice")
	assert.Equal(t, "/", loc.Path)
	assert.Equal(t, "google", loc.Query().Get("auth"))

	accountID, err := h.issuer.VerifySession(loc.Query().Get("token"))
	require.NoError(t, err)

	acc, err := h.repos.Accounts().FindByID(context.Background(), accountID)
	require.NoError(t, err)
	assert.Equal(t, models.AuthModeFederated, acc.AuthMode)
	assert.Equal(t, "g-alice", acc.FederatedSubjectID)

	rec := h.get(t, "/api/auth/oauth/status", loc.Query().Get("token"))
	require.Equal(t, http.StatusOK, rec.Code)
	var status oauthStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, oauthStatusResponse{
		AuthProvider:   "federated",
		HasGoogleAuth:  true,
		ProfilePicture: "https://pic/alice",
		DisplayName:    "Alice",
	}, status)
}

func TestOAuth_AutoLinksPasswordAccount(t *testing.T) {
	h := newHarness(t, true, Options{})
	reg := h.register(t, "alice@x.com", "pw")

	loc := h.oauthRoundTrip(t, "/api/auth/oauth/start", "code-alice")
	accountID, err := h.issuer.VerifySession(loc.Query().Get("token"))
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, accountID)
}

func TestOAuth_LinkRequiredWhenAutoLinkDisabled(t *testing.T) {
	h := newHarness(t, false, Options{})
	h.register(t, "alice@x.com", "pw")

	loc := h.oauthRoundTrip(t, "/api/auth/oauth/start", "code-alice")
	assert.Equal(t, "link_required", loc.Query().Get("error"))
	assert.Empty(t, loc.Query().Get("token"))
}

func TestOAuth_LinkHandshake(t *testing.T) {
	h := newHarness(t, false, Options{})
	reg := h.register(t, "work@corp.com", "pw")

	rec := h.get(t, "/api/auth/oauth/status", reg.Token)
	var before oauthStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &before))
	assert.True(t, before.CanLinkGoogle)

	rec = h.postJSON(t, "/api/auth/oauth/link", credentialsRequest{Email: "work@corp.com", Password: "pw"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var link struct {
		LinkToken     string `json:"linkToken"`
		GoogleAuthURL string `json:"googleAuthUrl"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &link))
	require.NotEmpty(t, link.LinkToken)
	assert.True(t, strings.HasPrefix(link.GoogleAuthURL, "/api/auth/oauth/start?link_token="))

	loc := h.oauthRoundTrip(t, link.GoogleAuthURL, "code-other")
	accountID, err := h.issuer.VerifySession(loc.Query().Get("token"))
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, accountID)

	rec = h.get(t, "/api/auth/oauth/status", reg.Token)
	var after oauthStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &after))
	assert.True(t, after.HasGoogleAuth)
	assert.False(t, after.CanLinkGoogle)
	assert.Equal(t, "password", after.AuthProvider)
}

func TestOAuthLink_WrongPassword(t *testing.T) {
	h := newHarness(t, true, Options{})
	h.register(t, "a@x.com", "pw")

	rec := h.postJSON(t, "/api/auth/oauth/link", credentialsRequest{Email: "a@x.com", Password: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, msgInvalidCredentials, decodeMsg(t, rec))
}

func TestOAuthStart_RejectsSessionTokenAsLinkToken(t *testing.T) {
	h := newHarness(t, true, Options{})
	reg := h.register(t, "a@x.com", "pw")

	rec := h.get(t, "/api/auth/oauth/start?link_token="+reg.Token, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOAuthCallback_Failures(t *testing.T) {
	h := newHarness(t, true, Options{})

	start := h.get(t, "/api/auth/oauth/start", "")
	cookies := liveCookies(start)
	state := cookieValue(cookies, common.OAuthStateCookieName)

	tests := []struct {
		name    string
		query   url.Values
		cookies []*http.Cookie
	}{
		{"state mismatch", url.Values{"state": {"other"}, "code": {"code-alice"}}, cookies},
		{"missing cookie", url.Values{"state": {state}, "code": {"code-alice"}}, nil},
		{"provider error", url.Values{"state": {state}, "error": {"access_denied"}}, cookies},
		{"bad code", url.Values{"state": {state}, "code": {"nope"}}, cookies},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.get(t, "/api/auth/oauth/callback?"+tt.query.Encode(), "", tt.cookies...)
			assert.Equal(t, http.StatusFound, rec.Code)
			assert.Equal(t, redirectAuthFailed, rec.Header().Get("Location"))
		})
	}
}

func TestOAuth_Disabled(t *testing.T) {
	h := newHarness(t, true, Options{})
	h.srv = NewServer("127.0.0.1:0", h.srv.accounts, h.issuer, nil, nil, logging.Nop(), Options{})

	assert.Equal(t, http.StatusNotFound, h.get(t, "/api/auth/oauth/start", "").Code)
	assert.Equal(t, http.StatusNotFound, h.postJSON(t, "/api/auth/oauth/link", credentialsRequest{}).Code)
}

// --- infrastructure routes ---

func TestHealthz(t *testing.T) {
	h := newHarness(t, true, Options{})
	assert.Equal(t, http.StatusOK, h.get(t, "/healthz", "").Code)

	h.srv = NewServer("127.0.0.1:0", h.srv.accounts, h.issuer, fakePinger{err: errors.New("down")}, nil, logging.Nop(), Options{})
	assert.Equal(t, http.StatusServiceUnavailable, h.get(t, "/healthz", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t, true, Options{})
	h.register(t, "a@x.com", "pw")

	rec := h.get(t, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "photokeeper_accounts_created_total")
	assert.Contains(t, rec.Body.String(), `route="/api/auth/register"`)
}

func TestCORS(t *testing.T) {
	h := newHarness(t, true, Options{CORSOrigins: []string{"http://localhost:3000"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := h.do(t, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = h.do(t, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestFrontendFallback(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>app</html>"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o600))

	h := newHarness(t, true, Options{FrontendDir: dir})

	rec := h.get(t, "/app.js", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "console.log(1)", rec.Body.String())

	rec = h.get(t, "/dashboard/photos", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "app")

	rec = h.get(t, "/api/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	h := newHarness(t, true, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.srv.Run(ctx) }()

	select {
	case err := <-done:
		t.Fatalf("server exited too early: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop after context cancel")
	}
}
