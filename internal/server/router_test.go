package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-test/deep"
	"golang.org/x/crypto/bcrypt"

	"github.com/ayush/favorites-app/internal/admin"
	"github.com/ayush/favorites-app/internal/auth"
	"github.com/ayush/favorites-app/internal/favorites"
	"github.com/ayush/favorites-app/internal/models"
	"github.com/ayush/favorites-app/internal/testutil"
	"github.com/ayush/favorites-app/internal/timeline"
)

type testEnv struct {
	t        *testing.T
	handler  http.Handler
	users    *testutil.Users
	docs     *testutil.Docs
	sessions *testutil.Sessions
	files    *testutil.Files
	recorder *timeline.Recorder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	e := &testEnv{
		t:        t,
		users:    testutil.NewUsers(),
		docs:     testutil.NewDocs(),
		sessions: testutil.NewSessions(),
		files:    testutil.NewFiles(),
	}
	e.recorder = timeline.NewRecorder(e.docs, 64, time.Second)
	t.Cleanup(e.recorder.Close)

	e.handler = NewRouter(Handlers{
		Auth:      auth.NewHandler(e.users, e.sessions, e.recorder, auth.CookieOptions{}),
		Favorites: favorites.NewHandler(e.docs, e.recorder),
		Timeline:  timeline.NewHandler(e.docs),
		Admin:     admin.NewHandler(e.users, e.docs, e.sessions, e.files),
	}, e.sessions, Options{AllowedOrigins: []string{"http://localhost:3000"}})
	return e
}

func (e *testEnv) do(method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			e.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func sessionCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.SessionCookie && c.Value != "" {
			return c
		}
	}
	return nil
}

func (e *testEnv) register(username, password string) *http.Cookie {
	e.t.Helper()
	w := e.do(http.MethodPost, "/register", models.Credentials{Username: username, Password: password}, nil)
	if w.Code != http.StatusCreated {
		e.t.Fatalf("register %s: code %d body %s", username, w.Code, w.Body)
	}
	c := sessionCookie(w)
	if c == nil {
		e.t.Fatalf("register %s: no session cookie", username)
	}
	return c
}

func (e *testEnv) login(username, password string) *http.Cookie {
	e.t.Helper()
	w := e.do(http.MethodPost, "/login", models.Credentials{Username: username, Password: password}, nil)
	if w.Code != http.StatusOK {
		e.t.Fatalf("login %s: code %d body %s", username, w.Code, w.Body)
	}
	return sessionCookie(w)
}

func (e *testEnv) seedAdmin(username, password string) *http.Cookie {
	e.t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		e.t.Fatal(err)
	}
	if _, err := e.users.CreateUser(context.Background(), username, string(hashed), models.RoleAdmin); err != nil {
		e.t.Fatalf("seed admin: %v", err)
	}
	return e.login(username, password)
}

func (e *testEnv) flush() {
	e.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.recorder.Flush(ctx); err != nil {
		e.t.Fatalf("flush timeline: %v", err)
	}
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body, err)
	}
	return v
}

func TestRegisterAddFavoriteScenario(t *testing.T) {
	e := newTestEnv(t)
	alice := e.register("alice", "pw1")

	w := e.do(http.MethodPost, "/addFavorite", map[string]string{"name": "chess"}, alice)
	if w.Code != http.StatusCreated {
		t.Fatalf("add favorite: code %d body %s", w.Code, w.Body)
	}

	w = e.do(http.MethodGet, "/favorites", nil, alice)
	if w.Code != http.StatusOK {
		t.Fatalf("list favorites: code %d", w.Code)
	}
	favs := decode[[]models.Favorite](t, w)
	if len(favs) != 1 || favs[0].Name != "chess" || favs[0].Owner != "alice" {
		t.Fatalf("unexpected favorites: %+v", favs)
	}

	e.flush()
	w = e.do(http.MethodGet, "/timeline", nil, alice)
	entries := decode[[]models.TimelineEntry](t, w)
	var titles []string
	for _, en := range entries {
		titles = append(titles, en.Title)
	}
	if diff := deep.Equal(titles, []string{models.EventRegister, models.EventAddedFavorite}); diff != nil {
		t.Fatalf("timeline titles: %v", diff)
	}
	if entries[1].Description != "chess" {
		t.Fatalf("added favorite description = %q", entries[1].Description)
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	e := newTestEnv(t)
	e.register("alice", "pw1")

	w := e.do(http.MethodPost, "/register", models.Credentials{Username: "alice", Password: "other"}, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate register: code %d", w.Code)
	}
	if sessionCookie(w) != nil {
		t.Fatal("duplicate register must not create a session")
	}
	// The original credential still works, the new one does not.
	e.login("alice", "pw1")
	w = e.do(http.MethodPost, "/login", models.Credentials{Username: "alice", Password: "other"}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("login with rejected password: code %d", w.Code)
	}
}

func TestRegisterValidation(t *testing.T) {
	e := newTestEnv(t)
	long := strings.Repeat("b", models.MaxUsernameLen+1)
	for _, creds := range []models.Credentials{{Username: "  ", Password: "x"}, {Username: "bob"}, {Username: long, Password: "x"}} {
		w := e.do(http.MethodPost, "/register", creds, nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("register %+v: code %d", creds, w.Code)
		}
	}
}

func TestLogin(t *testing.T) {
	e := newTestEnv(t)
	e.register("alice", "pw1")
	e.flush()
	sessionsBefore := e.sessions.Len()

	w := e.do(http.MethodPost, "/login", models.Credentials{Username: "alice", Password: "wrong"}, nil)
	if w.Code != http.StatusUnauthorized || sessionCookie(w) != nil {
		t.Fatalf("wrong password: code %d", w.Code)
	}
	w = e.do(http.MethodPost, "/login", models.Credentials{Username: "nobody", Password: "pw1"}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unknown user: code %d", w.Code)
	}
	if e.sessions.Len() != sessionsBefore {
		t.Fatal("failed logins created sessions")
	}

	cookie := e.login("alice", "pw1")
	w = e.do(http.MethodGet, "/home", nil, cookie)
	home := decode[map[string]string](t, w)
	if diff := deep.Equal(home, map[string]string{"username": "alice", "role": models.RoleUser}); diff != nil {
		t.Fatal(diff)
	}

	e.flush()
	w = e.do(http.MethodGet, "/timeline", nil, cookie)
	entries := decode[[]models.TimelineEntry](t, w)
	if len(entries) != 2 || entries[1].Title != models.EventLogin {
		t.Fatalf("expected Register then one Login entry, got %+v", entries)
	}
}

func TestFormLoginRedirectsHome(t *testing.T) {
	e := newTestEnv(t)
	e.register("alice", "pw1")

	form := url.Values{"username": {"alice"}, "password": {"pw1"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)

	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/home" {
		t.Fatalf("form login: code %d location %q", w.Code, w.Header().Get("Location"))
	}
	if sessionCookie(w) == nil {
		t.Fatal("form login: no cookie")
	}
}

func TestLogout(t *testing.T) {
	e := newTestEnv(t)
	alice := e.register("alice", "pw1")

	w := e.do(http.MethodGet, "/logout", nil, alice)
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/login" {
		t.Fatalf("logout: code %d", w.Code)
	}
	w = e.do(http.MethodGet, "/favorites", nil, alice)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("old cookie still valid: code %d", w.Code)
	}
}

func TestLogoutClearsCookieWhenStoreDown(t *testing.T) {
	e := newTestEnv(t)
	alice := e.register("alice", "pw1")
	e.sessions.SetDown(true)

	w := e.do(http.MethodGet, "/logout", nil, alice)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("logout: code %d", w.Code)
	}
	var cleared bool
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.SessionCookie && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatal("cookie not cleared")
	}
}

func TestUnauthenticatedRequests(t *testing.T) {
	e := newTestEnv(t)
	id := "65a1b2c3d4e5f60718293a4b"
	userID := "3f1c1a2e-8d55-4b8e-9a51-0c8f7e6d5b4a"

	gets := []string{"/home", "/favorites", "/timeline", "/users", "/addFavorite/chess"}
	for _, path := range gets {
		w := e.do(http.MethodGet, path, nil, nil)
		if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/login" {
			t.Errorf("GET %s: code %d location %q", path, w.Code, w.Header().Get("Location"))
		}
	}

	bogus := &http.Cookie{Name: auth.SessionCookie, Value: "not-a-session"}
	writes := []struct{ method, path string }{
		{http.MethodPost, "/addFavorite"},
		{http.MethodDelete, "/deleteFavorite/" + id},
		{http.MethodDelete, "/deleteTimeline/" + id},
		{http.MethodPut, "/editUser/" + userID},
		{http.MethodDelete, "/deleteUser/" + userID},
	}
	for _, wr := range writes {
		for _, c := range []*http.Cookie{nil, bogus} {
			w := e.do(wr.method, wr.path, map[string]string{"name": "x"}, c)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("%s %s: code %d", wr.method, wr.path, w.Code)
			}
		}
	}
}

func TestNonAdminForbidden(t *testing.T) {
	e := newTestEnv(t)
	bob := e.register("bob", "pw")
	bobUser, err := e.users.GetUserByUsername(context.Background(), "bob")
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct{ method, path string }{
		{http.MethodGet, "/users"},
		{http.MethodPut, "/editUser/" + bobUser.ID},
		{http.MethodPut, "/editUser/3f1c1a2e-8d55-4b8e-9a51-0c8f7e6d5b4a"},
		{http.MethodPut, "/editUser/garbage"},
		{http.MethodDelete, "/deleteUser/" + bobUser.ID},
		{http.MethodDelete, "/deleteUser/garbage"},
	}
	for _, c := range cases {
		w := e.do(c.method, c.path, map[string]string{"role": "admin"}, bob)
		if w.Code != http.StatusForbidden {
			t.Errorf("%s %s: code %d", c.method, c.path, w.Code)
		}
	}
	if u, _ := e.users.GetUserByID(context.Background(), bobUser.ID); u.Role != models.RoleUser {
		t.Fatal("forbidden request changed the user")
	}
}

func TestCrossUserDeleteIsNotFound(t *testing.T) {
	e := newTestEnv(t)
	alice := e.register("alice", "pw1")
	mallory := e.register("mallory", "pw2")

	w := e.do(http.MethodPost, "/addFavorite/chess", nil, alice)
	fav := decode[models.Favorite](t, w)
	e.flush()
	w = e.do(http.MethodGet, "/timeline", nil, alice)
	entry := decode[[]models.TimelineEntry](t, w)[0]

	w = e.do(http.MethodDelete, "/deleteFavorite/"+fav.ID.Hex(), nil, mallory)
	if w.Code != http.StatusNotFound {
		t.Fatalf("foreign favorite delete: code %d", w.Code)
	}
	w = e.do(http.MethodDelete, "/deleteTimeline/"+entry.ID.Hex(), nil, mallory)
	if w.Code != http.StatusNotFound {
		t.Fatalf("foreign timeline delete: code %d", w.Code)
	}
	// Same answer as for an id that never existed.
	w = e.do(http.MethodDelete, "/deleteFavorite/65a1b2c3d4e5f60718293a4b", nil, mallory)
	if w.Code != http.StatusNotFound {
		t.Fatalf("absent favorite delete: code %d", w.Code)
	}

	w = e.do(http.MethodDelete, "/deleteFavorite/"+fav.ID.Hex(), nil, alice)
	if w.Code != http.StatusOK {
		t.Fatalf("owner delete: code %d", w.Code)
	}
	w = e.do(http.MethodDelete, "/deleteTimeline/"+entry.ID.Hex(), nil, alice)
	if w.Code != http.StatusOK {
		t.Fatalf("owner timeline delete: code %d", w.Code)
	}
}

func TestDeleteRejectsMalformedID(t *testing.T) {
	e := newTestEnv(t)
	alice := e.register("alice", "pw1")
	for _, path := range []string{"/deleteFavorite/123", "/deleteTimeline/zzzz"} {
		w := e.do(http.MethodDelete, path, nil, alice)
		if w.Code != http.StatusBadRequest {
			t.Errorf("DELETE %s: code %d", path, w.Code)
		}
	}
}

func TestDuplicateFavorite(t *testing.T) {
	e := newTestEnv(t)
	alice := e.register("alice", "pw1")
	bob := e.register("bob", "pw2")

	if w := e.do(http.MethodGet, "/addFavorite/chess", nil, alice); w.Code != http.StatusCreated {
		t.Fatalf("first add: code %d", w.Code)
	}
	if w := e.do(http.MethodGet, "/addFavorite/chess", nil, alice); w.Code != http.StatusConflict {
		t.Fatalf("second add: code %d", w.Code)
	}
	if w := e.do(http.MethodGet, "/addFavorite/chess", nil, bob); w.Code != http.StatusCreated {
		t.Fatalf("other owner add: code %d", w.Code)
	}
}

func TestAdminPromotesUser(t *testing.T) {
	e := newTestEnv(t)
	root := e.seedAdmin("root", "toor")
	alice := e.register("alice", "pw1")

	w := e.do(http.MethodGet, "/users", nil, root)
	users := decode[[]models.User](t, w)
	if len(users) != 1 || users[0].Username != "alice" {
		t.Fatalf("users listing should exclude admins: %+v", users)
	}

	if w := e.do(http.MethodGet, "/users", nil, alice); w.Code != http.StatusForbidden {
		t.Fatalf("alice before promotion: code %d", w.Code)
	}

	w = e.do(http.MethodPut, "/editUser/"+users[0].ID, map[string]string{"role": "admin"}, root)
	if w.Code != http.StatusOK {
		t.Fatalf("edit user: code %d body %s", w.Code, w.Body)
	}

	// Promotion ends the old session; a fresh login carries the new role.
	if w := e.do(http.MethodGet, "/home", nil, alice); w.Code != http.StatusSeeOther {
		t.Fatalf("stale session still accepted: code %d", w.Code)
	}
	alice = e.login("alice", "pw1")
	w = e.do(http.MethodGet, "/home", nil, alice)
	if home := decode[map[string]string](t, w); home["role"] != models.RoleAdmin {
		t.Fatalf("role after promotion = %q", home["role"])
	}
	if w := e.do(http.MethodGet, "/users", nil, alice); w.Code != http.StatusOK {
		t.Fatalf("alice after promotion: code %d", w.Code)
	}
}

func TestAdminDeleteUser(t *testing.T) {
	e := newTestEnv(t)
	root := e.seedAdmin("root", "toor")
	alice := e.register("alice", "pw1")
	e.do(http.MethodGet, "/addFavorite/chess", nil, alice)
	e.flush()

	u, _ := e.users.GetUserByUsername(context.Background(), "alice")
	w := e.do(http.MethodDelete, "/deleteUser/"+u.ID, nil, root)
	if w.Code != http.StatusOK {
		t.Fatalf("delete user: code %d", w.Code)
	}
	if keys := e.files.Keys(); len(keys) != 1 || !strings.HasPrefix(keys[0], "users/"+u.ID+"/") {
		t.Fatalf("archive keys = %v", keys)
	}
	if w := e.do(http.MethodGet, "/favorites", nil, alice); w.Code != http.StatusSeeOther {
		t.Fatalf("deleted user's session still valid: code %d", w.Code)
	}
	if w := e.do(http.MethodDelete, "/deleteUser/"+u.ID, nil, root); w.Code != http.StatusNotFound {
		t.Fatalf("second delete: code %d", w.Code)
	}
}

func TestDeletedUsernameDoesNotInheritData(t *testing.T) {
	e := newTestEnv(t)
	root := e.seedAdmin("root", "toor")
	alice := e.register("alice", "pw1")
	if w := e.do(http.MethodGet, "/addFavorite/secret-diary", nil, alice); w.Code != http.StatusCreated {
		t.Fatalf("add favorite: code %d", w.Code)
	}
	e.flush()
	u, _ := e.users.GetUserByUsername(context.Background(), "alice")

	e.docs.SetDown(true)
	if w := e.do(http.MethodDelete, "/deleteUser/"+u.ID, nil, root); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("delete during outage: code %d", w.Code)
	}
	e.docs.SetDown(false)

	// The name is still taken, so nobody can claim alice's data.
	w := e.do(http.MethodPost, "/register", models.Credentials{Username: "alice", Password: "attacker"}, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("re-register during pending delete: code %d", w.Code)
	}

	if w := e.do(http.MethodDelete, "/deleteUser/"+u.ID, nil, root); w.Code != http.StatusOK {
		t.Fatalf("delete: code %d", w.Code)
	}
	mallory := e.register("alice", "attacker")
	favs := decode[[]models.Favorite](t, e.do(http.MethodGet, "/favorites", nil, mallory))
	if len(favs) != 0 {
		t.Fatalf("new account inherited favorites: %+v", favs)
	}
}

func TestOversizedBodyRejected(t *testing.T) {
	e := newTestEnv(t)
	alice := e.register("alice", "pw1")

	body := `{"name":"` + strings.Repeat("x", DefaultMaxBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/addFavorite", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(alice)
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("code = %d", w.Code)
	}
}

func TestDegradedStorage(t *testing.T) {
	e := newTestEnv(t)
	root := e.seedAdmin("root", "toor")
	alice := e.register("alice", "pw1")
	e.flush()

	e.docs.SetDown(true)
	e.users.SetDown(true)

	for _, c := range []struct {
		path   string
		cookie *http.Cookie
	}{{"/favorites", alice}, {"/timeline", alice}, {"/users", root}} {
		w := e.do(http.MethodGet, c.path, nil, c.cookie)
		if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "[]" {
			t.Errorf("GET %s: code %d body %s", c.path, w.Code, w.Body)
		}
	}

	if w := e.do(http.MethodPost, "/addFavorite", map[string]string{"name": "chess"}, alice); w.Code != http.StatusServiceUnavailable {
		t.Errorf("add favorite during outage: code %d", w.Code)
	}
	if w := e.do(http.MethodDelete, "/deleteFavorite/65a1b2c3d4e5f60718293a4b", nil, alice); w.Code != http.StatusServiceUnavailable {
		t.Errorf("delete favorite during outage: code %d", w.Code)
	}
	if w := e.do(http.MethodPost, "/login", models.Credentials{Username: "alice", Password: "pw1"}, nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("login during outage: code %d", w.Code)
	}
}

func TestTimelineFailureDoesNotFailAction(t *testing.T) {
	e := newTestEnv(t)
	alice := e.register("alice", "pw1")
	e.flush()

	// Timeline inserts fail, favorites keep working.
	docs := &failingTimeline{Docs: e.docs}
	rec := timeline.NewRecorder(docs, 4, time.Second)
	defer rec.Close()
	h := NewRouter(Handlers{
		Auth:      auth.NewHandler(e.users, e.sessions, rec, auth.CookieOptions{}),
		Favorites: favorites.NewHandler(e.docs, rec),
		Timeline:  timeline.NewHandler(e.docs),
		Admin:     admin.NewHandler(e.users, e.docs, e.sessions, nil),
	}, e.sessions, Options{})

	req := httptest.NewRequest(http.MethodGet, "/addFavorite/go", nil)
	req.AddCookie(alice)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("add favorite: code %d", w.Code)
	}
}

type failingTimeline struct {
	*testutil.Docs
}

func (f *failingTimeline) InsertTimeline(ctx context.Context, entry *models.TimelineEntry) error {
	return context.DeadlineExceeded
}

func TestRootAndHealth(t *testing.T) {
	e := newTestEnv(t)
	if w := e.do(http.MethodGet, "/", nil, nil); w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/home" {
		t.Fatalf("root: code %d", w.Code)
	}
	if w := e.do(http.MethodGet, "/health", nil, nil); w.Code != http.StatusOK {
		t.Fatalf("health: code %d", w.Code)
	}
	for _, path := range []string{"/login", "/register"} {
		w := e.do(http.MethodGet, path, nil, nil)
		if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "<form") {
			t.Fatalf("GET %s: code %d", path, w.Code)
		}
	}
}
