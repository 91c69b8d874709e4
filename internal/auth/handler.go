package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/ayush/favorites-app/internal/httpx"
	"github.com/ayush/favorites-app/internal/models"
	"github.com/ayush/favorites-app/internal/store"
	"github.com/ayush/favorites-app/internal/web"
)

// dummyHash is compared against on logins for unknown usernames.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not a real password"), bcrypt.DefaultCost)

// UserStore defines the interface for user persistence.
type UserStore interface {
	CreateUser(ctx context.Context, username, hashedPw, role string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

// Recorder records timeline entries without blocking the caller.
type Recorder interface {
	Record(owner, title, description string)
}

// CookieOptions controls the session cookie.
type CookieOptions struct {
	TTL    time.Duration
	Secure bool
}

// Handler holds auth-related HTTP handlers.
type Handler struct {
	users    UserStore
	sessions Sessions
	timeline Recorder
	cookie   CookieOptions
}

func NewHandler(users UserStore, sessions Sessions, timeline Recorder, cookie CookieOptions) *Handler {
	if cookie.TTL <= 0 {
		cookie.TTL = DefaultSessionTTL
	}
	return &Handler{users: users, sessions: sessions, timeline: timeline, cookie: cookie}
}

// LoginForm serves the login entry form.
func (h *Handler) LoginForm(w http.ResponseWriter, r *http.Request) {
	http.ServeFileFS(w, r, web.FS, "login.html")
}

// RegisterForm serves the registration entry form.
func (h *Handler) RegisterForm(w http.ResponseWriter, r *http.Request) {
	http.ServeFileFS(w, r, web.FS, "register.html")
}

// Register creates a new user with the default role and logs them in.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	creds, ok := readCredentials(w, r)
	if !ok {
		return
	}

	if _, err := h.users.GetUserByUsername(r.Context(), creds.Username); err == nil {
		httpx.WriteError(w, http.StatusConflict, "username already exists")
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		log.Printf("register %q: lookup: %v", creds.Username, err)
		httpx.WriteStoreError(w, err)
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("register %q: hash: %v", creds.Username, err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}

	user, err := h.users.CreateUser(r.Context(), creds.Username, string(hashed), models.RoleUser)
	if errors.Is(err, store.ErrDuplicate) {
		httpx.WriteError(w, http.StatusConflict, "username already exists")
		return
	}
	if err != nil {
		log.Printf("register %q: create: %v", creds.Username, err)
		httpx.WriteStoreError(w, err)
		return
	}

	if !h.startSession(w, r, user) {
		return
	}
	h.timeline.Record(user.Username, models.EventRegister, "")
	h.respondAuthenticated(w, r, http.StatusCreated, user)
}

// Login authenticates a user and creates a session.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	creds, ok := readCredentials(w, r)
	if !ok {
		return
	}

	user, err := h.users.GetUserByUsername(r.Context(), creds.Username)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Printf("login %q: lookup: %v", creds.Username, err)
		httpx.WriteStoreError(w, err)
		return
	}

	if !checkPassword(user, creds.Password) {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if !h.startSession(w, r, user) {
		return
	}
	h.timeline.Record(user.Username, models.EventLogin, "")
	h.respondAuthenticated(w, r, http.StatusOK, user)
}

// Logout destroys the current session. Storage errors are logged and the
// cookie is cleared regardless.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		if err := h.sessions.Delete(r.Context(), cookie.Value); err != nil {
			log.Printf("logout: %v", err)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		MaxAge:   -1,
	})
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// Home returns the identity and role of the current session.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	sess, ok := FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"username": sess.Username,
		"role":     sess.Role,
	})
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, user *models.User) bool {
	sid, err := h.sessions.Create(r.Context(), &models.Session{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
	})
	if err != nil {
		log.Printf("session for %q: %v", user.Username, err)
		httpx.WriteStoreError(w, err)
		return false
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(h.cookie.TTL / time.Second),
	})
	return true
}

// respondAuthenticated sends browsers posting the HTML form to /home and
// API clients the user as JSON.
func (h *Handler) respondAuthenticated(w http.ResponseWriter, r *http.Request, status int, user *models.User) {
	if !httpx.IsJSON(r) {
		http.Redirect(w, r, "/home", http.StatusSeeOther)
		return
	}
	httpx.WriteJSON(w, status, user)
}

func readCredentials(w http.ResponseWriter, r *http.Request) (models.Credentials, bool) {
	fields, err := httpx.Fields(r, "username", "password")
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid request body")
		return models.Credentials{}, false
	}
	creds := models.Credentials{
		Username: strings.TrimSpace(fields["username"]),
		Password: fields["password"],
	}
	if creds.Username == "" || creds.Password == "" {
		httpx.WriteError(w, http.StatusBadRequest, "username and password are required")
		return models.Credentials{}, false
	}
	if !models.UsernameFits(creds.Username) {
		httpx.WriteError(w, http.StatusBadRequest, fmt.Sprintf("username must be at most %d characters", models.MaxUsernameLen))
		return models.Credentials{}, false
	}
	return creds, true
}

// checkPassword verifies password against the stored bcrypt hash. Accounts
// whose stored credential is not a bcrypt hash never authenticate. A nil user
// is checked against dummyHash so unknown usernames cost the same time.
func checkPassword(user *models.User, password string) bool {
	if user == nil {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return false
	}
	if _, err := bcrypt.Cost([]byte(user.Password)); err != nil {
		log.Printf("login %q: stored credential is not a bcrypt hash, account needs migration", user.Username)
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) == nil
}
