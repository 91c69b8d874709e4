package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ayush/favorites-app/internal/httpx"
	"github.com/ayush/favorites-app/internal/models"
	"github.com/ayush/favorites-app/internal/store"
)

// UserStore defines the user operations available to admins.
type UserStore interface {
	ListUsersByRole(ctx context.Context, role string) ([]models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	UpdateUser(ctx context.Context, id string, upd models.UserUpdate) (*models.User, error)
	DeleteUser(ctx context.Context, id string) error
}

// OwnedData is the per-user favorites and timeline data that follows a user
// through renames and deletion.
type OwnedData interface {
	ListFavorites(ctx context.Context, owner string) ([]models.Favorite, error)
	ListTimeline(ctx context.Context, owner string) ([]models.TimelineEntry, error)
	RenameOwner(ctx context.Context, from, to string) error
	DeleteOwner(ctx context.Context, owner string) error
}

// Revoker ends every live session of a user.
type Revoker interface {
	RevokeUser(ctx context.Context, userID string) error
}

// FileStore defines the interface for archive storage.
type FileStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
}

// Handler holds admin user-management handlers. Routes must be mounted
// behind RequireAuth and RequireAdmin.
type Handler struct {
	users    UserStore
	data     OwnedData
	sessions Revoker
	archive  FileStore // optional
}

func NewHandler(users UserStore, data OwnedData, sessions Revoker, archive FileStore) *Handler {
	return &Handler{users: users, data: data, sessions: sessions, archive: archive}
}

// ListUsers returns every non-admin user. When storage is unreachable the
// list is empty rather than an error.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListUsersByRole(r.Context(), models.RoleUser)
	if err != nil {
		log.Printf("list users: %v", err)
		if !errors.Is(err, store.ErrUnavailable) {
			httpx.WriteStoreError(w, err)
			return
		}
	}
	if users == nil {
		users = []models.User{}
	}
	httpx.WriteJSON(w, http.StatusOK, users)
}

// EditUser applies a partial update of username and/or role.
func (h *Handler) EditUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}

	var upd models.UserUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := validateUpdate(&upd); msg != "" {
		httpx.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	before, err := h.users.GetUserByID(r.Context(), id)
	if err != nil {
		h.storeFailure(w, "edit user "+id, err)
		return
	}

	after, err := h.users.UpdateUser(r.Context(), id, upd)
	if errors.Is(err, store.ErrDuplicate) {
		httpx.WriteError(w, http.StatusConflict, "username already exists")
		return
	}
	if err != nil {
		h.storeFailure(w, "edit user "+id, err)
		return
	}

	// Owned data is keyed by username. If it cannot follow the rename the edit
	// is reverted, otherwise a new account under the old name would inherit it.
	if after.Username != before.Username {
		if err := h.data.RenameOwner(r.Context(), before.Username, after.Username); err != nil {
			log.Printf("edit user %s: move data %q -> %q: %v", id, before.Username, after.Username, err)
			h.revertEdit(r.Context(), before, after.Username)
			httpx.WriteError(w, http.StatusServiceUnavailable, "storage unavailable")
			return
		}
	}
	// Existing sessions still carry the old identity.
	if err := h.sessions.RevokeUser(r.Context(), id); err != nil {
		log.Printf("edit user %s: revoke sessions: %v", id, err)
	}

	httpx.WriteJSON(w, http.StatusOK, after)
}

// DeleteUser archives and removes a user together with their favorites and
// timeline.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}

	user, err := h.users.GetUserByID(r.Context(), id)
	if err != nil {
		h.storeFailure(w, "delete user "+id, err)
		return
	}

	if h.archive != nil {
		h.archiveUser(r.Context(), user)
	}

	// The username is only released once nothing is left under it.
	if err := h.data.DeleteOwner(r.Context(), user.Username); err != nil {
		h.storeFailure(w, fmt.Sprintf("delete user %s: remove data of %q", id, user.Username), err)
		return
	}
	if err := h.users.DeleteUser(r.Context(), id); err != nil {
		h.storeFailure(w, "delete user "+id, err)
		return
	}
	if err := h.sessions.RevokeUser(r.Context(), id); err != nil {
		log.Printf("delete user %s: revoke sessions: %v", id, err)
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
}

func (h *Handler) revertEdit(ctx context.Context, before *models.User, newName string) {
	restore := models.UserUpdate{Username: &before.Username, Role: &before.Role}
	if _, err := h.users.UpdateUser(ctx, before.ID, restore); err != nil {
		log.Printf("edit user %s: restore %q: %v", before.ID, before.Username, err)
		return
	}
	// A partial move leaves some documents under the new name.
	if err := h.data.RenameOwner(ctx, newName, before.Username); err != nil {
		log.Printf("edit user %s: move data back %q -> %q: %v", before.ID, newName, before.Username, err)
	}
}

func (h *Handler) archiveUser(ctx context.Context, user *models.User) {
	snapshot := models.Archive{User: *user, ArchivedAt: time.Now().UTC()}

	favs, err := h.data.ListFavorites(ctx, user.Username)
	if err != nil {
		log.Printf("archive %q: favorites: %v", user.Username, err)
	}
	entries, err := h.data.ListTimeline(ctx, user.Username)
	if err != nil {
		log.Printf("archive %q: timeline: %v", user.Username, err)
	}
	snapshot.Favorites, snapshot.Timeline = favs, entries

	data, err := json.Marshal(snapshot)
	if err != nil {
		log.Printf("archive %q: encode: %v", user.Username, err)
		return
	}
	key := ArchiveKey(user.ID, snapshot.ArchivedAt)
	if err := h.archive.Upload(ctx, key, data, "application/json"); err != nil {
		log.Printf("archive %q: %v", user.Username, err)
	}
}

// ArchiveKey is the object key under which a deleted user's data is stored.
func ArchiveKey(userID string, at time.Time) string {
	return fmt.Sprintf("%s%s/%d.json", store.ArchivePrefix, userID, at.Unix())
}

func (h *Handler) storeFailure(w http.ResponseWriter, op string, err error) {
	if !errors.Is(err, store.ErrNotFound) {
		log.Printf("%s: %v", op, err)
	}
	httpx.WriteStoreError(w, err)
}

func userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid id")
		return "", false
	}
	return id.String(), true
}

func validateUpdate(upd *models.UserUpdate) string {
	if upd.Empty() {
		return "username or role is required"
	}
	if upd.Username != nil {
		name := strings.TrimSpace(*upd.Username)
		if name == "" {
			return "username must not be empty"
		}
		if !models.UsernameFits(name) {
			return fmt.Sprintf("username must be at most %d characters", models.MaxUsernameLen)
		}
		upd.Username = &name
	}
	if upd.Role != nil && !models.ValidRole(*upd.Role) {
		return "role must be admin or user"
	}
	return ""
}
