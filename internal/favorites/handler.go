package favorites

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ayush/favorites-app/internal/auth"
	"github.com/ayush/favorites-app/internal/httpx"
	"github.com/ayush/favorites-app/internal/models"
	"github.com/ayush/favorites-app/internal/store"
)

const maxNameLen = 200

// FavoriteStore defines the owner-scoped favorites persistence.
type FavoriteStore interface {
	InsertFavorite(ctx context.Context, fav *models.Favorite) (*models.Favorite, error)
	ListFavorites(ctx context.Context, owner string) ([]models.Favorite, error)
	DeleteFavorite(ctx context.Context, owner, id string) (*models.Favorite, error)
}

// Recorder records timeline entries without blocking the caller.
type Recorder interface {
	Record(owner, title, description string)
}

// Handler holds favorites HTTP handlers.
type Handler struct {
	favorites FavoriteStore
	timeline  Recorder
}

func NewHandler(favorites FavoriteStore, timeline Recorder) *Handler {
	return &Handler{favorites: favorites, timeline: timeline}
}

// List returns the current user's favorites. When storage is unreachable the
// list is empty rather than an error.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.FromContext(r.Context())

	favs, err := h.favorites.ListFavorites(r.Context(), sess.Username)
	if err != nil {
		log.Printf("list favorites for %q: %v", sess.Username, err)
		if !errors.Is(err, store.ErrUnavailable) {
			httpx.WriteStoreError(w, err)
			return
		}
	}
	if favs == nil {
		favs = []models.Favorite{}
	}
	httpx.WriteJSON(w, http.StatusOK, favs)
}

// Add creates a favorite named by the {name} path segment or the request
// body. A user cannot hold two favorites with the same name.
func (h *Handler) Add(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.FromContext(r.Context())

	name, err := favoriteName(r)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if name == "" || len(name) > maxNameLen {
		httpx.WriteError(w, http.StatusBadRequest, "name is required and must be at most 200 bytes")
		return
	}

	fav, err := h.favorites.InsertFavorite(r.Context(), &models.Favorite{Name: name, Owner: sess.Username})
	if errors.Is(err, store.ErrDuplicate) {
		httpx.WriteError(w, http.StatusConflict, "favorite already exists")
		return
	}
	if err != nil {
		log.Printf("add favorite %q for %q: %v", name, sess.Username, err)
		httpx.WriteStoreError(w, err)
		return
	}

	h.timeline.Record(sess.Username, models.EventAddedFavorite, fav.Name)
	httpx.WriteJSON(w, http.StatusCreated, fav)
}

// Delete removes one of the current user's favorites. Favorites of other
// users are reported as not found.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.FromContext(r.Context())

	id := chi.URLParam(r, "id")
	if _, err := store.ParseID(id); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid id")
		return
	}

	fav, err := h.favorites.DeleteFavorite(r.Context(), sess.Username, id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("delete favorite %s for %q: %v", id, sess.Username, err)
		}
		httpx.WriteStoreError(w, err)
		return
	}

	h.timeline.Record(sess.Username, models.EventDeletedFavorite, fav.Name)
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
}

// favoriteName reads the name from the path or the body. chi matches on the
// escaped path only when RawPath is set, so the segment is decoded once here
// in that case and is already decoded otherwise.
func favoriteName(r *http.Request) (string, error) {
	if name := chi.URLParam(r, "name"); name != "" {
		if r.URL.RawPath != "" {
			var err error
			if name, err = url.PathUnescape(name); err != nil {
				return "", err
			}
		}
		return strings.TrimSpace(name), nil
	}
	fields, err := httpx.Fields(r, "name")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(fields["name"]), nil
}
