package timeline

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ayush/favorites-app/internal/auth"
	"github.com/ayush/favorites-app/internal/httpx"
	"github.com/ayush/favorites-app/internal/models"
	"github.com/ayush/favorites-app/internal/store"
)

// EntryStore defines the owner-scoped timeline persistence.
type EntryStore interface {
	ListTimeline(ctx context.Context, owner string) ([]models.TimelineEntry, error)
	DeleteTimeline(ctx context.Context, owner, id string) error
}

// Handler holds timeline HTTP handlers.
type Handler struct {
	entries EntryStore
}

func NewHandler(entries EntryStore) *Handler {
	return &Handler{entries: entries}
}

// List returns the current user's entries, oldest first. When storage is
// unreachable the list is empty rather than an error.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.FromContext(r.Context())

	entries, err := h.entries.ListTimeline(r.Context(), sess.Username)
	if err != nil {
		log.Printf("list timeline for %q: %v", sess.Username, err)
		if !errors.Is(err, store.ErrUnavailable) {
			httpx.WriteStoreError(w, err)
			return
		}
	}
	if entries == nil {
		entries = []models.TimelineEntry{}
	}
	httpx.WriteJSON(w, http.StatusOK, entries)
}

// Delete removes one of the current user's entries.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.FromContext(r.Context())

	id := chi.URLParam(r, "id")
	if _, err := store.ParseID(id); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.entries.DeleteTimeline(r.Context(), sess.Username, id); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("delete timeline %s for %q: %v", id, sess.Username, err)
		}
		httpx.WriteStoreError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
}
