// Package testutil provides in-memory stand-ins for the Postgres, Mongo,
// Redis and MinIO stores so handlers can be exercised without services.
// They mirror the store package's error contract.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ayush/favorites-app/internal/models"
	"github.com/ayush/favorites-app/internal/store"
)

// Outage makes a fake report store.ErrUnavailable while set.
type Outage struct {
	down atomic.Bool
}

func (o *Outage) SetDown(down bool) { o.down.Store(down) }

func (o *Outage) check(op string) error {
	if o.down.Load() {
		return fmt.Errorf("%s: %w", op, store.ErrUnavailable)
	}
	return nil
}

// Users is an in-memory credential store.
type Users struct {
	Outage
	mu    sync.Mutex
	users map[string]models.User
}

func NewUsers() *Users {
	return &Users{users: make(map[string]models.User)}
}

func (s *Users) CreateUser(ctx context.Context, username, hashedPw, role string) (*models.User, error) {
	if err := s.check("create user"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return nil, store.ErrDuplicate
		}
	}
	u := models.User{
		ID:        uuid.NewString(),
		Username:  username,
		Password:  hashedPw,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
	s.users[u.ID] = u
	return &u, nil
}

func (s *Users) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	if err := s.check("get user by username"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Users) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	if err := s.check("get user by id"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (s *Users) ListUsersByRole(ctx context.Context, role string) ([]models.User, error) {
	if err := s.check("list users"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.User
	for _, u := range s.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *Users) UpdateUser(ctx context.Context, id string, upd models.UserUpdate) (*models.User, error) {
	if err := s.check("update user"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if upd.Username != nil {
		for otherID, other := range s.users {
			if otherID != id && other.Username == *upd.Username {
				return nil, store.ErrDuplicate
			}
		}
		u.Username = *upd.Username
	}
	if upd.Role != nil {
		u.Role = *upd.Role
	}
	s.users[id] = u
	return &u, nil
}

func (s *Users) DeleteUser(ctx context.Context, id string) error {
	if err := s.check("delete user"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.users, id)
	return nil
}

// Docs is an in-memory favorites and timeline store.
type Docs struct {
	Outage
	mu        sync.Mutex
	favorites []models.Favorite
	timeline  []models.TimelineEntry
}

func NewDocs() *Docs {
	return &Docs{}
}

func (s *Docs) InsertFavorite(ctx context.Context, fav *models.Favorite) (*models.Favorite, error) {
	if err := s.check("insert favorite"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.favorites {
		if f.Owner == fav.Owner && f.Name == fav.Name {
			return nil, store.ErrDuplicate
		}
	}
	fav.ID = primitive.NewObjectID()
	fav.CreatedAt = time.Now().UTC()
	s.favorites = append(s.favorites, *fav)
	return fav, nil
}

func (s *Docs) ListFavorites(ctx context.Context, owner string) ([]models.Favorite, error) {
	if err := s.check("list favorites"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Favorite
	for _, f := range s.favorites {
		if f.Owner == owner {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *Docs) DeleteFavorite(ctx context.Context, owner, id string) (*models.Favorite, error) {
	oid, err := store.ParseID(id)
	if err != nil {
		return nil, err
	}
	if err := s.check("delete favorite"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, f := range s.favorites {
		if f.ID == oid && f.Owner == owner {
			s.favorites = append(s.favorites[:i], s.favorites[i+1:]...)
			return &f, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Docs) InsertTimeline(ctx context.Context, entry *models.TimelineEntry) error {
	if err := s.check("insert timeline"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = primitive.NewObjectID()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	s.timeline = append(s.timeline, *entry)
	return nil
}

// ListTimeline returns entries in chronological order, insertion order on ties.
func (s *Docs) ListTimeline(ctx context.Context, owner string) ([]models.TimelineEntry, error) {
	if err := s.check("list timeline"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TimelineEntry
	for _, e := range s.timeline {
		if e.Owner == owner {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *Docs) DeleteTimeline(ctx context.Context, owner, id string) error {
	oid, err := store.ParseID(id)
	if err != nil {
		return err
	}
	if err := s.check("delete timeline"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.timeline {
		if e.ID == oid && e.Owner == owner {
			s.timeline = append(s.timeline[:i], s.timeline[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Docs) RenameOwner(ctx context.Context, from, to string) error {
	if err := s.check("rename owner"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.favorites {
		if s.favorites[i].Owner == from {
			s.favorites[i].Owner = to
		}
	}
	for i := range s.timeline {
		if s.timeline[i].Owner == from {
			s.timeline[i].Owner = to
		}
	}
	return nil
}

func (s *Docs) DeleteOwner(ctx context.Context, owner string) error {
	if err := s.check("delete owner"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	favs := s.favorites[:0]
	for _, f := range s.favorites {
		if f.Owner != owner {
			favs = append(favs, f)
		}
	}
	s.favorites = favs
	entries := s.timeline[:0]
	for _, e := range s.timeline {
		if e.Owner != owner {
			entries = append(entries, e)
		}
	}
	s.timeline = entries
	return nil
}

// Sessions is an in-memory session store.
type Sessions struct {
	Outage
	mu       sync.Mutex
	sessions map[string]models.Session
}

func NewSessions() *Sessions {
	return &Sessions{sessions: make(map[string]models.Session)}
}

func (s *Sessions) Create(ctx context.Context, sess *models.Session) (string, error) {
	if err := s.check("create session"); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	token := uuid.NewString()
	sess.CreatedAt = time.Now().UTC()
	s.sessions[token] = *sess
	return token, nil
}

func (s *Sessions) Get(ctx context.Context, token string) (*models.Session, error) {
	if err := s.check("get session"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

func (s *Sessions) Delete(ctx context.Context, token string) error {
	if err := s.check("delete session"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

func (s *Sessions) RevokeUser(ctx context.Context, userID string) error {
	if err := s.check("revoke sessions"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, sess := range s.sessions {
		if sess.UserID == userID {
			delete(s.sessions, token)
		}
	}
	return nil
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Files is an in-memory object store.
type Files struct {
	mu      sync.Mutex
	Objects map[string][]byte
}

func NewFiles() *Files {
	return &Files{Objects: make(map[string][]byte)}
}

func (f *Files) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Objects[key] = append([]byte(nil), data...)
	return nil
}

// Keys returns the stored object keys.
func (f *Files) Keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.Objects))
	for k := range f.Objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Recorded is a synchronous timeline recorder for handler tests.
type Recorded struct {
	mu      sync.Mutex
	Entries []models.TimelineEntry
}

func (r *Recorded) Record(owner, title, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Entries = append(r.Entries, models.TimelineEntry{
		Owner:       owner,
		Title:       title,
		Description: description,
		Timestamp:   time.Now().UTC(),
	})
}

// Titles returns the recorded titles in order.
func (r *Recorded) Titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.Entries))
	for i, e := range r.Entries {
		out[i] = e.Title
	}
	return out
}
