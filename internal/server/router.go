package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ayush/favorites-app/internal/admin"
	"github.com/ayush/favorites-app/internal/auth"
	"github.com/ayush/favorites-app/internal/favorites"
	"github.com/ayush/favorites-app/internal/middleware"
	"github.com/ayush/favorites-app/internal/timeline"
)

// Handlers groups the HTTP handlers mounted by NewRouter.
type Handlers struct {
	Auth      *auth.Handler
	Favorites *favorites.Handler
	Timeline  *timeline.Handler
	Admin     *admin.Handler
}

// Options tunes the middleware stack.
type Options struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

// DefaultMaxBodyBytes bounds request bodies when Options.MaxBodyBytes is unset.
const DefaultMaxBodyBytes = 1 << 20

// NewRouter builds the application's routes and middleware.
func NewRouter(h Handlers, sessions auth.Sessions, opts Options) http.Handler {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(opts.RequestTimeout))
	r.Use(chimw.RequestSize(opts.MaxBodyBytes))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/home", http.StatusSeeOther)
	})

	// Public
	r.Get("/login", h.Auth.LoginForm)
	r.Post("/login", h.Auth.Login)
	r.Get("/register", h.Auth.RegisterForm)
	r.Post("/register", h.Auth.Register)
	r.Get("/logout", h.Auth.Logout)

	// Authenticated users
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(sessions))

		r.Get("/home", h.Auth.Home)

		r.Get("/favorites", h.Favorites.List)
		r.Post("/addFavorite", h.Favorites.Add)
		r.Get("/addFavorite/{name}", h.Favorites.Add)
		r.Post("/addFavorite/{name}", h.Favorites.Add)
		r.Delete("/deleteFavorite/{id}", h.Favorites.Delete)

		r.Get("/timeline", h.Timeline.List)
		r.Delete("/deleteTimeline/{id}", h.Timeline.Delete)

		// Admins
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin)

			r.Get("/users", h.Admin.ListUsers)
			r.Put("/editUser/{id}", h.Admin.EditUser)
			r.Delete("/deleteUser/{id}", h.Admin.DeleteUser)
		})
	})

	return r
}
