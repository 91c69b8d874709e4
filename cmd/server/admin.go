package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/ayush/favorites-app/internal/config"
	"github.com/ayush/favorites-app/internal/models"
	"github.com/ayush/favorites-app/internal/store"
)

var (
	adminUsername string
	adminPassword string
)

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Creates an admin account, or promotes an existing user to admin",
	Long: `Creates an admin account. Registration only ever creates plain users,
so the first admin has to be made here. If the username already exists
the account is promoted and its password is left unchanged.

The password may also be given in ADMIN_PASSWORD.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if adminPassword == "" {
			adminPassword = os.Getenv("ADMIN_PASSWORD")
		}
		return createAdmin(cmd.Context(), config.Load(), strings.TrimSpace(adminUsername), adminPassword)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Applies database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if cfg.PostgresDSN == "" {
			return errors.New("POSTGRES_DSN is required")
		}
		return store.Migrate(cfg.PostgresDSN)
	},
}

func init() {
	createAdminCmd.Flags().StringVarP(&adminUsername, "username", "u", "", "admin username (required)")
	createAdminCmd.Flags().StringVarP(&adminPassword, "password", "p", "", "admin password")
	_ = createAdminCmd.MarkFlagRequired("username")

	rootCmd.AddCommand(createAdminCmd)
	rootCmd.AddCommand(migrateCmd)
}

func createAdmin(ctx context.Context, cfg *config.Config, username, password string) error {
	if username == "" {
		return errors.New("username must not be empty")
	}
	if !models.UsernameFits(username) {
		return fmt.Errorf("username must be at most %d characters", models.MaxUsernameLen)
	}

	pool, err := openPostgres(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer pool.Close()
	users := store.NewPostgresStore(pool)

	existing, err := users.GetUserByUsername(ctx, username)
	switch {
	case err == nil:
		role := models.RoleAdmin
		if _, err := users.UpdateUser(ctx, existing.ID, models.UserUpdate{Role: &role}); err != nil {
			return fmt.Errorf("promote %q: %w", username, err)
		}
		fmt.Printf("promoted %s (%s) to admin\n", username, existing.ID)
		return nil
	case !errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("lookup %q: %w", username, err)
	}

	if password == "" {
		return errors.New("password is required for a new account")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user, err := users.CreateUser(ctx, username, string(hashed), models.RoleAdmin)
	if err != nil {
		return fmt.Errorf("create %q: %w", username, err)
	}
	fmt.Printf("created admin %s (%s)\n", user.Username, user.ID)
	return nil
}
