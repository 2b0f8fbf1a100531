package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gorm.io/gorm"

	"campus-library/internal/auth"
	"campus-library/internal/config"
	"campus-library/internal/database"
	"campus-library/internal/events"
	"campus-library/internal/handlers"
	"campus-library/internal/models"
	"campus-library/internal/repositories"
	"campus-library/internal/services"
	"campus-library/internal/workers"
)

type flags struct {
	driver  string
	dsn     string
	addr    string
	migrate bool

	reconcileEvery time.Duration
}

func main() {
	var f flags

	root := &cobra.Command{
		Use:          "libraryd",
		Short:        "Campus library circulation service",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&f.driver, "db-driver", "", "database driver: postgres or sqlite (env DB_DRIVER)")
	root.PersistentFlags().StringVar(&f.dsn, "database-url", "", "database DSN (env DATABASE_URL)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), f)
		},
	}
	serve.Flags().StringVar(&f.addr, "addr", "", "listen address (env SERVER_ADDR)")
	serve.Flags().BoolVar(&f.migrate, "migrate", false, "apply the schema before serving")
	serve.Flags().DurationVar(&f.reconcileEvery, "reconcile-every", time.Hour, "overdue reconciliation interval (0 disables)")

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, db, err := open(f)
			if err != nil {
				return err
			}
			defer database.Close(db)
			return database.Migrate(db)
		},
	}

	reconcile := &cobra.Command{
		Use:   "reconcile-overdue",
		Short: "Mark every unreturned loan past its due date as overdue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, db, err := open(f)
			if err != nil {
				return err
			}
			defer database.Close(db)
			lib := services.NewLibraryService(db, repositories.NewSet(db), services.Options{Policy: cfg.Circulation})
			n, err := lib.ReconcileOverdue(cmd.Context(), models.SystemActor)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d loan(s) marked overdue\n", n)
			return nil
		},
	}

	root.AddCommand(serve, migrate, reconcile, createUserCmd(&f))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// open loads the configuration, applies flag overrides and connects.
func open(f flags) (config.Config, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, fmt.Errorf("config: %w", err)
	}
	if f.driver != "" {
		cfg.Database.Driver = strings.ToLower(f.driver)
	}
	if f.dsn != "" {
		cfg.Database.DSN = f.dsn
	}
	if f.addr != "" {
		cfg.ServerAddr = f.addr
	}
	if err := cfg.Validate(); err != nil {
		return cfg, nil, fmt.Errorf("config: %w", err)
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, db, nil
}

func runServe(ctx context.Context, f flags) error {
	cfg, db, err := open(f)
	if err != nil {
		return err
	}
	defer database.Close(db)

	if f.migrate {
		if err := database.Migrate(db); err != nil {
			return err
		}
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get generic DB: %w", err)
	}

	repos := repositories.NewSet(db)
	hub := events.NewHub()
	tokens := auth.NewTokenService(cfg.Auth)

	libraryService := services.NewLibraryService(db, repos, services.Options{
		Policy:    cfg.Circulation,
		Publisher: hub,
	})
	accountService := services.NewAccountService(db, repos.Users)
	readerService := services.NewReaderService(db, repos, nil)

	if f.reconcileEvery > 0 {
		go workers.NewOverdueReconciler(libraryService, f.reconcileEvery).Run(ctx)
	}

	router := gin.Default()
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})

	handlers.RegisterRoutes(router, handlers.Deps{
		Library:  libraryService,
		Accounts: accountService,
		Reader:   readerService,
		Tokens:   tokens,
		Lookup: func(ctx context.Context, id uuid.UUID) (*models.User, error) {
			return repos.Users.GetByID(db.WithContext(ctx), id)
		},
		Hub: hub,
		Ready: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			return sqlDB.PingContext(ctx)
		},
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on %s", cfg.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Printf("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
	log.Println("server stopped")
	return nil
}

func createUserCmd(f *flags) *cobra.Command {
	var in services.NewUser
	var role string

	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create a member account (use --role admin to bootstrap a librarian)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			in.Role = models.UserRole(strings.ToLower(role))

			password, err := readPassword(fmt.Sprintf("Enter password for %s: ", in.Username))
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
			in.Password = password

			_, db, err := open(*f)
			if err != nil {
				return err
			}
			defer database.Close(db)

			accounts := services.NewAccountService(db, repositories.NewUserRepository(db))
			u, err := accounts.CreateUser(cmd.Context(), models.SystemActor, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s '%s' with ID %s\n", u.Role, u.Username, u.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Username, "username", "", "login name")
	cmd.Flags().StringVar(&in.Email, "email", "", "email address")
	cmd.Flags().StringVar(&in.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&in.LastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&role, "role", string(models.UserRoleStudent), "student or admin")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("first-name")
	_ = cmd.MarkFlagRequired("last-name")
	return cmd
}

// readPassword reads a password without echo. Piped input is read as a line.
func readPassword(prompt string) (string, error) {
	fd := int(syscall.Stdin)
	if !term.IsTerminal(fd) {
		var line string
		if _, err := fmt.Fscanln(os.Stdin, &line); err != nil {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}
	fmt.Print(prompt)
	raw, err := term.ReadPassword(fd)
	if err != nil {
		return "", err
	}
	fmt.Println()
	return strings.TrimSpace(string(raw)), nil
}
