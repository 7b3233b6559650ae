package tests

import (
	"context"
	"database/sql"
	"fmt"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/familyassistant/server/internal/auth"
	"github.com/familyassistant/server/internal/config"
	"github.com/familyassistant/server/internal/db"
	"github.com/familyassistant/server/internal/household"
	httphandler "github.com/familyassistant/server/internal/http"
	"github.com/familyassistant/server/internal/http/handlers"
	"github.com/familyassistant/server/internal/metrics"
	"github.com/familyassistant/server/internal/middleware"
	"github.com/familyassistant/server/internal/repo"
)

// serverOptions tweak the stack built by newTestServer
type serverOptions struct {
	devMode   bool
	authLimit int
}

// testServer holds the server and DB for integration tests
type testServer struct {
	Server *httptest.Server
	DB     *sql.DB
	Store  *repo.PostgresStore
	Auth   *auth.Service
}

// requireDatabase skips the test unless DATABASE_URL points at a test database
func requireDatabase(t *testing.T) {
	t.Helper()
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set; skipping database test")
	}
}

// testConfig reads DATABASE_URL from the environment and fills everything else with test values
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadFrom(map[string]string{
		"DATABASE_URL":       os.Getenv("DATABASE_URL"),
		"RESET_TOKEN_SECRET": "test-reset-secret-at-least-32-characters",
		"RESET_CODE_SALT":    "test-code-salt",
		"BCRYPT_COST":        "4",
	})
	require.NoError(t, err, "config load must succeed for integration test")
	return cfg
}

// openDatabase opens the pool, runs the embedded migrations and registers cleanup
func openDatabase(t *testing.T, cfg *config.Config) *sql.DB {
	t.Helper()
	database, err := db.Open(context.Background(), cfg.DatabaseURL, db.DefaultPoolOptions, zerolog.Nop())
	require.NoError(t, err, "database open must succeed; check DATABASE_URL and that test DB exists")
	t.Cleanup(func() { database.Close() })

	require.NoError(t, db.Migrate(database, zerolog.Nop()), "migrations must run successfully")
	return database
}

func newAuthService(cfg *config.Config, store repo.Store, devMode bool) *auth.Service {
	log := zerolog.Nop()
	return auth.NewService(
		store,
		auth.NewPasswordHasher(cfg.BcryptCost),
		auth.NewResetTokenService(cfg.ResetTokenSecret),
		auth.NewLogSender(log),
		auth.Options{
			SessionTTL:       cfg.SessionTTL,
			ResetCodeTTL:     cfg.ResetCodeTTL,
			MaxResetAttempts: cfg.ResetMaxAttempts,
			ResetCodeSalt:    cfg.ResetCodeSalt,
			DevMode:          devMode,
		},
		log,
	)
}

func newTestServer(t *testing.T, opts serverOptions) *testServer {
	t.Helper()
	requireDatabase(t)
	if opts.authLimit == 0 {
		opts.authLimit = 1000
	}

	cfg := testConfig(t)
	database := openDatabase(t, cfg)
	store := repo.NewPostgresStore(database)
	log := zerolog.Nop()

	collectors := metrics.New()
	authService := newAuthService(cfg, store, opts.devMode).WithEvents(collectors)
	limiter := middleware.NewRateLimiter(time.Minute, opts.authLimit)
	t.Cleanup(limiter.Stop)

	router := httphandler.NewRouter(httphandler.Deps{
		Auth:        authService,
		AuthHandler: handlers.NewAuthHandler(authService, log),
		Members:     handlers.NewMembersHandler(household.NewMemberService(store, log), log),
		Tasks:       handlers.NewTasksHandler(household.NewTaskService(store, log), log),
		Health:      handlers.NewHealthHandler(store, log),
		Metrics:     collectors,
		AuthLimiter: limiter,
		Log:         log,
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testServer{Server: server, DB: database, Store: store, Auth: authService}
}

func (s *testServer) BaseURL() string { return s.Server.URL }

func (s *testServer) Truncate(t *testing.T) {
	t.Helper()
	require.NoError(t, TruncateTables(context.Background(), s.DB), "truncate tables")
}

// TruncateTables empties every application table for a clean test state.
func TruncateTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, "TRUNCATE TABLE tasks, family_members, families, password_resets, sessions, users RESTART IDENTITY CASCADE")
	if err != nil {
		return fmt.Errorf("truncate tables: %w", err)
	}
	return nil
}
