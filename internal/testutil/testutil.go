package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/AnzeMiles69/pet-chat/internal/api"
	"github.com/AnzeMiles69/pet-chat/internal/config"
	"github.com/AnzeMiles69/pet-chat/internal/repository/store"
	"github.com/AnzeMiles69/pet-chat/internal/session"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"
)

// TestDB manages a testcontainers PostgreSQL instance
type TestDB struct {
	Container testcontainers.Container
	DB        *gorm.DB
	DSN       string
}

// NewPostgresDB starts a PostgreSQL testcontainer and opens the session
// schema on it. The test is skipped when no container runtime is reachable.
func NewPostgresDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()

	container, err := tcPostgres.Run(ctx,
		"postgres:15-alpine",
		tcPostgres.WithDatabase("test_chat_session"),
		tcPostgres.WithUsername("test"),
		tcPostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	testDB := &TestDB{Container: container}
	t.Cleanup(func() {
		testDB.Cleanup()
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}
	testDB.DSN = dsn

	db, err := store.NewConnection(dsn)
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}
	testDB.DB = db

	return testDB
}

// Cleanup terminates the container
func (tdb *TestDB) Cleanup() {
	if tdb.Container != nil {
		tdb.Container.Terminate(context.Background())
	}
}

// TestConfig returns a configuration suitable for testing
func TestConfig(apiURL string) *config.Config {
	return &config.Config{
		APIURL:                 apiURL,
		APITimeout:             5 * time.Second,
		SessionDSN:             ":memory:",
		Environment:            "test",
		AdminDenyDelay:         10 * time.Millisecond,
		AdminDialogCloseDelay:  10 * time.Millisecond,
		ReloadDelay:            0,
		BackupDir:              ".",
		ParticipantConcurrency: 4,
	}
}

// TestClient bundles a fake API with a client talking to it.
type TestClient struct {
	API     *FakeAPI
	Session *session.Store
	Client  *api.Client
	Config  *config.Config
}

// NewTestClient starts a fake API and returns an unauthenticated client
// pointed at it.
func NewTestClient(t *testing.T, opts ...api.Option) *TestClient {
	t.Helper()

	fake := NewFakeAPI(t)
	cfg := TestConfig(fake.URL())
	sess := session.NewMemoryStore()
	opts = append([]api.Option{api.WithTimeout(cfg.APITimeout)}, opts...)

	return &TestClient{
		API:     fake,
		Session: sess,
		Client:  api.New(fake.URL(), sess, opts...),
		Config:  cfg,
	}
}

// LoginAs logs the client in through the API and fails the test on error.
func (tc *TestClient) LoginAs(t *testing.T, username, password string) {
	t.Helper()
	if _, err := tc.Client.Login(context.Background(), username, password); err != nil {
		t.Fatalf("login as %s failed: %v", username, err)
	}
}

// LoginAdmin logs in as the seeded administrator.
func (tc *TestClient) LoginAdmin(t *testing.T) {
	t.Helper()
	tc.LoginAs(t, AdminUsername, AdminPassword)
}
