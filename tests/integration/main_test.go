//go:build integration

package integration

import (
	"context"
	"log"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/yourlook/safeline/internal/app"
	"github.com/yourlook/safeline/internal/config"
	"github.com/yourlook/safeline/internal/testutil"
)

var (
	testServer    *httptest.Server
	testClient    *testutil.Client
	testValidator *testutil.OpenAPIValidator
	testDB        *pgxpool.Pool

	// Mailpit for E2E email alert testing
	mailpitContainer *testutil.MailpitContainer
	mailpitClient    *MailpitClient
)

// OpenAPI spec path relative to the tests/integration directory.
const openAPISpecPath = "../../api/openapi/openapi.yaml"

// newTestClient creates a new test client with OpenAPI validation enabled.
// Use this at the beginning of each test that makes API calls.
func newTestClient(t *testing.T) *testutil.Client {
	t.Helper()
	client := testutil.NewClientWithValidator(testServer.URL, testValidator)
	client.SetT(t)
	return client
}

// newTestClientWithoutValidation creates a test client without OpenAPI validation.
// Use this for tests that intentionally test error responses or invalid scenarios.
func newTestClientWithoutValidation() *testutil.Client {
	return testutil.NewClient(testServer.URL)
}

func TestMain(m *testing.M) {
	ctx := context.Background()

	pgContainer, err := testutil.NewPostgresContainer(ctx)
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			log.Printf("terminate postgres: %v", err)
		}
	}()

	// Start Mailpit container (for E2E email alert tests)
	mailpitContainer, err = testutil.NewMailpitContainer(ctx)
	if err != nil {
		log.Fatalf("start mailpit: %v", err)
	}
	defer func() {
		if err := mailpitContainer.Terminate(ctx); err != nil {
			log.Printf("terminate mailpit: %v", err)
		}
	}()

	mailpitClient = NewMailpitClient(
		mailpitContainer.APIHost,
		mailpitContainer.APIPort,
	)

	cfg := config.Default()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Server.MetricsAddr = "127.0.0.1:0"
	cfg.Database.DSN = pgContainer.ConnectionString
	cfg.Database.MaxConns = 5
	cfg.Database.MigrationsPath = "../../migrations"
	cfg.Log.Level = "error"
	cfg.Log.Format = "text"
	cfg.JWT.Secret = "test-secret-key"
	cfg.JWT.AccessTokenDuration = 15 * time.Minute
	cfg.JWT.RefreshTokenDuration = 24 * time.Hour
	cfg.Cookie.Secure = false // not using HTTPS in tests

	// Real email delivery through Mailpit; telegram stays disabled.
	cfg.Alerts.Email.Enabled = true
	cfg.Alerts.Email.SMTPHost = mailpitContainer.SMTPHost
	cfg.Alerts.Email.SMTPPort = mailpitContainer.SMTPPort
	cfg.Alerts.Email.FromAddress = "alerts@safeline.test"
	cfg.Alerts.Worker.PollInterval = 100 * time.Millisecond

	application, err := app.New(&cfg)
	if err != nil {
		log.Fatalf("create app: %v", err)
	}

	// Create a direct DB connection for tests that need it
	testDB, err = pgxpool.New(ctx, pgContainer.ConnectionString)
	if err != nil {
		log.Fatalf("create test db pool: %v", err)
	}

	testServer = httptest.NewServer(application.Router())

	// Load OpenAPI validator
	testValidator, err = testutil.LoadOpenAPIValidator(openAPISpecPath)
	if err != nil {
		log.Fatalf("load OpenAPI validator: %v", err)
	}

	// Create client with OpenAPI validation enabled
	testClient = testutil.NewClientWithValidator(testServer.URL, testValidator)

	code := m.Run()

	testServer.Close()
	testDB.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown app: %v", err)
	}

	os.Exit(code)
}
