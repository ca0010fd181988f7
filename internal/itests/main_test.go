package itests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"natours/internal/auth"
	"natours/internal/config"
	"natours/internal/db"
	"natours/internal/mail"
	"natours/internal/model"
	"natours/internal/router"
	"natours/internal/store"

	"golang.org/x/crypto/bcrypt"
)

var (
	testBaseURL string
	testStore   store.Store
	adminToken  string
	mailbox     = &capture{}
)

// capture keeps the last message per recipient.
type capture struct {
	mu   sync.Mutex
	last map[string]mail.Message
}

func (c *capture) Send(_ context.Context, msg mail.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		c.last = map[string]mail.Message{}
	}
	c.last[msg.To] = msg
	return nil
}

func (c *capture) For(to string) mail.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last[to]
}

func TestMain(m *testing.M) {
	cfg := config.LoadConfig()
	db.ConnectTimeout = 5 * time.Second

	teardown, err := SetupTestDB(cfg.Postgres.DSN)
	if err != nil {
		log.Printf("postgres not available, skipping integration tests: %v", err)
		os.Exit(0)
	}

	code, err := run(m, cfg)
	if err != nil {
		log.Printf("bootstrap failed: %v", err)
		code = 1
	}
	if err := teardown(); err != nil {
		log.Printf("drop test DB failed: %v", err)
	}
	os.Exit(code)
}

func run(m *testing.M, cfg *config.Config) (int, error) {
	if err := model.InitRegistry(cfg.SchemasDir); err != nil {
		return 0, err
	}
	auth.PasswordCost = bcrypt.MinCost

	cfg.Env = "development"
	cfg.RateLimit.Max = 10_000
	cfg.Auth.JWT.Secret = "itests-secret"
	issuer, err := auth.NewIssuer(cfg.Auth.JWT)
	if err != nil {
		return 0, err
	}

	testStore = store.NewPostgres(db.Pool)
	srv := httptest.NewServer(router.New(router.Deps{
		Config: cfg,
		Store:  testStore,
		Issuer: issuer,
		Mailer: mailbox,
	}))
	defer srv.Close()
	testBaseURL = srv.URL

	if adminToken, err = createAdmin(); err != nil {
		return 0, err
	}
	return m.Run(), nil
}

// createAdmin inserts an admin directly, since signup never grants roles,
// and logs in through the API.
func createAdmin() (string, error) {
	users := model.MustGet("users")
	doc, err := users.Prepare(model.Document{
		"name":     "Integration Admin",
		"email":    "admin@itests.dev",
		"password": "admin-pass",
		"role":     "admin",
	}, model.Stamp())
	if err != nil {
		return "", err
	}
	if doc["password"], err = auth.HashPassword("admin-pass"); err != nil {
		return "", err
	}
	if _, err := testStore.Collection(users).Insert(context.Background(), doc); err != nil {
		return "", err
	}

	code, body, err := request(http.MethodPost, "/api/v1/users/login", map[string]any{
		"email": "admin@itests.dev", "password": "admin-pass",
	}, "")
	if err != nil {
		return "", err
	}
	if code != http.StatusOK {
		return "", fmt.Errorf("admin login: %d %v", code, body)
	}
	token, _ := body["token"].(string)
	return token, nil
}

func request(method, path string, payload any, token string) (int, map[string]any, error) {
	var rd io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, testBaseURL+path, rd)
	if err != nil {
		return 0, nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	if len(raw) == 0 {
		return resp.StatusCode, nil, nil
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return 0, nil, fmt.Errorf("decode %q: %w", raw, err)
	}
	return resp.StatusCode, body, nil
}

// call is request for tests: transport errors fail the test.
func call(t *testing.T, method, path string, payload any, token string) (int, map[string]any) {
	t.Helper()
	code, body, err := request(method, path, payload, token)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return code, body
}

func dataDoc(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	data, _ := body["data"].(map[string]any)
	doc, ok := data["data"].(map[string]any)
	if !ok {
		t.Fatalf("no data.data document in %v", body)
	}
	return doc
}

func dataList(t *testing.T, body map[string]any) []any {
	t.Helper()
	data, _ := body["data"].(map[string]any)
	list, ok := data["data"].([]any)
	if !ok {
		t.Fatalf("no data.data list in %v", body)
	}
	return list
}

// signup registers a fresh user and returns its id and token.
func signup(t *testing.T, name, email string) (string, string) {
	t.Helper()
	code, body := call(t, http.MethodPost, "/api/v1/users/signup", map[string]any{
		"name": name, "email": email, "password": "pass1234", "passwordConfirm": "pass1234",
	}, "")
	if code != http.StatusCreated {
		t.Fatalf("signup %s: %d %v", email, code, body)
	}
	user := body["data"].(map[string]any)["user"].(map[string]any)
	return user["_id"].(string), body["token"].(string)
}

// createTour posts a valid tour as admin and returns its id.
func createTour(t *testing.T, name string, price float64, difficulty string) string {
	t.Helper()
	code, body := call(t, http.MethodPost, "/api/v1/tours", map[string]any{
		"name":         name,
		"duration":     5,
		"maxGroupSize": 10,
		"difficulty":   difficulty,
		"price":        price,
		"summary":      "An integration test tour",
		"imageCover":   "cover.jpg",
	}, adminToken)
	if code != http.StatusCreated {
		t.Fatalf("create tour %s: %d %v", name, code, body)
	}
	return dataDoc(t, body)["_id"].(string)
}
