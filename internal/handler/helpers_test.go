package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"natours/internal"
	"natours/internal/auth"
	"natours/internal/config"
	"natours/internal/mail"
	"natours/internal/model"
	"natours/internal/store"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	auth.PasswordCost = bcrypt.MinCost
}

type outbox struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (o *outbox) Send(_ context.Context, msg mail.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.sent = append(o.sent, msg)
	return nil
}

func (o *outbox) last() mail.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.sent) == 0 {
		return mail.Message{}
	}
	return o.sent[len(o.sent)-1]
}

type testEnv struct {
	store    *store.Memory
	factory  *Factory
	auth     *Auth
	mail     *outbox
	handler  http.Handler
	tours    *model.Model
	users    *model.Model
	reviews  *model.Model
	bookings *model.Model
}

func loadRegistry(t *testing.T) {
	t.Helper()
	root, err := internal.FindRepoRoot()
	if err != nil {
		t.Fatalf("FindRepoRoot: %v", err)
	}
	if err := model.InitRegistry(filepath.Join(root, "schemas")); err != nil {
		t.Fatalf("InitRegistry: %v", err)
	}
}

// newEnv wires the handlers onto a chi router the same way the application
// router does, over an in-memory store and a ticking clock.
func newEnv(t *testing.T) *testEnv {
	t.Helper()
	loadRegistry(t)

	saved := model.Stamp
	var mu sync.Mutex
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	model.Stamp = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}
	t.Cleanup(func() { model.Stamp = saved })

	issuer, err := auth.NewIssuer(config.JWTConfig{Secret: "handler-test-secret", ExpiresIn: time.Hour})
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}

	e := &testEnv{
		store:    store.NewMemory(),
		mail:     &outbox{},
		tours:    model.MustGet("tours"),
		users:    model.MustGet("users"),
		reviews:  model.MustGet("reviews"),
		bookings: model.MustGet("bookings"),
	}
	e.factory = NewFactory(e.store)
	e.factory.AfterWrite[e.reviews.Name] = TourRatings(e.store, e.tours, e.reviews)
	e.auth = &Auth{
		Store:         e.store,
		Users:         e.users,
		Issuer:        issuer,
		Mailer:        e.mail,
		CookieExpires: time.Hour,
	}
	users := &Users{Store: e.store, Model: e.users}
	f, a := e.factory, e.auth
	protect := Gate(a.Protect)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/tours", func(r chi.Router) {
			r.With(Gate(AliasTopTours)).Get("/top-5-cheap", Handle(f.GetAll(e.tours)))
			r.Get("/tour-stats", Handle(TourStats(e.store, e.tours)))
			r.Get("/monthly-plan/{year}", Handle(MonthlyPlan(e.store, e.tours)))
			r.Get("/", Handle(f.GetAll(e.tours)))
			r.Get("/{id}", Handle(f.GetOne(e.tours, model.PopulateSpec{Path: "reviews"})))
			r.Group(func(r chi.Router) {
				r.Use(protect, Gate(RestrictTo("admin", "lead-guide")))
				r.Post("/", Handle(f.CreateOne(e.tours)))
				r.Patch("/{id}", Handle(f.UpdateOne(e.tours)))
				r.Delete("/{id}", Handle(f.DeleteOne(e.tours)))
			})
			r.Route("/{tourId}/reviews", func(r chi.Router) {
				r.Use(protect)
				r.Get("/", Handle(f.GetAll(e.reviews)))
				r.With(Gate(RestrictTo("user")), Gate(SetTourUserIDs), Gate(AllowIfHaveBooked(e.store, e.bookings))).
					Post("/", Handle(f.CreateOne(e.reviews)))
			})
		})
		r.Route("/reviews", func(r chi.Router) {
			r.Use(protect)
			r.Delete("/{id}", Handle(f.DeleteOne(e.reviews)))
		})
		r.Route("/users", func(r chi.Router) {
			r.Post("/signup", Handle(a.Signup))
			r.Post("/login", Handle(a.Login))
			r.Get("/logout", Handle(a.Logout))
			r.Post("/forgotPassword", Handle(a.ForgotPassword))
			r.Patch("/resetPassword/{token}", Handle(a.ResetPassword))
			r.Post("/", Handle(CreateUser))
			r.Group(func(r chi.Router) {
				r.Use(protect)
				r.Patch("/updateMyPassword", Handle(a.UpdatePassword))
				r.With(Gate(GetMe)).Get("/me", Handle(f.GetOne(e.users)))
				r.Get("/me/bookings", Handle(f.MyBookings(e.bookings)))
				r.Patch("/updateMe", Handle(users.UpdateMe))
				r.Delete("/deleteMe", Handle(users.DeleteMe))
			})
		})
	})
	e.handler = r
	return e
}

// insert stores body as m would on create, bypassing HTTP.
func (e *testEnv) insert(t *testing.T, m *model.Model, body model.Document) model.Document {
	t.Helper()
	doc, err := m.Prepare(body, model.Stamp())
	if err != nil {
		t.Fatalf("Prepare %s: %v", m.Name, err)
	}
	created, err := e.store.Collection(m).Insert(context.Background(), doc)
	if err != nil {
		t.Fatalf("Insert %s: %v", m.Name, err)
	}
	return created
}

func (e *testEnv) tour(t *testing.T, name string, price float64) model.Document {
	t.Helper()
	return e.insert(t, e.tours, model.Document{
		"name":         name,
		"duration":     5.0,
		"maxGroupSize": 10.0,
		"difficulty":   "easy",
		"price":        price,
		"summary":      "A tour for the tests",
		"imageCover":   "tour-1-cover.jpg",
	})
}

// user creates an account with password "pass1234" and returns it with a
// session token.
func (e *testEnv) user(t *testing.T, name, role string) (model.Document, string) {
	t.Helper()
	hash, err := auth.HashPassword("pass1234")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	doc := e.insert(t, e.users, model.Document{
		"name":     name,
		"email":    fmt.Sprintf("%s@example.com", name),
		"password": "pass1234",
		"role":     role,
	})
	doc, err = e.store.Collection(e.users).UpdateByID(context.Background(), doc[model.IDField].(string), model.Document{"password": hash})
	if err != nil {
		t.Fatalf("set password: %v", err)
	}
	token, err := e.auth.Issuer.Sign(doc[model.IDField].(string))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return doc, token
}

type response struct {
	code   int
	header http.Header
	body   map[string]any
	raw    string
}

func (e *testEnv) do(t *testing.T, method, path string, body any, token string) response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	res := response{code: rec.Code, header: rec.Header(), raw: rec.Body.String()}
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &res.body); err != nil {
			t.Fatalf("%s %s: decode response %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return res
}

func (r response) message() string {
	s, _ := r.body["message"].(string)
	return s
}

// list returns data.data of a list response.
func (r response) list(t *testing.T) []map[string]any {
	t.Helper()
	data, _ := r.body["data"].(map[string]any)
	items, ok := data["data"].([]any)
	if !ok {
		t.Fatalf("no list in response: %s", r.raw)
	}
	out := make([]map[string]any, len(items))
	for i, it := range items {
		out[i] = it.(map[string]any)
	}
	return out
}

// doc returns data.data, or data.user for auth responses.
func (r response) doc(t *testing.T) map[string]any {
	t.Helper()
	data, _ := r.body["data"].(map[string]any)
	for _, key := range []string{"data", "user"} {
		if d, ok := data[key].(map[string]any); ok {
			return d
		}
	}
	t.Fatalf("no document in response: %s", r.raw)
	return nil
}

func httpRequest(t *testing.T, method, path string) *http.Request {
	t.Helper()
	return httptest.NewRequest(method, path, nil)
}

func serve(e *testEnv, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}
