// Package router mounts the API routes and the application middleware.
package router

import (
	"fmt"
	"net/http"

	"natours/internal/apperr"
	"natours/internal/auth"
	"natours/internal/config"
	"natours/internal/handler"
	"natours/internal/mail"
	"natours/internal/model"
	"natours/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Deps are the services the routes are built on. Redis is optional; without
// it rate limits are kept per process.
type Deps struct {
	Config *config.Config
	Store  store.Store
	Issuer *auth.Issuer
	Mailer mail.Mailer
	Redis  *redis.Client
}

// New builds the HTTP handler for the whole API. Models must already be
// registered.
func New(d Deps) http.Handler {
	cfg := d.Config
	tours := model.MustGet("tours")
	users := model.MustGet("users")
	reviews := model.MustGet("reviews")
	bookings := model.MustGet("bookings")

	f := handler.NewFactory(d.Store)
	f.AfterWrite[reviews.Name] = handler.TourRatings(d.Store, tours, reviews)
	a := &handler.Auth{
		Store:         d.Store,
		Users:         users,
		Issuer:        d.Issuer,
		Mailer:        d.Mailer,
		CookieExpires: cfg.Auth.JWT.CookieExpires,
		SecureCookie:  cfg.IsProduction(),
	}
	me := &handler.Users{Store: d.Store, Model: users}

	var limiter Limiter
	if d.Redis != nil {
		limiter = NewRedisLimiter(d.Redis, cfg.RateLimit.Max, cfg.RateLimit.Window)
	} else {
		limiter = NewMemoryLimiter(cfg.RateLimit.Max, cfg.RateLimit.Window)
	}

	protect := handler.Gate(a.Protect)
	restrictTo := func(roles ...string) func(http.Handler) http.Handler {
		return handler.Gate(handler.RestrictTo(roles...))
	}
	h := handler.Handle

	reviewRoutes := func(r chi.Router) {
		r.Use(protect)
		r.Get("/", h(f.GetAll(reviews)))
		r.With(restrictTo("user"), handler.Gate(handler.SetTourUserIDs), handler.Gate(handler.AllowIfHaveBooked(d.Store, bookings))).
			Post("/", h(f.CreateOne(reviews)))
		r.Get("/{id}", h(f.GetOne(reviews)))
		r.With(restrictTo("user", "admin")).Patch("/{id}", h(f.UpdateOne(reviews)))
		r.With(restrictTo("user", "admin")).Delete("/{id}", h(f.DeleteOne(reviews)))
	}

	bookingRoutes := func(r chi.Router) {
		r.Use(protect, restrictTo("admin", "lead-guide"))
		r.Get("/", h(f.GetAll(bookings)))
		r.Post("/", h(f.CreateOne(bookings)))
		r.Get("/{id}", h(f.GetOne(bookings)))
		r.Patch("/{id}", h(f.UpdateOne(bookings)))
		r.Delete("/{id}", h(f.DeleteOne(bookings)))
	}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		withLogging,
		withRecover,
		withSecurityHeaders(cfg.IsProduction()),
		withCORS(cfg.CORS.AllowOrigin, cfg.CORS.AllowCredentials),
	)
	r.NotFound(h(routeNotFound))
	r.MethodNotAllowed(h(routeNotFound))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(
			withRateLimit(limiter, cfg.RateLimit.Max),
			withBodyLimit(cfg.HTTP.BodyLimitBytes),
			withSanitize,
		)

		r.Route("/tours", func(r chi.Router) {
			r.With(handler.Gate(handler.AliasTopTours)).Get("/top-5-cheap", h(f.GetAll(tours)))
			r.Get("/tour-stats", h(handler.TourStats(d.Store, tours)))
			r.With(protect, restrictTo("admin", "lead-guide")).
				Get("/monthly-plan/{year}", h(handler.MonthlyPlan(d.Store, tours)))
			r.Get("/", h(f.GetAll(tours)))
			r.Get("/{id}", h(f.GetOne(tours, model.PopulateSpec{Path: "reviews"})))
			r.Group(func(r chi.Router) {
				r.Use(protect, restrictTo("admin", "lead-guide"))
				r.Post("/", h(f.CreateOne(tours)))
				r.Patch("/{id}", h(f.UpdateOne(tours)))
				r.Delete("/{id}", h(f.DeleteOne(tours)))
			})
			r.Route("/{tourId}/reviews", reviewRoutes)
			r.Route("/{tourId}/bookings", bookingRoutes)
		})

		r.Route("/reviews", reviewRoutes)
		r.Route("/bookings", bookingRoutes)

		r.Route("/users", func(r chi.Router) {
			r.Post("/signup", h(a.Signup))
			r.Post("/login", h(a.Login))
			r.Get("/logout", h(a.Logout))
			r.Post("/forgotPassword", h(a.ForgotPassword))
			r.Patch("/resetPassword/{token}", h(a.ResetPassword))

			r.Group(func(r chi.Router) {
				r.Use(protect)
				r.Patch("/updateMyPassword", h(a.UpdatePassword))
				r.With(handler.Gate(handler.GetMe)).Get("/me", h(f.GetOne(users)))
				r.Get("/me/bookings", h(f.MyBookings(bookings)))
				r.Patch("/updateMe", h(me.UpdateMe))
				r.Delete("/deleteMe", h(me.DeleteMe))

				r.Group(func(r chi.Router) {
					r.Use(restrictTo("admin"))
					r.Get("/", h(f.GetAll(users)))
					r.Post("/", h(handler.CreateUser))
					r.Get("/{id}", h(f.GetOne(users)))
					r.Patch("/{id}", h(f.UpdateOne(users)))
					r.Delete("/{id}", h(f.DeleteOne(users)))
				})
			})
		})
	})

	return otelhttp.NewHandler(r, "natours-api")
}

func routeNotFound(_ http.ResponseWriter, r *http.Request) error {
	return apperr.NotFound(fmt.Sprintf("Can't find %s on this server!", r.URL.RequestURI()))
}
