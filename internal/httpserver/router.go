package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"strategyvault/internal/auth"
	"strategyvault/internal/health"
	"strategyvault/internal/treasury"
)

type Deps struct {
	Auth          *auth.Service
	Treasury      *treasury.Handler
	Health        *health.Handler
	Events        *EventStream
	InternalToken string
	RatePerSecond float64
	RateBurst     int
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeaders)

	if d.RatePerSecond <= 0 {
		d.RatePerSecond = 20
	}
	if d.RateBurst <= 0 {
		d.RateBurst = 40
	}

	r.Get("/health/live", d.Health.Live)
	r.Get("/health/ready", d.Health.Ready)

	r.Group(func(r chi.Router) {
		r.Use(RateLimit(d.RatePerSecond, d.RateBurst))
		r.Use(WithAuth(d.Auth))

		r.Route("/v1/treasury", func(r chi.Router) {
			r.Get("/", Authed(d.Treasury.OwnerTreasuries))
			r.Route("/{strategyID}", func(r chi.Router) {
				r.Post("/initialize", Authed(d.Treasury.Initialize))
				r.Post("/deposit", Authed(d.Treasury.Deposit))
				r.Post("/withdraw", Authed(d.Treasury.Withdraw))
				r.Post("/withdrawals/{transactionID}/confirm", Authed(d.Treasury.ConfirmWithdraw))
				r.Post("/withdrawals/{transactionID}/cancel", Authed(d.Treasury.CancelWithdraw))
				r.Get("/", Authed(d.Treasury.GetBalance))
				r.Get("/transactions", Authed(d.Treasury.History))
				r.Get("/summary", Authed(d.Treasury.Summary))
				r.Get("/health", Authed(d.Treasury.Health))
			})
		})

		if d.Events != nil {
			r.Get("/v1/events/ws", Authed(d.Events.Serve))
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(InternalAuth(d.InternalToken))
		r.Post("/v1/internal/treasury/adjust", d.Treasury.Adjust)
		r.Get("/v1/internal/treasury/{strategyID}/reconcile", d.Treasury.Reconcile)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}
