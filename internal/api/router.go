package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jamiecoded/slotsure/internal/appointment"
)

type RouterConfig struct {
	Service   *appointment.Service
	Gateway   *appointment.ConfirmationGateway
	PgPool    *pgxpool.Pool
	Redis     *redis.Client
	JWTSecret string
	Env       string
	Version   string
	Logger    zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Public confirmation surface, token addressed, no auth
	r.Get("/confirm/{token}", resolveTokenHandler(cfg.Gateway))
	r.Post("/confirm/{token}", tokenActionHandler(cfg.Gateway))

	// Operator surface
	r.Group(func(r chi.Router) {
		r.Use(ClinicAuthMiddleware(cfg.JWTSecret))

		r.Get("/appointments", listAppointmentsHandler(cfg.Service))
		r.Post("/appointments", createAppointmentHandler(cfg.Service))
		r.Post("/appointments/{id}/confirm", transitionAppointmentHandler(cfg.Service, appointment.ActionConfirm))
		r.Post("/appointments/{id}/cancel", transitionAppointmentHandler(cfg.Service, appointment.ActionCancel))
		r.Post("/appointments/{id}/complete", transitionAppointmentHandler(cfg.Service, appointment.ActionComplete))

		r.Get("/waitlist", listWaitlistHandler(cfg.Service))
		r.Post("/waitlist", addWaitlistHandler(cfg.Service))
		r.Delete("/waitlist/{id}", removeWaitlistHandler(cfg.Service))

		r.Get("/recovery/proposal", recoveryProposalHandler(cfg.Service))
		r.Post("/recovery/promote", promoteHandler(cfg.Service))
		r.Delete("/recovery/proposal", discardProposalHandler(cfg.Service))
	})

	return r
}
