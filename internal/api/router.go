package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-booking/internal/account"
	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
	"github.com/hackgods/clinic-appointment-booking/internal/auth"
	"github.com/hackgods/clinic-appointment-booking/internal/news"
)

type AppointmentService interface {
	ListDoctors(ctx context.Context, category string) ([]appointment.DoctorSchedule, error)
	ListFreeDates(ctx context.Context, doctorID int64) ([]string, error)
	ListFreeTimes(ctx context.Context, doctorID int64, date string) ([]string, error)
	BookSlot(ctx context.Context, req appointment.BookingRequest) (*appointment.Appointment, error)
	GetAppointment(ctx context.Context, id int64) (*appointment.AppointmentDetail, error)
	CancelAppointment(ctx context.Context, id int64) (*appointment.Appointment, error)
	ListAppointmentsByPatient(ctx context.Context, patientID int64) ([]appointment.AppointmentDetail, error)
}

type AccountService interface {
	Register(ctx context.Context, req account.RegisterRequest) (*account.User, error)
	Login(ctx context.Context, req account.LoginRequest) (*account.LoginResult, error)
	GetProfile(ctx context.Context, userID int64) (*account.Profile, error)
	UpdateProfile(ctx context.Context, userID int64, req account.UpdateProfileRequest) (*account.Profile, error)
	RequestPasswordReset(ctx context.Context, req account.ForgotPasswordRequest) error
	ResetPassword(ctx context.Context, req account.ResetPasswordRequest) error
	RequestVerification(ctx context.Context, req account.SendVerificationRequest) error
	VerifyEmail(ctx context.Context, token string) (*account.User, error)
}

type NewsService interface {
	List(ctx context.Context, limit int) ([]news.Item, error)
}

type RouterConfig struct {
	Appointments   AppointmentService
	Accounts       AccountService
	News           NewsService
	Tokens         *auth.TokenManager
	Health         *HealthHandler
	Logger         *zap.Logger
	AllowedOrigins []string
	SecureCookies  bool
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger.Named("http")
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints
	r.Get("/health/live", cfg.Health.Liveness)
	r.Get("/health/ready", cfg.Health.Readiness)

	// Public endpoints
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", registerHandler(cfg.Accounts, logger))
		r.Post("/login", loginHandler(cfg.Accounts, cfg.Tokens, cfg.SecureCookies, logger))
		r.Post("/logout", logoutHandler(cfg.SecureCookies))
		r.Post("/forgot-password", forgotPasswordHandler(cfg.Accounts, logger))
		r.Post("/reset-password", resetPasswordHandler(cfg.Accounts, logger))
		r.Post("/send-verification", sendVerificationHandler(cfg.Accounts, logger))
		r.Get("/verify", verifyEmailHandler(cfg.Accounts, logger))
		r.With(auth.Middleware(cfg.Tokens)).Get("/me", meHandler())
	})
	r.Get("/news", listNewsHandler(cfg.News, logger))

	// Authenticated endpoints
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Tokens))

		r.Get("/doctors", listDoctorsHandler(cfg.Appointments, logger))
		r.Get("/doctors/{id}/available-dates", availableDatesHandler(cfg.Appointments, logger))
		r.Get("/doctors/{id}/available-times", availableTimesHandler(cfg.Appointments, logger))

		r.Post("/appointments", createAppointmentHandler(cfg.Appointments, logger))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Appointments, logger))
		r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Appointments, logger))
		r.Get("/appointments/user/{id}", listPatientAppointmentsHandler(cfg.Appointments, logger))

		r.Get("/profile/{id}", getProfileHandler(cfg.Accounts, logger))
		r.Put("/profile/{id}", updateProfileHandler(cfg.Accounts, logger))
	})

	return r
}
