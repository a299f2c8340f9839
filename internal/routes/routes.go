package routes

import (
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/ridesync/ridesync/internal/auth"
	"github.com/ridesync/ridesync/internal/config"
	"github.com/ridesync/ridesync/internal/identity"
	"github.com/ridesync/ridesync/internal/middleware"
	"github.com/ridesync/ridesync/internal/notification"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
	// Clock defaults to the wall clock.
	Clock clockwork.Clock
	// Notifier overrides the channel router built from Cfg.
	Notifier notification.Notifier
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	issuer, err := auth.NewIssuer(d.Cfg.JWTSecret, d.Cfg.AppName, d.Clock)
	if err != nil {
		return err
	}

	var identityRepo identity.Repository
	if d.DB != nil {
		identityRepo = identity.NewPostgresRepository(d.DB)
	} else {
		d.Logger.Warn("no database configured, identities are kept in memory")
		identityRepo = identity.NewMemoryRepository()
	}

	notifier := d.Notifier
	if notifier == nil {
		notifier = newNotifier(d.Cfg, d.Logger)
	}

	identitySvc := identity.NewService(identityRepo, notifier, identity.BcryptHasher{Cost: d.Cfg.BcryptCost}, issuer, d.Logger, identity.Options{
		Clock:           d.Clock,
		ChallengeTTL:    d.Cfg.ChallengeTTL,
		VerificationTTL: d.Cfg.VerificationTokenTTL,
		SessionTTL:      d.Cfg.SessionTokenTTL,
		MaxAttempts:     d.Cfg.OTPMaxAttempts,
	})
	identityHandler := identity.NewHandler(identitySvc, d.Cfg.RequestTimeout, d.Logger)

	RegisterAuthRoutes(app, identityHandler, AuthGuards{
		Idempotency: middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger),
		SendOTP:     middleware.Throttle(d.Cache, "send-otp", d.Cfg.OTPRequestsPerMinute, d.Logger),
		VerifyOTP:   middleware.Throttle(d.Cache, "verify-otp", d.Cfg.VerifyAttemptsPerMinute, d.Logger),
		Login:       middleware.Throttle(d.Cache, "login", d.Cfg.LoginAttemptsPerMinute, d.Logger),
	}, middleware.JWTAuth(issuer))

	return nil
}

// newNotifier routes email through SMTP when configured and logs everything else.
func newNotifier(cfg config.Config, logger *slog.Logger) notification.Notifier {
	logNotifier := notification.NewLoggerNotifier(logger)
	var email notification.Notifier = logNotifier
	if cfg.SMTP.Enabled() {
		email = notification.NewSMTPNotifier(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From)
	} else {
		logger.Warn("smtp not configured, verification emails are only logged")
	}
	return notification.NewRouter(map[string]notification.Notifier{
		notification.ChannelEmail: email,
		notification.ChannelSMS:   logNotifier,
	})
}

// ErrorHandler renders errors that escape handlers in the API error envelope.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		message := "internal server error"
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
			message = fe.Message
		} else if logger != nil {
			logger.Error("unhandled error", slog.String("path", c.Path()), slog.Any("error", err))
		}
		return c.Status(status).JSON(identity.ErrorResponse{
			Success: false,
			Error:   errorCode(status),
			Message: message,
		})
	}
}

func errorCode(status int) string {
	switch status {
	case fiber.StatusUnauthorized:
		return "unauthorized"
	case fiber.StatusTooManyRequests:
		return "too_many_requests"
	case fiber.StatusConflict:
		return "duplicate_request"
	case fiber.StatusUnprocessableEntity:
		return "idempotency_key_reused"
	case fiber.StatusNotFound:
		return "route_not_found"
	case fiber.StatusBadRequest:
		return "invalid_request"
	case fiber.StatusMethodNotAllowed:
		return "method_not_allowed"
	}
	return "internal_error"
}
