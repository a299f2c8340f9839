package identity

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ridesync/ridesync/internal/middleware"
)

// Handler exposes identity endpoints.
type Handler struct {
	service *Service
	timeout time.Duration
	logger  *slog.Logger
}

// NewHandler constructs an identity HTTP handler. Every call into the service
// runs under timeout.
func NewHandler(service *Service, timeout time.Duration, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, timeout: timeout, logger: logger}
}

type sendOTPRequest struct {
	Email         string `json:"email"`
	PhoneNumber   string `json:"phoneNumber"`
	FullName      string `json:"fullName"`
	UserType      string `json:"userType"`
	DriverLicense string `json:"driverLicense"`
	VehicleType   string `json:"vehicleType"`
	VehicleYear   int    `json:"vehicleYear"`
}

type verifyOTPRequest struct {
	IdentityID string `json:"identityId"`
	OTP        string `json:"otp"`
	Password   string `json:"password"`
	UserType   string `json:"userType"`
}

type loginRequest struct {
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
	Password    string `json:"password"`
	UserType    string `json:"userType"`
}

type socialRequest struct {
	SocialID    string `json:"socialId"`
	Provider    string `json:"provider"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
	FullName    string `json:"fullName"`
	UserType    string `json:"userType"`
}

type driverApplicationRequest struct {
	IdentityID    string `json:"identityId"`
	DriverLicense string `json:"driverLicense"`
	VehicleType   string `json:"vehicleType"`
	VehicleYear   int    `json:"vehicleYear"`
}

type identitySummary struct {
	ID             string    `json:"id"`
	Email          string    `json:"email,omitempty"`
	PhoneNumber    string    `json:"phoneNumber,omitempty"`
	FullName       string    `json:"fullName"`
	UserType       Role      `json:"userType"`
	IsVerified     bool      `json:"isVerified"`
	IsApproved     bool      `json:"isApproved"`
	DriverLicense  string    `json:"driverLicense,omitempty"`
	VehicleType    string    `json:"vehicleType,omitempty"`
	VehicleYear    int       `json:"vehicleYear,omitempty"`
	SocialProvider string    `json:"socialProvider,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

type sessionResponse struct {
	Success   bool            `json:"success"`
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expiresAt"`
	Identity  identitySummary `json:"identity"`
}

type identityResponse struct {
	Success  bool            `json:"success"`
	Identity identitySummary `json:"identity"`
}

type challengeResponse struct {
	Success         bool    `json:"success"`
	Message         string  `json:"message"`
	IdentityID      string  `json:"identityId"`
	DeliveryChannel Channel `json:"deliveryChannel"`
}

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func summarize(ident Identity) identitySummary {
	out := identitySummary{
		ID:          ident.ID,
		Email:       ident.Email,
		PhoneNumber: ident.Phone,
		FullName:    ident.DisplayName,
		UserType:    ident.Role,
		IsVerified:  ident.Verified,
		IsApproved:  ident.Approved,
		CreatedAt:   ident.CreatedAt,
	}
	if ident.Driver != nil {
		out.DriverLicense = ident.Driver.LicenseNumber
		out.VehicleType = string(ident.Driver.VehicleType)
		out.VehicleYear = ident.Driver.VehicleYear
	}
	if ident.Federated != nil {
		out.SocialProvider = string(ident.Federated.Provider)
	}
	return out
}

func (h *Handler) withTimeout(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(c.UserContext())
	}
	return context.WithTimeout(c.UserContext(), h.timeout)
}

func (h *Handler) fail(c *fiber.Ctx, err error) error {
	e := AsError(err)
	if e.Kind == KindDependency {
		h.logger.ErrorContext(c.UserContext(), "identity request failed",
			slog.String("path", c.Path()),
			slog.String("code", e.Code),
			slog.String("request_id", middleware.RequestIDFrom(c)),
			slog.Any("error", err),
		)
	}
	return c.Status(e.Kind.HTTPStatus()).JSON(ErrorResponse{Success: false, Error: e.Code, Message: e.Message})
}

func badRequest(c *fiber.Ctx) error {
	return c.Status(http.StatusBadRequest).JSON(ErrorResponse{Success: false, Error: "invalid_request", Message: "request body must be valid JSON"})
}

// SendOTP starts contact verification.
func (h *Handler) SendOTP(c *fiber.Ctx) error {
	var req sendOTPRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c)
	}
	creq := ChallengeRequest{
		Email:       req.Email,
		Phone:       req.PhoneNumber,
		DisplayName: req.FullName,
		Role:        Role(req.UserType),
	}
	if req.DriverLicense != "" || req.VehicleType != "" || req.VehicleYear != 0 {
		creq.Driver = &DriverProfile{
			LicenseNumber: req.DriverLicense,
			VehicleType:   VehicleType(req.VehicleType),
			VehicleYear:   req.VehicleYear,
		}
	}

	ctx, cancel := h.withTimeout(c)
	defer cancel()
	res, err := h.service.RequestChallenge(ctx, creq)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(http.StatusOK).JSON(challengeResponse{
		Success:         true,
		Message:         "OTP sent successfully",
		IdentityID:      res.IdentityID,
		DeliveryChannel: res.Channel,
	})
}

// VerifyOTP redeems a one-time code.
func (h *Handler) VerifyOTP(c *fiber.Ctx) error {
	var req verifyOTPRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c)
	}
	ctx, cancel := h.withTimeout(c)
	defer cancel()
	session, err := h.service.VerifyChallenge(ctx, VerifyRequest{
		IdentityID: req.IdentityID,
		Code:       req.OTP,
		Secret:     req.Password,
		Role:       Role(req.UserType),
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(http.StatusOK).JSON(sessionResponse{Success: true, Token: session.Token, ExpiresAt: session.ExpiresAt, Identity: summarize(session.Identity)})
}

// Login authenticates with email or phone number and password.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c)
	}
	ctx, cancel := h.withTimeout(c)
	defer cancel()
	session, err := h.service.Authenticate(ctx, LoginRequest{
		Email:  req.Email,
		Phone:  req.PhoneNumber,
		Role:   Role(req.UserType),
		Secret: req.Password,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(http.StatusOK).JSON(sessionResponse{Success: true, Token: session.Token, ExpiresAt: session.ExpiresAt, Identity: summarize(session.Identity)})
}

// Social signs in through an external provider. New identities answer 201.
func (h *Handler) Social(c *fiber.Ctx) error {
	var req socialRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c)
	}
	ctx, cancel := h.withTimeout(c)
	defer cancel()
	session, err := h.service.FederatedAuthenticate(ctx, FederatedRequest{
		ProviderID:  req.SocialID,
		Provider:    Provider(req.Provider),
		Email:       req.Email,
		Phone:       req.PhoneNumber,
		DisplayName: req.FullName,
		Role:        Role(req.UserType),
	})
	if err != nil {
		return h.fail(c, err)
	}
	status := http.StatusOK
	if session.Created {
		status = http.StatusCreated
	}
	return c.Status(status).JSON(sessionResponse{Success: true, Token: session.Token, ExpiresAt: session.ExpiresAt, Identity: summarize(session.Identity)})
}

// DriverApplication records vehicle details for a driver.
func (h *Handler) DriverApplication(c *fiber.Ctx) error {
	var req driverApplicationRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c)
	}
	ctx, cancel := h.withTimeout(c)
	defer cancel()
	ident, err := h.service.SubmitDriverApplication(ctx, req.IdentityID, DriverProfile{
		LicenseNumber: req.DriverLicense,
		VehicleType:   VehicleType(req.VehicleType),
		VehicleYear:   req.VehicleYear,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(http.StatusOK).JSON(identityResponse{Success: true, Identity: summarize(ident)})
}

// Me returns the identity bound to the bearer token.
func (h *Handler) Me(c *fiber.Ctx) error {
	id, _ := c.Locals(middleware.IdentityIDKey).(string)
	if id == "" {
		return fiber.NewError(http.StatusUnauthorized, "missing identity")
	}
	ctx, cancel := h.withTimeout(c)
	defer cancel()
	ident, err := h.service.Get(ctx, id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(http.StatusOK).JSON(identityResponse{Success: true, Identity: summarize(ident)})
}
