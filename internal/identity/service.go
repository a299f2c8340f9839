package identity

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/ridesync/ridesync/internal/notification"
)

const (
	defaultChallengeTTL    = 10 * time.Minute
	defaultVerificationTTL = 24 * time.Hour
	defaultSessionTTL      = 30 * 24 * time.Hour
	defaultMaxAttempts     = 5
	minSecretLength        = 6
)

// TokenIssuer signs credentials bound to an identity.
type TokenIssuer interface {
	Issue(subject, role string, ttl time.Duration) (string, time.Time, error)
}

// Options tunes a Service. Zero values fall back to defaults.
type Options struct {
	Clock           clockwork.Clock
	ChallengeTTL    time.Duration
	VerificationTTL time.Duration
	SessionTTL      time.Duration
	// MaxAttempts is the number of wrong codes after which a challenge is discarded.
	MaxAttempts int
	Codes       CodeGenerator
}

// Service manages the identity lifecycle: challenge issuance, verification,
// password and federated authentication, and driver applications.
type Service struct {
	repo     Repository
	notifier notification.Notifier
	hasher   PasswordHasher
	tokens   TokenIssuer
	logger   *slog.Logger

	clock           clockwork.Clock
	challengeTTL    time.Duration
	verificationTTL time.Duration
	sessionTTL      time.Duration
	maxAttempts     int
	codes           CodeGenerator
}

// NewService creates a new identity service.
func NewService(repo Repository, notifier notification.Notifier, hasher PasswordHasher, tokens TokenIssuer, logger *slog.Logger, opts Options) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:            repo,
		notifier:        notifier,
		hasher:          hasher,
		tokens:          tokens,
		logger:          logger,
		clock:           opts.Clock,
		challengeTTL:    opts.ChallengeTTL,
		verificationTTL: opts.VerificationTTL,
		sessionTTL:      opts.SessionTTL,
		maxAttempts:     opts.MaxAttempts,
		codes:           opts.Codes,
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.challengeTTL <= 0 {
		s.challengeTTL = defaultChallengeTTL
	}
	if s.verificationTTL <= 0 {
		s.verificationTTL = defaultVerificationTTL
	}
	if s.sessionTTL <= 0 {
		s.sessionTTL = defaultSessionTTL
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = defaultMaxAttempts
	}
	if s.codes == nil {
		s.codes = RandomCode
	}
	return s
}

// RequestChallenge issues a fresh one-time code for the given contact, creating
// the identity on first contact. The challenge is persisted before delivery.
// When both an email and a phone number are given only the email is used: it
// selects the identity, is stored on it and receives the code.
func (s *Service) RequestChallenge(ctx context.Context, req ChallengeRequest) (ChallengeResult, error) {
	email, phone, err := normalizeContact(req.Email, req.Phone)
	if err != nil {
		return ChallengeResult{}, err
	}
	if email == "" && phone == "" {
		return ChallengeResult{}, ErrContactRequired
	}
	email, phone = singleContact(email, phone)
	if !req.Role.Valid() {
		return ChallengeResult{}, ErrInvalidRole
	}
	if req.Driver != nil && (req.Role != RoleDriver || !validDriverProfile(*req.Driver)) {
		return ChallengeResult{}, ErrInvalidDriverProfile
	}

	existing, err := s.repo.FindByContact(ctx, email, phone)
	found := err == nil
	if err != nil && !errors.Is(err, ErrNoRecord) {
		return ChallengeResult{}, wrap(ErrStoreUnavailable, "find identity by contact", err)
	}
	if found && existing.Verified {
		return ChallengeResult{}, ErrAlreadyVerified
	}

	code, err := s.codes()
	if err != nil {
		return ChallengeResult{}, wrap(ErrStoreUnavailable, "generate code", err)
	}
	now := s.clock.Now().UTC()
	challenge := Challenge{Code: code, ExpiresAt: now.Add(s.challengeTTL)}

	var ident Identity
	if found {
		ident, err = s.replaceChallenge(ctx, existing, challenge, now)
	} else {
		ident, err = s.createPending(ctx, req, email, phone, challenge, now)
	}
	if err != nil {
		return ChallengeResult{}, err
	}

	channel, destination := deliveryTarget(ident)
	err = s.notifier.Send(ctx, notification.Message{
		Kind:        notification.KindVerificationCode,
		Channel:     string(channel),
		Destination: destination,
		Recipient:   ident.DisplayName,
		Code:        code,
		ExpiresIn:   s.challengeTTL,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "otp delivery failed", "identity_id", ident.ID, "channel", channel, "error", err)
		return ChallengeResult{}, wrap(ErrDeliveryFailed, "deliver code", err)
	}

	s.logger.InfoContext(ctx, "otp issued", "identity_id", ident.ID, "channel", channel, "created", !found)
	return ChallengeResult{IdentityID: ident.ID, Channel: channel}, nil
}

func (s *Service) createPending(ctx context.Context, req ChallengeRequest, email, phone string, ch Challenge, now time.Time) (Identity, error) {
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		return Identity{}, ErrDisplayNameRequired
	}
	ident := Identity{
		ID:          uuid.New().String(),
		Email:       email,
		Phone:       phone,
		DisplayName: name,
		Role:        req.Role,
		Approved:    req.Role.DefaultApproval(),
		Challenge:   &ch,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.Driver != nil {
		profile := *req.Driver
		ident.Driver = &profile
	}

	err := s.repo.Create(ctx, ident)
	if err == nil {
		return ident, nil
	}
	if !errors.Is(err, ErrDuplicate) {
		return Identity{}, wrap(ErrStoreUnavailable, "create identity", err)
	}

	// A concurrent request created the record first; take it over.
	winner, err := s.repo.FindByContact(ctx, email, phone)
	if err != nil {
		return Identity{}, wrap(ErrStoreUnavailable, "reload identity after duplicate", err)
	}
	if winner.Verified {
		return Identity{}, ErrAlreadyVerified
	}
	return s.replaceChallenge(ctx, winner, ch, now)
}

func (s *Service) replaceChallenge(ctx context.Context, ident Identity, ch Challenge, now time.Time) (Identity, error) {
	err := s.repo.ReplaceChallenge(ctx, ident.ID, ch, now)
	if errors.Is(err, ErrStaleWrite) {
		return Identity{}, ErrAlreadyVerified
	}
	if err != nil {
		return Identity{}, wrap(ErrStoreUnavailable, "replace challenge", err)
	}
	ident.Challenge = &ch
	ident.UpdatedAt = now
	return ident, nil
}

// VerifyChallenge redeems the pending code of an identity. A code is redeemed
// at most once; the returned session carries a short-lived credential.
func (s *Service) VerifyChallenge(ctx context.Context, req VerifyRequest) (Session, error) {
	id := strings.TrimSpace(req.IdentityID)
	if id == "" {
		return Session{}, ErrIdentityRequired
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return Session{}, ErrCodeRequired
	}
	if req.Role != "" && !req.Role.Valid() {
		return Session{}, ErrInvalidRole
	}
	if req.Secret != "" && len(req.Secret) < minSecretLength {
		return Session{}, ErrWeakSecret
	}

	ident, err := s.find(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if ident.Challenge == nil {
		return Session{}, ErrChallengeMissing
	}
	now := s.clock.Now().UTC()
	if now.After(ident.Challenge.ExpiresAt) {
		return Session{}, ErrChallengeExpired
	}
	if !codesEqual(ident.Challenge.Code, code) {
		return Session{}, s.recordMismatch(ctx, ident)
	}

	next := ident.clone()
	if req.Secret != "" && !next.HasSecret() {
		hash, err := s.hasher.Hash(req.Secret)
		if err != nil {
			return Session{}, wrap(ErrCredentialIssue, "hash secret", err)
		}
		next.PasswordHash = hash
	}
	if req.Role != "" && req.Role != next.Role {
		next.Role = req.Role
		next.Approved = req.Role.DefaultApproval()
		if req.Role == RoleRider {
			next.Driver = nil
		}
	}
	next.Verified = true
	next.Challenge = nil
	next.UpdatedAt = now

	if err := s.repo.CompleteVerification(ctx, next, ident.Challenge.Code); err != nil {
		if !errors.Is(err, ErrStaleWrite) {
			return Session{}, wrap(ErrStoreUnavailable, "complete verification", err)
		}
		return Session{}, s.classifyLostVerification(ctx, id)
	}

	s.logger.InfoContext(ctx, "identity verified", "identity_id", next.ID, "role", next.Role)
	return s.issue(next, s.verificationTTL, false)
}

// recordMismatch counts a wrong code against the pending challenge and
// discards the challenge once the attempt cap is reached.
func (s *Service) recordMismatch(ctx context.Context, ident Identity) error {
	exhausted, err := s.repo.RecordMismatch(ctx, ident.ID, ident.Challenge.Code, s.maxAttempts)
	if errors.Is(err, ErrStaleWrite) {
		return s.classifyLostVerification(ctx, ident.ID)
	}
	if err != nil {
		return wrap(ErrStoreUnavailable, "record otp mismatch", err)
	}
	if exhausted {
		s.logger.WarnContext(ctx, "otp attempts exhausted", "identity_id", ident.ID, "max_attempts", s.maxAttempts)
		return ErrTooManyAttempts
	}
	s.logger.InfoContext(ctx, "otp mismatch", "identity_id", ident.ID)
	return ErrChallengeMismatch
}

// classifyLostVerification explains why a conditional verification write matched nothing.
func (s *Service) classifyLostVerification(ctx context.Context, id string) error {
	fresh, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if fresh.Challenge == nil {
		return ErrChallengeMissing
	}
	return ErrChallengeMismatch
}

// Authenticate checks a local secret against a verified identity.
func (s *Service) Authenticate(ctx context.Context, req LoginRequest) (Session, error) {
	email, phone, err := normalizeContact(req.Email, req.Phone)
	if err != nil {
		return Session{}, err
	}
	if email == "" && phone == "" {
		return Session{}, ErrContactRequired
	}
	if req.Role != "" && !req.Role.Valid() {
		return Session{}, ErrInvalidRole
	}

	ident, err := s.repo.FindByContact(ctx, email, phone)
	if errors.Is(err, ErrNoRecord) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, wrap(ErrStoreUnavailable, "find identity by contact", err)
	}
	if req.Role != "" && ident.Role != req.Role {
		return Session{}, ErrNotFound
	}
	if !ident.Verified {
		return Session{}, ErrNotVerified
	}
	if ident.Federated == nil {
		if !ident.HasSecret() || !s.hasher.Verify(ident.PasswordHash, req.Secret) {
			s.logger.InfoContext(ctx, "login rejected", "identity_id", ident.ID)
			return Session{}, ErrInvalidCredential
		}
	}

	s.logger.InfoContext(ctx, "login succeeded", "identity_id", ident.ID)
	return s.issue(ident, s.sessionTTL, false)
}

// FederatedAuthenticate signs in through an external provider, creating a
// verified identity the first time a provider key is seen.
func (s *Service) FederatedAuthenticate(ctx context.Context, req FederatedRequest) (Session, error) {
	providerID := strings.TrimSpace(req.ProviderID)
	if providerID == "" || req.Provider == "" {
		return Session{}, ErrFederatedKeyRequired
	}
	if !req.Provider.Valid() {
		return Session{}, ErrInvalidProvider
	}

	ident, err := s.repo.FindByFederated(ctx, providerID, req.Provider)
	if err == nil {
		s.logger.InfoContext(ctx, "federated login", "identity_id", ident.ID, "provider", req.Provider)
		return s.issue(ident, s.sessionTTL, false)
	}
	if !errors.Is(err, ErrNoRecord) {
		return Session{}, wrap(ErrStoreUnavailable, "find identity by provider", err)
	}

	email, phone, err := normalizeContact(req.Email, req.Phone)
	if err != nil {
		return Session{}, err
	}
	if email != "" || phone != "" {
		_, err := s.repo.FindByContact(ctx, email, phone)
		if err == nil {
			return Session{}, ErrContactAlreadyRegistered
		}
		if !errors.Is(err, ErrNoRecord) {
			return Session{}, wrap(ErrStoreUnavailable, "find identity by contact", err)
		}
	}
	if !req.Role.Valid() {
		return Session{}, ErrInvalidRole
	}
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		return Session{}, ErrDisplayNameRequired
	}
	email, phone = singleContact(email, phone)

	now := s.clock.Now().UTC()
	ident = Identity{
		ID:          uuid.New().String(),
		Email:       email,
		Phone:       phone,
		DisplayName: name,
		Role:        req.Role,
		Verified:    true,
		Approved:    req.Role.DefaultApproval(),
		Federated:   &FederatedIdentity{ProviderID: providerID, Provider: req.Provider},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, ident); err != nil {
		if !errors.Is(err, ErrDuplicate) {
			return Session{}, wrap(ErrStoreUnavailable, "create federated identity", err)
		}
		winner, findErr := s.repo.FindByFederated(ctx, providerID, req.Provider)
		if errors.Is(findErr, ErrNoRecord) {
			return Session{}, ErrContactAlreadyRegistered
		}
		if findErr != nil {
			return Session{}, wrap(ErrStoreUnavailable, "reload federated identity", findErr)
		}
		return s.issue(winner, s.sessionTTL, false)
	}

	s.logger.InfoContext(ctx, "federated identity created", "identity_id", ident.ID, "provider", req.Provider, "role", ident.Role)
	return s.issue(ident, s.sessionTTL, true)
}

// SubmitDriverApplication records a driver's vehicle details and puts the
// account back into review.
func (s *Service) SubmitDriverApplication(ctx context.Context, id string, profile DriverProfile) (Identity, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Identity{}, ErrIdentityRequired
	}
	profile.LicenseNumber = strings.TrimSpace(profile.LicenseNumber)
	if !validDriverProfile(profile) {
		return Identity{}, ErrInvalidDriverProfile
	}

	ident, err := s.find(ctx, id)
	if err != nil {
		return Identity{}, err
	}
	if ident.Role != RoleDriver {
		return Identity{}, ErrRoleMismatch
	}

	now := s.clock.Now().UTC()
	err = s.repo.UpdateDriverProfile(ctx, ident.ID, profile, now)
	if errors.Is(err, ErrStaleWrite) {
		return Identity{}, ErrRoleMismatch
	}
	if err != nil {
		return Identity{}, wrap(ErrStoreUnavailable, "update driver profile", err)
	}

	ident.Driver = &profile
	ident.Approved = false
	ident.UpdatedAt = now
	s.logger.InfoContext(ctx, "driver application submitted", "identity_id", ident.ID, "vehicle_type", profile.VehicleType)
	return ident, nil
}

// Get returns the identity with the given id.
func (s *Service) Get(ctx context.Context, id string) (Identity, error) {
	return s.find(ctx, strings.TrimSpace(id))
}

func (s *Service) find(ctx context.Context, id string) (Identity, error) {
	ident, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, ErrNoRecord) {
		return Identity{}, ErrNotFound
	}
	if err != nil {
		return Identity{}, wrap(ErrStoreUnavailable, "find identity", err)
	}
	return ident, nil
}

func (s *Service) issue(ident Identity, ttl time.Duration, created bool) (Session, error) {
	token, expires, err := s.tokens.Issue(ident.ID, string(ident.Role), ttl)
	if err != nil {
		return Session{}, wrap(ErrCredentialIssue, "issue token", err)
	}
	return Session{Identity: ident, Token: token, ExpiresAt: expires, Created: created}, nil
}

// normalizeContact lower-cases and trims email, trims phone and rejects malformed emails.
func normalizeContact(email, phone string) (string, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	phone = strings.TrimSpace(phone)
	if email != "" {
		addr, err := mail.ParseAddress(email)
		if err != nil || addr.Address != email {
			return "", "", ErrInvalidEmail
		}
	}
	return email, phone, nil
}

// singleContact keeps the email when both contacts are present. A phone number
// that was never verified must not be bound to an identity reached by email.
func singleContact(email, phone string) (string, string) {
	if email != "" {
		return email, ""
	}
	return "", phone
}

// deliveryTarget picks the stored contact a code is sent to.
func deliveryTarget(ident Identity) (Channel, string) {
	if ident.Email != "" {
		return ChannelEmail, ident.Email
	}
	return ChannelSMS, ident.Phone
}

func validDriverProfile(p DriverProfile) bool {
	return strings.TrimSpace(p.LicenseNumber) != "" && p.VehicleType.Valid() && p.VehicleYear > 0
}
