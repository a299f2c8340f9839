package identity

import "time"

// Role distinguishes the two sides of the marketplace.
type Role string

const (
	RoleRider  Role = "rider"
	RoleDriver Role = "driver"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleRider || r == RoleDriver
}

// DefaultApproval is the approval state a fresh identity of this role starts with.
// Riders are approved on creation; drivers wait for manual review.
func (r Role) DefaultApproval() bool {
	return r == RoleRider
}

// VehicleType enumerates vehicles a driver may register.
type VehicleType string

const (
	VehicleSedan  VehicleType = "sedan"
	VehicleSUV    VehicleType = "suv"
	VehicleLuxury VehicleType = "luxury"
	VehicleVan    VehicleType = "van"
)

// Valid reports whether v is a known vehicle type.
func (v VehicleType) Valid() bool {
	switch v {
	case VehicleSedan, VehicleSUV, VehicleLuxury, VehicleVan:
		return true
	}
	return false
}

// Provider names an external identity provider.
type Provider string

const (
	ProviderGoogle   Provider = "google"
	ProviderFacebook Provider = "facebook"
)

// Valid reports whether p is a supported provider.
func (p Provider) Valid() bool {
	return p == ProviderGoogle || p == ProviderFacebook
}

// Channel is the transport an OTP was dispatched through.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// DriverProfile holds the driver-only application details.
type DriverProfile struct {
	LicenseNumber string
	VehicleType   VehicleType
	VehicleYear   int
}

// FederatedIdentity links an identity to an external provider account.
type FederatedIdentity struct {
	ProviderID string
	Provider   Provider
}

// Challenge is an outstanding one-time code. Attempts counts wrong guesses
// against this code.
type Challenge struct {
	Code      string
	ExpiresAt time.Time
	Attempts  int
}

// Identity is the account record shared by riders and drivers.
type Identity struct {
	ID           string
	Email        string
	Phone        string
	DisplayName  string
	Role         Role
	PasswordHash []byte
	Verified     bool
	Approved     bool
	Driver       *DriverProfile
	Federated    *FederatedIdentity
	Challenge    *Challenge
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasSecret reports whether a local password hash is stored.
func (i Identity) HasSecret() bool {
	return len(i.PasswordHash) > 0
}

// clone returns a copy that shares no mutable state with i.
func (i Identity) clone() Identity {
	out := i
	if i.PasswordHash != nil {
		out.PasswordHash = append([]byte(nil), i.PasswordHash...)
	}
	if i.Driver != nil {
		d := *i.Driver
		out.Driver = &d
	}
	if i.Federated != nil {
		f := *i.Federated
		out.Federated = &f
	}
	if i.Challenge != nil {
		c := *i.Challenge
		out.Challenge = &c
	}
	return out
}

// Session is the result of a successful authentication step.
type Session struct {
	Identity  Identity
	Token     string
	ExpiresAt time.Time
	Created   bool
}

// ChallengeRequest starts or restarts contact verification.
type ChallengeRequest struct {
	Email       string
	Phone       string
	DisplayName string
	Role        Role
	Driver      *DriverProfile
}

// ChallengeResult tells the caller which identity holds the challenge and how it was sent.
type ChallengeResult struct {
	IdentityID string
	Channel    Channel
}

// VerifyRequest redeems a challenge.
type VerifyRequest struct {
	IdentityID string
	Code       string
	Secret     string
	Role       Role
}

// LoginRequest authenticates with a local secret.
type LoginRequest struct {
	Email  string
	Phone  string
	Role   Role
	Secret string
}

// FederatedRequest authenticates through an external provider.
type FederatedRequest struct {
	ProviderID  string
	Provider    Provider
	Email       string
	Phone       string
	DisplayName string
	Role        Role
}
