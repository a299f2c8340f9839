package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNoRecord is returned by repositories when no identity matches.
	ErrNoRecord = errors.New("identity record not found")
	// ErrDuplicate is returned when a unique key (email, phone, provider) is taken.
	ErrDuplicate = errors.New("identity record already exists")
	// ErrStaleWrite is returned when a conditional update finds the record in an unexpected state.
	ErrStaleWrite = errors.New("identity record changed concurrently")
)

// Repository persists identities. Conditional writes report ErrStaleWrite instead
// of overwriting state they did not observe.
type Repository interface {
	Create(ctx context.Context, ident Identity) error
	FindByID(ctx context.Context, id string) (Identity, error)
	// FindByContact matches on email first, then phone. Empty arguments are ignored.
	FindByContact(ctx context.Context, email, phone string) (Identity, error)
	FindByFederated(ctx context.Context, providerID string, provider Provider) (Identity, error)
	// ReplaceChallenge stores ch on an identity that is still unverified.
	ReplaceChallenge(ctx context.Context, id string, ch Challenge, at time.Time) error
	// RecordMismatch counts a wrong guess against the pending challenge whose code
	// is code. The challenge is removed once maxAttempts is reached, which is
	// reported as exhausted.
	RecordMismatch(ctx context.Context, id, code string, maxAttempts int) (exhausted bool, err error)
	// CompleteVerification writes next only while the pending challenge code equals expectedCode.
	CompleteVerification(ctx context.Context, next Identity, expectedCode string) error
	// UpdateDriverProfile stores the profile on a driver and resets approval.
	UpdateDriverProfile(ctx context.Context, id string, profile DriverProfile, at time.Time) error
}

// dbtx is the part of pgxpool.Pool the repository uses.
type dbtx interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db dbtx
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectColumns = `SELECT id, email, phone, display_name, role, password_hash, verified, approved,
    license_number, vehicle_type, vehicle_year, provider_id, provider_name,
    challenge_code, challenge_expires_at, challenge_attempts, created_at, updated_at FROM identities`

// Create inserts a new identity.
func (r *PostgresRepository) Create(ctx context.Context, ident Identity) error {
	id, err := uuid.Parse(ident.ID)
	if err != nil {
		return err
	}
	license, vehicle, year := driverColumns(ident.Driver)
	providerID, provider := federatedColumns(ident.Federated)
	code, expires, attempts := challengeColumns(ident.Challenge)

	_, err = r.db.Exec(ctx, `INSERT INTO identities (id, email, phone, display_name, role, password_hash, verified, approved,
        license_number, vehicle_type, vehicle_year, provider_id, provider_name, challenge_code, challenge_expires_at,
        challenge_attempts, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		id, nullable(ident.Email), nullable(ident.Phone), ident.DisplayName, string(ident.Role), ident.PasswordHash,
		ident.Verified, ident.Approved, license, vehicle, year, providerID, provider, code, expires, attempts,
		ident.CreatedAt.UTC(), ident.UpdatedAt.UTC())
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// FindByID fetches an identity by its identifier.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (Identity, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Identity{}, ErrNoRecord
	}
	return scanIdentity(r.db.QueryRow(ctx, selectColumns+` WHERE id = $1`, parsed))
}

// FindByContact fetches an identity by email or phone number.
func (r *PostgresRepository) FindByContact(ctx context.Context, email, phone string) (Identity, error) {
	if email == "" && phone == "" {
		return Identity{}, ErrNoRecord
	}
	return scanIdentity(r.db.QueryRow(ctx, selectColumns+`
        WHERE ($1::text IS NOT NULL AND email = $1) OR ($2::text IS NOT NULL AND phone = $2)
        ORDER BY (email = $1) IS TRUE DESC LIMIT 1`, nullable(email), nullable(phone)))
}

// FindByFederated fetches an identity by its provider key.
func (r *PostgresRepository) FindByFederated(ctx context.Context, providerID string, provider Provider) (Identity, error) {
	return scanIdentity(r.db.QueryRow(ctx, selectColumns+` WHERE provider_id = $1 AND provider_name = $2`, providerID, string(provider)))
}

// ReplaceChallenge overwrites the pending challenge of an unverified identity.
func (r *PostgresRepository) ReplaceChallenge(ctx context.Context, id string, ch Challenge, at time.Time) error {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return ErrNoRecord
	}
	cmd, err := r.db.Exec(ctx, `UPDATE identities SET challenge_code = $1, challenge_expires_at = $2, challenge_attempts = 0,
        updated_at = $3 WHERE id = $4 AND verified = FALSE`, ch.Code, ch.ExpiresAt.UTC(), at.UTC(), parsed)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrStaleWrite
	}
	return nil
}

// RecordMismatch increments the attempt counter of the pending challenge and
// clears the challenge when the counter reaches maxAttempts, in one statement.
func (r *PostgresRepository) RecordMismatch(ctx context.Context, id, code string, maxAttempts int) (bool, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return false, ErrNoRecord
	}
	var exhausted bool
	err = r.db.QueryRow(ctx, `UPDATE identities SET
        challenge_attempts = CASE WHEN challenge_attempts + 1 >= $3 THEN 0 ELSE challenge_attempts + 1 END,
        challenge_code = CASE WHEN challenge_attempts + 1 >= $3 THEN NULL ELSE challenge_code END,
        challenge_expires_at = CASE WHEN challenge_attempts + 1 >= $3 THEN NULL ELSE challenge_expires_at END
        WHERE id = $1 AND verified = FALSE AND challenge_code = $2
        RETURNING challenge_code IS NULL`, parsed, code, maxAttempts).Scan(&exhausted)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrStaleWrite
	}
	if err != nil {
		return false, err
	}
	return exhausted, nil
}

// CompleteVerification marks the identity verified if the expected code is still pending.
func (r *PostgresRepository) CompleteVerification(ctx context.Context, next Identity, expectedCode string) error {
	parsed, err := uuid.Parse(next.ID)
	if err != nil {
		return ErrNoRecord
	}
	license, vehicle, year := driverColumns(next.Driver)
	cmd, err := r.db.Exec(ctx, `UPDATE identities SET verified = TRUE, challenge_code = NULL, challenge_expires_at = NULL,
        challenge_attempts = 0, password_hash = $1, role = $2, approved = $3, license_number = $4, vehicle_type = $5, vehicle_year = $6, updated_at = $7
        WHERE id = $8 AND verified = FALSE AND challenge_code = $9`,
		next.PasswordHash, string(next.Role), next.Approved, license, vehicle, year, next.UpdatedAt.UTC(), parsed, expectedCode)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrStaleWrite
	}
	return nil
}

// UpdateDriverProfile stores a driver application and puts the driver back into review.
func (r *PostgresRepository) UpdateDriverProfile(ctx context.Context, id string, profile DriverProfile, at time.Time) error {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return ErrNoRecord
	}
	cmd, err := r.db.Exec(ctx, `UPDATE identities SET license_number = $1, vehicle_type = $2, vehicle_year = $3,
        approved = FALSE, updated_at = $4 WHERE id = $5 AND role = $6`,
		profile.LicenseNumber, string(profile.VehicleType), profile.VehicleYear, at.UTC(), parsed, string(RoleDriver))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrStaleWrite
	}
	return nil
}

func scanIdentity(row pgx.Row) (Identity, error) {
	var (
		id                         uuid.UUID
		email, phone               *string
		role                       string
		license, vehicle           *string
		year                       *int
		providerID, provider, code *string
		expires                    *time.Time
		attempts                   int
		ident                      Identity
	)
	err := row.Scan(&id, &email, &phone, &ident.DisplayName, &role, &ident.PasswordHash, &ident.Verified, &ident.Approved,
		&license, &vehicle, &year, &providerID, &provider, &code, &expires, &attempts, &ident.CreatedAt, &ident.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Identity{}, ErrNoRecord
		}
		return Identity{}, err
	}
	ident.ID = id.String()
	ident.Email = deref(email)
	ident.Phone = deref(phone)
	ident.Role = Role(role)
	ident.CreatedAt = ident.CreatedAt.UTC()
	ident.UpdatedAt = ident.UpdatedAt.UTC()
	if license != nil {
		ident.Driver = &DriverProfile{LicenseNumber: *license, VehicleType: VehicleType(deref(vehicle))}
		if year != nil {
			ident.Driver.VehicleYear = *year
		}
	}
	if providerID != nil {
		ident.Federated = &FederatedIdentity{ProviderID: *providerID, Provider: Provider(deref(provider))}
	}
	if code != nil && expires != nil {
		ident.Challenge = &Challenge{Code: *code, ExpiresAt: expires.UTC(), Attempts: attempts}
	}
	return ident, nil
}

func driverColumns(p *DriverProfile) (license, vehicle *string, year *int) {
	if p == nil {
		return nil, nil, nil
	}
	v := string(p.VehicleType)
	y := p.VehicleYear
	return &p.LicenseNumber, &v, &y
}

func federatedColumns(f *FederatedIdentity) (providerID, provider *string) {
	if f == nil {
		return nil, nil
	}
	p := string(f.Provider)
	return &f.ProviderID, &p
}

func challengeColumns(c *Challenge) (code *string, expires *time.Time, attempts int) {
	if c == nil {
		return nil, nil, 0
	}
	at := c.ExpiresAt.UTC()
	return &c.Code, &at, c.Attempts
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
