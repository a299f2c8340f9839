package identity

import "golang.org/x/crypto/bcrypt"

// PasswordHasher hashes and checks local secrets.
type PasswordHasher interface {
	Hash(secret string) ([]byte, error)
	Verify(hash []byte, secret string) bool
}

// BcryptHasher implements PasswordHasher with bcrypt.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) Hash(secret string) ([]byte, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return bcrypt.GenerateFromPassword([]byte(secret), cost)
}

func (b BcryptHasher) Verify(hash []byte, secret string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(secret)) == nil
}
