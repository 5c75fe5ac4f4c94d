package pod

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// IssueCredentials generates a direct-access username/password pair for a
// pod that exposes a web-accessible port, storing only the bcrypt hash.
func IssueCredentials(podName string) (*Credentials, string, error) {
	password, err := randomPassword()
	if err != nil {
		return nil, "", fmt.Errorf("generating direct-access password: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hashing direct-access password: %w", err)
	}
	return &Credentials{Username: podName, PasswordHash: string(hash)}, password, nil
}

// VerifyCredentials checks password against the stored hash.
func VerifyCredentials(c *Credentials, password string) bool {
	if c == nil {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)) == nil
}

func randomPassword() (string, error) {
	buf := make([]byte, 10)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf), nil
}
