package meeting

import (
	"golang.org/x/crypto/bcrypt"
)

// HashCost is the bcrypt cost used for meeting passwords.
var HashCost = bcrypt.DefaultCost

// HashPassword returns the bcrypt hash of a meeting password. An empty
// password yields an empty hash, meaning no password is required.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), HashCost)
	if err != nil {
		return "", NewError("hash password", "", err)
	}
	return string(hash), nil
}

// CheckPassword compares password against hash in constant time.
func CheckPassword(hash, password string) bool {
	if hash == "" {
		return true
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
