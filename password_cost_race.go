//go:build race

package auth

import "golang.org/x/crypto/bcrypt"

// PasswordHashCost is the bcrypt work factor for stored credentials.
const PasswordHashCost = 12

func passwordHashCost() int {
	// Reduce cost for race-enabled builds so test suites can run with strict timeouts.
	return bcrypt.DefaultCost
}
