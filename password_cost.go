//go:build !race

package auth

// PasswordHashCost is the bcrypt work factor for stored credentials.
const PasswordHashCost = 12

func passwordHashCost() int {
	return PasswordHashCost
}
