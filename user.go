package auth

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
)

// LockoutPolicy controls failed-login counting.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// DefaultLockoutPolicy locks for 30 minutes after 5 consecutive failures.
var DefaultLockoutPolicy = LockoutPolicy{
	Threshold: 5,
	Duration:  30 * time.Minute,
}

func (p LockoutPolicy) normalized() LockoutPolicy {
	if p.Threshold <= 0 {
		p.Threshold = DefaultLockoutPolicy.Threshold
	}
	if p.Duration <= 0 {
		p.Duration = DefaultLockoutPolicy.Duration
	}
	return p
}

// NewUser creates an active, unverified, unlocked account.
func NewUser(email Email, password Password, firstName, lastName string, now time.Time) *User {
	return &User{
		ID:           uuid.New(),
		Email:        email.String(),
		PasswordHash: password.Hash(),
		FirstName:    strings.TrimSpace(firstName),
		LastName:     strings.TrimSpace(lastName),
		Active:       true,
		RoleIDs:      []uuid.UUID{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Password returns the stored credential.
func (u *User) Password() Password {
	return PasswordFromHash(u.PasswordHash)
}

// IsLocked reports whether the lock window is open at now. It never
// mutates; call Reconcile first to clear an elapsed lock.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// Reconcile clears an elapsed lock together with the failure counter. It
// returns true when state changed.
func (u *User) Reconcile(now time.Time) bool {
	if u.LockedUntil == nil || now.Before(*u.LockedUntil) {
		return false
	}
	u.LockedUntil = nil
	u.FailedLogins = 0
	u.UpdatedAt = now
	return true
}

// RecordFailedLogin increments the counter and opens the lock window once
// the threshold is reached. It returns true when this call locked the account.
func (u *User) RecordFailedLogin(now time.Time, policy LockoutPolicy) bool {
	policy = policy.normalized()

	u.FailedLogins++
	u.UpdatedAt = now

	if u.FailedLogins >= policy.Threshold && !u.IsLocked(now) {
		until := now.Add(policy.Duration)
		u.LockedUntil = &until
		return true
	}
	return false
}

// RecordSuccessfulLogin resets the lockout state.
func (u *User) RecordSuccessfulLogin(now time.Time) {
	u.Unlock(now)
}

// Unlock clears the counter and any lock.
func (u *User) Unlock(now time.Time) {
	if u.FailedLogins == 0 && u.LockedUntil == nil {
		return
	}
	u.FailedLogins = 0
	u.LockedUntil = nil
	u.UpdatedAt = now
}

// ChangePassword swaps the hash. Lockout state is left alone.
func (u *User) ChangePassword(p Password, now time.Time) {
	u.PasswordHash = p.Hash()
	u.UpdatedAt = now
}

func (u *User) IsEmailVerified() bool {
	return u.EmailVerifiedAt != nil
}

// VerifyEmail stamps the verification time once. It returns false when the
// address was already verified.
func (u *User) VerifyEmail(now time.Time) bool {
	if u.EmailVerifiedAt != nil {
		return false
	}
	at := now
	u.EmailVerifiedAt = &at
	u.UpdatedAt = now
	return true
}

// Activate returns true when the flag changed.
func (u *User) Activate(now time.Time) bool {
	if u.Active {
		return false
	}
	u.Active = true
	u.UpdatedAt = now
	return true
}

// Deactivate returns true when the flag changed.
func (u *User) Deactivate(now time.Time) bool {
	if !u.Active {
		return false
	}
	u.Active = false
	u.UpdatedAt = now
	return true
}

func (u *User) HasRole(id uuid.UUID) bool {
	return slices.Contains(u.RoleIDs, id)
}

// AssignRole adds id to the role set. It returns false when already present.
func (u *User) AssignRole(id uuid.UUID, now time.Time) bool {
	if u.HasRole(id) {
		return false
	}
	u.RoleIDs = sortedIDs(append(u.RoleIDs, id))
	u.UpdatedAt = now
	return true
}

// RemoveRole drops id from the role set. It returns false when absent.
func (u *User) RemoveRole(id uuid.UUID, now time.Time) bool {
	idx := slices.Index(u.RoleIDs, id)
	if idx < 0 {
		return false
	}
	u.RoleIDs = slices.Delete(u.RoleIDs, idx, idx+1)
	u.UpdatedAt = now
	return true
}

// NormalizePhone parses a phone number and formats it as E.164. An empty
// input yields an empty result.
func NormalizePhone(raw, defaultRegion string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	if defaultRegion == "" {
		defaultRegion = "US"
	}

	num, err := phonenumbers.Parse(raw, defaultRegion)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", validationError("invalid phone number", TextCodeInvalidPhone, map[string]any{
			"phone": raw,
		})
	}

	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// dedupeIDs returns the unique ids in a stable sorted order.
func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return sortedIDs(out)
}

func sortedIDs(ids []uuid.UUID) []uuid.UUID {
	slices.SortFunc(ids, func(a, b uuid.UUID) int {
		return strings.Compare(a.String(), b.String())
	})
	return ids
}
