package auth

import (
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"
)

// PermissionWildcard is the seed-time shorthand for "every catalog permission".
// It is expanded when a role is provisioned and never stored.
const PermissionWildcard = "*"

var permissionSegment = regexp.MustCompile(`^[a-z][a-z0-9_.-]*$`)

// PermissionCode joins resource and action into the catalog code.
func PermissionCode(resource, action string) string {
	return strings.ToLower(strings.TrimSpace(resource)) + ":" + strings.ToLower(strings.TrimSpace(action))
}

// ParsePermissionCode splits a resource:action code.
func ParsePermissionCode(code string) (resource, action string, err error) {
	resource, action, ok := strings.Cut(strings.TrimSpace(code), ":")
	if !ok {
		return "", "", validationError("permission code must be resource:action", TextCodeInvalidPermission, map[string]any{
			"code": code,
		})
	}
	return resource, action, nil
}

// NewPermission builds a catalog entry. Name defaults to the code.
func NewPermission(resource, action, name, description string, now time.Time) (*Permission, error) {
	resource = strings.ToLower(strings.TrimSpace(resource))
	action = strings.ToLower(strings.TrimSpace(action))

	err := validation.Errors{
		"resource": validation.Validate(resource, validation.Required, validation.Match(permissionSegment)),
		"action":   validation.Validate(action, validation.Required, validation.Match(permissionSegment)),
	}.Filter()
	if err != nil {
		return nil, validationError("invalid permission", TextCodeInvalidPermission, map[string]any{
			"reason": err.Error(),
		})
	}

	code := PermissionCode(resource, action)
	name = strings.TrimSpace(name)
	if name == "" {
		name = code
	}

	return &Permission{
		ID:          uuid.New(),
		Resource:    resource,
		Action:      action,
		Code:        code,
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatedAt:   now,
	}, nil
}

// PermissionSet is the effective permission id set of a principal.
type PermissionSet map[uuid.UUID]struct{}

// NewPermissionSet collects ids into a set.
func NewPermissionSet(ids ...uuid.UUID) PermissionSet {
	set := make(PermissionSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func (s PermissionSet) Has(id uuid.UUID) bool {
	_, ok := s[id]
	return ok
}

func (s PermissionSet) Len() int { return len(s) }

// IDs returns the members in a stable order.
func (s PermissionSet) IDs() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	return sortedIDs(out)
}
