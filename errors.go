package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	TextCodeInvalidEmail        = "INVALID_EMAIL"
	TextCodeWeakPassword        = "WEAK_PASSWORD"
	TextCodePasswordReuse       = "PASSWORD_REUSE"
	TextCodeInvalidPhone        = "INVALID_PHONE"
	TextCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	TextCodeAccountLocked       = "ACCOUNT_LOCKED"
	TextCodeAccountInactive     = "ACCOUNT_INACTIVE"
	TextCodeEmailUnverified     = "EMAIL_UNVERIFIED"
	TextCodeEmailTaken          = "EMAIL_TAKEN"
	TextCodeTokenInvalid        = "TOKEN_INVALID"
	TextCodeTokenExpired        = "TOKEN_EXPIRED"
	TextCodeTokenUsed           = "TOKEN_ALREADY_USED"
	TextCodeSystemRole          = "SYSTEM_ROLE_IMMUTABLE"
	TextCodeRoleNameTaken       = "ROLE_NAME_TAKEN"
	TextCodePermissionTaken     = "PERMISSION_CODE_TAKEN"
	TextCodePermissionDenied    = "PERMISSION_DENIED"
	TextCodeUserNotFound        = "USER_NOT_FOUND"
	TextCodeRoleNotFound        = "ROLE_NOT_FOUND"
	TextCodePermissionNotFound  = "PERMISSION_NOT_FOUND"
	TextCodeTenantNotFound      = "TENANT_NOT_FOUND"
	TextCodeRecordNotFound      = "RECORD_NOT_FOUND"
	TextCodeInvalidPermission   = "INVALID_PERMISSION"
	TextCodeInvalidRole         = "INVALID_ROLE"
	TextCodeInfrastructure      = "INFRASTRUCTURE"
	TextCodeInvalidConfig       = "INVALID_CONFIG"
	TextCodeAccessTokenRejected = "ACCESS_TOKEN_REJECTED"
)

// ErrInvalidCredentials is returned by Login both for unknown accounts and
// wrong passwords so callers cannot tell the two apart.
var ErrInvalidCredentials = goerrors.New("invalid email or password", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrAccountLocked is returned while the lockout window is open.
var ErrAccountLocked = goerrors.New("account is temporarily locked", goerrors.CategoryAuthz).
	WithTextCode(TextCodeAccountLocked).
	WithCode(goerrors.CodeForbidden)

// ErrAccountInactive is returned for deactivated accounts.
var ErrAccountInactive = goerrors.New("account is inactive", goerrors.CategoryAuthz).
	WithTextCode(TextCodeAccountInactive).
	WithCode(goerrors.CodeForbidden)

// ErrEmailUnverified is returned by Login when verified emails are required.
var ErrEmailUnverified = goerrors.New("email address has not been verified", goerrors.CategoryAuthz).
	WithTextCode(TextCodeEmailUnverified).
	WithCode(goerrors.CodeForbidden)

// ErrEmailTaken is returned when registering an email that already exists.
var ErrEmailTaken = goerrors.New("email address is already registered", goerrors.CategoryConflict).
	WithTextCode(TextCodeEmailTaken).
	WithCode(goerrors.CodeConflict)

// ErrTokenInvalid covers unknown, expired and revoked refresh tokens.
var ErrTokenInvalid = goerrors.New("invalid or expired token", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenInvalid).
	WithCode(goerrors.CodeUnauthorized)

// ErrOneTimeTokenInvalid is returned for unknown reset or verification tokens.
var ErrOneTimeTokenInvalid = goerrors.New("invalid token", goerrors.CategoryValidation).
	WithTextCode(TextCodeTokenInvalid).
	WithCode(goerrors.CodeBadRequest)

// ErrOneTimeTokenExpired is returned for reset or verification tokens past expiry.
var ErrOneTimeTokenExpired = goerrors.New("token has expired", goerrors.CategoryValidation).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeBadRequest)

// ErrOneTimeTokenUsed is returned for reset or verification tokens already consumed.
var ErrOneTimeTokenUsed = goerrors.New("token has already been used", goerrors.CategoryValidation).
	WithTextCode(TextCodeTokenUsed).
	WithCode(goerrors.CodeBadRequest)

// ErrPasswordReuse is returned when the new password equals the current one.
var ErrPasswordReuse = goerrors.New("new password must be different from the current password", goerrors.CategoryValidation).
	WithTextCode(TextCodePasswordReuse).
	WithCode(goerrors.CodeBadRequest)

// ErrSystemRole is returned when mutating a system role.
var ErrSystemRole = goerrors.New("system roles cannot be modified", goerrors.CategoryAuthz).
	WithTextCode(TextCodeSystemRole).
	WithCode(goerrors.CodeForbidden)

// ErrRoleNameTaken is returned when a role name already exists in a tenant scope.
var ErrRoleNameTaken = goerrors.New("role name already exists in this scope", goerrors.CategoryConflict).
	WithTextCode(TextCodeRoleNameTaken).
	WithCode(goerrors.CodeConflict)

// ErrPermissionTaken is returned when a permission code already exists.
var ErrPermissionTaken = goerrors.New("permission code already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodePermissionTaken).
	WithCode(goerrors.CodeConflict)

// ErrPermissionDenied is returned by the resolver when a permission is missing.
var ErrPermissionDenied = goerrors.New("permission denied", goerrors.CategoryAuthz).
	WithTextCode(TextCodePermissionDenied).
	WithCode(goerrors.CodeForbidden)

var ErrUserNotFound = goerrors.New("user not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(goerrors.CodeNotFound)

var ErrRoleNotFound = goerrors.New("role not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeRoleNotFound).
	WithCode(goerrors.CodeNotFound)

var ErrPermissionNotFound = goerrors.New("permission not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodePermissionNotFound).
	WithCode(goerrors.CodeNotFound)

var ErrTenantNotFound = goerrors.New("organization not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeTenantNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrRecordNotFound is what stores return when a lookup has no match.
// Command handlers translate it into the kind each flow requires.
var ErrRecordNotFound = goerrors.New("record not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeRecordNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrorKind is the domain classification of an error.
type ErrorKind string

const (
	KindUnknown        ErrorKind = "unknown"
	KindValidation     ErrorKind = "validation"
	KindUnauthorized   ErrorKind = "unauthorized"
	KindForbidden      ErrorKind = "forbidden"
	KindConflict       ErrorKind = "conflict"
	KindNotFound       ErrorKind = "not_found"
	KindInfrastructure ErrorKind = "infrastructure"
)

// KindOf classifies err. Context cancellation and deadlines count as
// infrastructure failures.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		if richErr.TextCode == TextCodeInfrastructure {
			return KindInfrastructure
		}
		switch richErr.Category {
		case goerrors.CategoryValidation, goerrors.CategoryBadInput:
			return KindValidation
		case goerrors.CategoryAuth:
			return KindUnauthorized
		case goerrors.CategoryAuthz:
			return KindForbidden
		case goerrors.CategoryConflict:
			return KindConflict
		case goerrors.CategoryNotFound:
			return KindNotFound
		case goerrors.CategoryInternal, goerrors.CategoryOperation:
			return KindInfrastructure
		}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindInfrastructure
	}

	return KindUnknown
}

func IsValidation(err error) bool     { return KindOf(err) == KindValidation }
func IsUnauthorized(err error) bool   { return KindOf(err) == KindUnauthorized }
func IsForbidden(err error) bool      { return KindOf(err) == KindForbidden }
func IsConflict(err error) bool       { return KindOf(err) == KindConflict }
func IsNotFound(err error) bool       { return KindOf(err) == KindNotFound }
func IsInfrastructure(err error) bool { return KindOf(err) == KindInfrastructure }

// infrastructureError wraps a store failure. Errors that already carry a
// domain category pass through untouched.
func infrastructureError(err error, message string) error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode != "" && richErr.Category != goerrors.CategoryInternal {
		return err
	}

	return goerrors.Wrap(err, goerrors.CategoryInternal, message).
		WithTextCode(TextCodeInfrastructure).
		WithCode(goerrors.CodeInternal)
}

const pgErrUniqueViolation = "23505"

// uniqueViolation reports whether a store error is a unique constraint failure.
func uniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrUniqueViolation
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}

	// cgo sqlite driver
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

// notFound reports whether a store error means "no such record".
func notFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRecordNotFound) || errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err) {
		return true
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.Category == goerrors.CategoryNotFound
	}
	return false
}

func validationError(message, textCode string, metadata map[string]any) error {
	err := goerrors.New(message, goerrors.CategoryValidation).
		WithTextCode(textCode).
		WithCode(goerrors.CodeBadRequest)
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}
