// Package auth implements account authentication, the token lifecycle and
// role based access control on top of bun repositories.
//
// Accounts:
//   - User is the aggregate. Emails are normalized and unique, passwords are
//     bcrypt hashes checked against a policy, and consecutive failed logins
//     lock the account for a configurable window.
//   - Login never reveals whether an email is registered. ForgotPassword and
//     ResendVerification always answer Accepted.
//
// Tokens:
//   - Access tokens are HS256 JWTs carrying role ids and names. Refresh,
//     password reset and email verification tokens are opaque random values
//     persisted by the stores.
//   - Refresh rotates: the presented token is revoked with a conditional
//     update so concurrent reuse yields exactly one winner. The refreshredis
//     package provides the same guarantee on Redis.
//
// RBAC:
//   - Roles bundle permission ids and are unique by name within a tenant
//     scope. Resolver unions the grants of a principal's roles; there is no
//     hierarchy.
//   - Provisioner seeds the catalog and roles idempotently; the "*" entry
//     expands to every permission known at seed time.
//
// Activity sinks:
//   - Commands emit ActivityEvent values after they commit. Sinks run best
//     effort, errors are logged. Dispatcher moves delivery off the request path.
//
// Claims decoration:
//   - ClaimsDecorator is invoked before JWTs are signed. Decorators may add
//     metadata while protected claims (sub, iss, aud, exp, roles, etc.) remain
//     immutable.
package auth
