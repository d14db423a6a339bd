// Package auth issues and verifies the bearer tokens that guard the
// bridge's command endpoints.
//
// Tokens are HS256 JWTs signed with security.jwt.secret and carry a role.
// Roles map to a fixed permission set: viewers read state and history,
// operators may also send commands, admins additionally manage the bridge.
// There is no user database; chargerctl token mints tokens for a subject
// and role.
package auth
