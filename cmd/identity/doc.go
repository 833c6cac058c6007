// Package identity owns player accounts: registration input rules, the user directory
// (Postgres and SQLite), and password hashing behind the PasswordHasher capability.
//
// Errors carry stable kinds (ErrInvalidInput, ErrNotFound, ErrConflict) so HTTP layers can map
// them without string matching.
package identity
