// Package password hashes and verifies player passwords with Argon2id.
//
// Encoded hashes use the PHC string layout and are treated as untrusted input on Verify:
// parameters far above the configured cost are refused.
package password
