// Package session issues, rotates and revokes the credentials bound to a (user, device) pair.
//
// A login or refresh always invalidates the pair's live session row before inserting its
// replacement, so each device holds at most one valid session. The refresh credential is a
// JWT carrying the session secret; the secret is stored only as a hash (see security/token).
// Access credentials are short-lived JWTs that are never persisted.
//
// Stale rows are removed by the Reaper once they are older than the refresh lifetime.
package session
