// Package token hashes and mints the opaque session secrets carried inside refresh credentials.
//
// Secrets are persisted only as a 64-char hex digest:
// - HMAC-SHA256(secret, key) when LOBBY_TOKEN_HMAC_KEY is configured.
// - SHA-256(secret) otherwise (local development).
//
// Production deployments set LOBBY_REQUIRE_TOKEN_HMAC=true so the unkeyed fallback is refused at startup.
package token
