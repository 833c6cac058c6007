// Package v1 defines the lobby presence protocol v1 contract.
//
// It is shared between the server and clients and has no dependencies outside the standard library.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is embedded into every envelope.
const Version = "v1"

// Subprotocol is the websocket subprotocol clients should offer.
const Subprotocol = "lobby.presence.v1"

// Type constants (wire-stable).
const (
	// TypeOnline announces a user's first connection (server -> client).
	TypeOnline = "presence.online"
	// TypeOffline announces that a user's last connection closed (server -> client).
	TypeOffline = "presence.offline"
	// TypeSnapshot lists the online users visible to the recipient (server -> client).
	TypeSnapshot = "presence.snapshot"
	// TypeSync asks the server for a fresh snapshot (client -> server).
	TypeSync = "presence.sync"

	// TypeError is a generic error envelope (server -> client).
	TypeError = "error"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}

	switch strings.TrimSpace(e.Type) {
	case "":
		return errors.New("missing field: type")
	case TypeOnline, TypeOffline, TypeSnapshot, TypeSync, TypeError:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// ---- Payloads ----

// UserPayload identifies a user in online/offline events and snapshots.
type UserPayload struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// SnapshotPayload lists visible online users.
type SnapshotPayload struct {
	Users []UserPayload `json:"users"`
}

// SyncPayload is empty; the envelope type carries the request.
type SyncPayload struct{}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
