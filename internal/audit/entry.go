// Package audit keeps a tamper-evident, append-only record of security
// relevant events as HMAC-digested JSON lines, one file per UTC day.
package audit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

type EventType string

const (
	EventAccess           EventType = "ACCESS"
	EventAuthentication   EventType = "AUTHENTICATION"
	EventDataModification EventType = "DATA_MODIFICATION"
	EventSecurity         EventType = "SECURITY"
	EventSystem           EventType = "SYSTEM"
)

type Result string

const (
	ResultSuccess   Result = "SUCCESS"
	ResultFailure   Result = "FAILURE"
	ResultDenied    Result = "DENIED"
	ResultBlocked   Result = "BLOCKED"
	ResultSanitized Result = "SANITIZED"
)

const AnonymousActor = "anonymous"

type Actor struct {
	UserID string `json:"userId"`
	Email  string `json:"email,omitempty"`
}

// Entry is one persisted audit line. Digest covers every other field.
type Entry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	EventType EventType      `json:"eventType"`
	Action    string         `json:"action"`
	Result    Result         `json:"result"`
	Actor     Actor          `json:"actor"`
	SessionID string         `json:"sessionId,omitempty"`
	IPAddress string         `json:"ipAddress,omitempty"`
	UserAgent string         `json:"userAgent,omitempty"`
	RequestID string         `json:"requestId,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Digest    string         `json:"digest,omitempty"`
}

// Event is what callers hand to a Recorder. Empty request fields are filled
// from the Meta carried by ctx.
type Event struct {
	Type      EventType
	Action    string
	Result    Result
	Actor     Actor
	SessionID string
	IPAddress string
	UserAgent string
	RequestID string
	Details   map[string]any
}

// Recorder is the write side of the trail. Record never fails the caller;
// persistence problems are handled internally.
type Recorder interface {
	Record(ctx context.Context, ev Event)
}

// Meta is request-scoped context the HTTP layer attaches once per request.
type Meta struct {
	RequestID string
	IPAddress string
	UserAgent string
	SessionID string
	Actor     Actor
}

type metaCtxKey struct{}

func WithMeta(ctx context.Context, m Meta) context.Context {
	return context.WithValue(ctx, metaCtxKey{}, m)
}

func MetaFromContext(ctx context.Context) (Meta, bool) {
	m, ok := ctx.Value(metaCtxKey{}).(Meta)
	return m, ok
}

// canonical is the digest input: the entry's JSON with Digest omitted.
func canonical(e Entry) ([]byte, error) {
	e.Digest = ""
	return json.Marshal(e)
}

func computeDigest(secret []byte, e Entry) (string, error) {
	payload, err := canonical(e)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// verifyDigest recomputes the HMAC and compares in constant time.
func verifyDigest(secret []byte, e Entry) bool {
	want, err := hex.DecodeString(e.Digest)
	if err != nil || len(want) == 0 {
		return false
	}
	payload, err := canonical(e)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), want)
}

// Discard is a Recorder that drops every event.
type Discard struct{}

func (Discard) Record(context.Context, Event) {}
