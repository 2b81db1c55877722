package audit

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"gasmonitor-cloud/internal/auth"
)

// Entry represents an audit log entry.
type Entry struct {
	ID            string
	Actor         string
	Role          string
	Action        string
	ResourceType  string
	ResourceID    string
	Metadata      json.RawMessage
	PayloadDigest string
	IP            string
	UserAgent     string
	CreatedAt     time.Time
}

// Logger writes audit entries.
type Logger interface {
	Log(ctx context.Context, entry Entry) error
}

// NewID generates a random audit id.
func NewID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return "audit-" + hex.EncodeToString(buf)
}

// DigestJSON computes a SHA256 hex digest for metadata payloads.
func DigestJSON(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Record writes a best-effort audit entry for an HTTP request. A nil
// logger is a no-op and failures are swallowed so auditing never
// blocks the request path.
func Record(ctx context.Context, logger Logger, r *http.Request, action, resourceType string, resourceID int64, metadata json.RawMessage) {
	if logger == nil {
		return
	}
	entry := Entry{
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   strconv.FormatInt(resourceID, 10),
		Actor:        auth.SubjectFromContext(ctx),
		Role:         string(auth.RoleFromContext(ctx)),
		Metadata:     metadata,
	}
	if r != nil {
		entry.UserAgent = r.UserAgent()
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			entry.IP = host
		} else {
			entry.IP = r.RemoteAddr
		}
	}
	_ = logger.Log(ctx, entry)
}
