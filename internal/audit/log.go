// Package audit emits structured security events. Events are JSON lines
// on a dedicated writer so they can be shipped separately from
// application logs.
package audit

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"crewdock.org/internal/auth"
)

type requestIDKey struct{}

// WithRequestID tags ctx so subsequent audit events carry the id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

var (
	mu  sync.Mutex
	out io.Writer = os.Stderr
)

// SetOutput redirects audit events. Test hook.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

// Event is one audit record.
type Event struct {
	Time        string         `json:"ts"`
	Kind        string         `json:"kind"`
	RequestID   string         `json:"request_id,omitempty"`
	PrincipalID string         `json:"principal_id,omitempty"`
	TenantID    string         `json:"tenant_id,omitempty"`
	Fields      map[string]any `json:"fields,omitempty"`
}

// LogEvent records a security-relevant event, enriched with the request
// id and the authenticated principal when the context carries them.
// Audit failures are swallowed; auditing never fails the operation.
func LogEvent(ctx context.Context, kind string, fields map[string]any) {
	ev := Event{
		Time:      time.Now().UTC().Format(time.RFC3339Nano),
		Kind:      kind,
		RequestID: requestIDFrom(ctx),
		Fields:    fields,
	}
	if pc, ok := auth.PrincipalFromContext(ctx); ok {
		ev.PrincipalID = pc.PrincipalID
		ev.TenantID = pc.TenantID
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	b = append(b, '\n')
	mu.Lock()
	defer mu.Unlock()
	out.Write(b)
}
