package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"testing"

	"crewdock.org/internal/auth"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(os.Stderr) })
	return &buf
}

func TestLogEventEnrichment(t *testing.T) {
	buf := capture(t)

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = auth.ContextWithPrincipal(ctx, auth.PrincipalContext{
		PrincipalID: "p1",
		Role:        auth.RoleTenantAdmin,
		TenantID:    "t1",
	})
	LogEvent(ctx, "session_revoked", map[string]any{"reason": "logout"})

	var ev Event
	if err := json.Unmarshal(buf.Bytes(), &ev); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if ev.Kind != "session_revoked" {
		t.Fatalf("kind = %q", ev.Kind)
	}
	if ev.RequestID != "req-1" {
		t.Fatalf("request id = %q", ev.RequestID)
	}
	if ev.PrincipalID != "p1" || ev.TenantID != "t1" {
		t.Fatalf("principal enrichment missing: %+v", ev)
	}
	if ev.Fields["reason"] != "logout" {
		t.Fatalf("fields = %v", ev.Fields)
	}
}

func TestLogEventWithoutContext(t *testing.T) {
	buf := capture(t)

	LogEvent(context.Background(), "tenant_created", nil)

	var ev Event
	if err := json.Unmarshal(buf.Bytes(), &ev); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if ev.RequestID != "" || ev.PrincipalID != "" {
		t.Fatalf("unexpected enrichment: %+v", ev)
	}
	if ev.Time == "" {
		t.Fatal("missing timestamp")
	}
}
