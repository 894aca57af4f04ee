package logctx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestHandlerAddsGroups(t *testing.T) {
	var buf bytes.Buffer
	log := Wrap(slog.New(slog.NewJSONHandler(&buf, nil))).With(slog.String("svc", "weather"))

	ctx := WithRequestData(context.Background(), &RequestData{RequestID: "r1", Method: "POST", Path: "/mcp"})
	ctx = WithRPCMessage(ctx, &RPCMessage{Method: "tools/call", ID: "7", Type: "request"})
	ctx = WithToolCallData(ctx, &ToolCallData{ToolName: "get_weather"})
	ctx = WithAuthData(ctx, &AuthData{UserID: "u1", ClientID: "c1", Transport: "http"})
	log.InfoContext(ctx, "tool.call.ok")

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["svc"] != "weather" {
		t.Fatalf("derived attrs lost: %v", got)
	}
	for group, key := range map[string]string{"req": "id", "rpc": "method", "tool": "name", "auth": "user_id"} {
		g, ok := got[group].(map[string]any)
		if !ok || g[key] == "" {
			t.Fatalf("group %s missing: %v", group, got)
		}
	}
	if RequestID(ctx) != "r1" {
		t.Fatalf("request id = %q", RequestID(ctx))
	}
}

func TestWrapNil(t *testing.T) {
	l := Wrap(nil)
	l.Info("discarded")
	if Wrap(l) == nil {
		t.Fatalf("wrap returned nil")
	}
}
