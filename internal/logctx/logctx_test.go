package logctx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestHandlerAddsContextGroups(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(Handler{Handler: slog.NewJSONHandler(&buf, nil)})

	ctx := WithSessionData(context.Background(), &SessionData{SessionID: "s1", Status: "active"})
	ctx = WithMessageData(ctx, &MessageData{Type: "action", ParticipantID: "p1"})
	log.InfoContext(ctx, "test.event")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	sess, ok := rec["sess"].(map[string]any)
	if !ok || sess["id"] != "s1" || sess["status"] != "active" {
		t.Fatalf("sess group = %v", rec["sess"])
	}
	msg, ok := rec["msg"].(map[string]any)
	if !ok || msg["type"] != "action" || msg["participant_id"] != "p1" {
		t.Fatalf("msg group = %v", rec["msg"])
	}
}

func TestHandlerWithoutContextData(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(Handler{Handler: slog.NewJSONHandler(&buf, nil)})
	log.Info("bare.event")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if _, ok := rec["sess"]; ok {
		t.Fatal("no session data was attached")
	}
	if _, ok := rec["msg"]; ok {
		t.Fatal("no message data was attached")
	}
}
