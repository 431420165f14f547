package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func sseHandler(t *testing.T, fragments []string, seen *[]generateRequest) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-2.5-flash:streamGenerateContent" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("alt") != "sse" {
			t.Error("expected alt=sse")
		}
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
			return
		}
		*seen = append(*seen, req)

		w.Header().Set("Content-Type", "text/event-stream")
		for _, f := range fragments {
			fmt.Fprintf(w, "data: {\"candidates\":[{\"content\":{\"role\":\"model\",\"parts\":[{\"text\":%q}]}}]}\r\n\r\n", f)
		}
	}
}

func TestChatSession_SendStream(t *testing.T) {
	var seen []generateRequest
	c := newTestClient(t, sseHandler(t, []string{"Hello", ", ", "world"}, &seen))
	chat := c.NewChat()

	var got []string
	reply, err := chat.SendStream(context.Background(), "hi", func(f string) {
		got = append(got, f)
	})
	if err != nil {
		t.Fatalf("SendStream() error = %v", err)
	}
	if reply != "Hello, world" {
		t.Errorf("reply = %q", reply)
	}
	if strings.Join(got, "|") != "Hello|, |world" {
		t.Errorf("fragments = %q", got)
	}

	req := seen[0]
	if req.SystemInstruction == nil || req.SystemInstruction.Parts[0].Text != DefaultSystemInstruction {
		t.Error("expected default system instruction")
	}
	if len(req.Contents) != 1 || req.Contents[0].Role != roleUser {
		t.Errorf("unexpected contents: %+v", req.Contents)
	}
}

func TestChatSession_KeepsHistory(t *testing.T) {
	var seen []generateRequest
	c := newTestClient(t, sseHandler(t, []string{"ok"}, &seen))
	chat := c.NewChat().(*ChatSession)

	for _, msg := range []string{"first", "second"} {
		if _, err := chat.SendStream(context.Background(), msg, nil); err != nil {
			t.Fatal(err)
		}
	}

	if chat.Turns() != 2 {
		t.Errorf("Turns() = %d, want 2", chat.Turns())
	}
	second := seen[1].Contents
	if len(second) != 3 {
		t.Fatalf("second request carries %d contents, want 3", len(second))
	}
	wantRoles := []string{roleUser, roleModel, roleUser}
	for i, c := range second {
		if c.Role != wantRoles[i] {
			t.Errorf("contents[%d].Role = %q, want %q", i, c.Role, wantRoles[i])
		}
	}
	if second[1].Parts[0].Text != "ok" {
		t.Errorf("history reply = %q", second[1].Parts[0].Text)
	}
}

func TestChatSession_ErrorLeavesHistory(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"code":500,"message":"internal","status":"INTERNAL"}}`))
	})
	chat := c.NewChat().(*ChatSession)

	if _, err := chat.SendStream(context.Background(), "hi", nil); err == nil {
		t.Fatal("expected error")
	}
	if chat.Turns() != 0 {
		t.Errorf("Turns() = %d after failure, want 0", chat.Turns())
	}
}

func TestChatSession_EmptyStream(t *testing.T) {
	var seen []generateRequest
	c := newTestClient(t, sseHandler(t, nil, &seen))

	if _, err := c.NewChat().SendStream(context.Background(), "hi", nil); err == nil {
		t.Error("expected error for empty stream")
	}
}
