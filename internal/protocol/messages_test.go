package protocol

import (
	"errors"
	"testing"
)

func TestParseClientMessageUserMessage(t *testing.T) {
	raw := []byte(`{"type":"user_message","session_id":"s1","text":"I can't sleep","ts_ms":123}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}

	um, ok := msg.(UserMessage)
	if !ok {
		t.Fatalf("message type = %T, want UserMessage", msg)
	}
	if um.SessionID != "s1" || um.Text != "I can't sleep" || um.TSMs != 123 {
		t.Fatalf("unexpected user message: %+v", um)
	}
}

func TestParseClientMessageKeepsEmptyText(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"user_message","text":"  "}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	if um := msg.(UserMessage); um.Text != "  " {
		t.Fatalf("Text = %q, want raw whitespace", um.Text)
	}
}

func TestParseClientMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wat"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseClientMessageRejectsInvalidJSON(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{"type":`)); err == nil {
		t.Fatalf("ParseClientMessage() expected error for invalid json")
	}
}

func TestParseClientMessageControl(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"client_control","action":"end_session"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	control, ok := msg.(ClientControl)
	if !ok || control.Action != "end_session" {
		t.Fatalf("unexpected control: %#v", msg)
	}

	if _, err := ParseClientMessage([]byte(`{"type":"client_control"}`)); err == nil {
		t.Fatalf("ParseClientMessage() expected error for control without action")
	}
}
