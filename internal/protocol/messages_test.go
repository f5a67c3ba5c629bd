package protocol

import (
	"errors"
	"testing"
)

func TestParseControlMessageGetStatus(t *testing.T) {
	msg, err := ParseControlMessage([]byte(`{"type":"get_status"}`))
	if err != nil {
		t.Fatalf("ParseControlMessage() error = %v", err)
	}
	env, ok := msg.(Envelope)
	if !ok || env.Type != TypeGetStatus {
		t.Fatalf("unexpected parse result: %#v", msg)
	}
}

func TestParseControlMessageUpdateInstructions(t *testing.T) {
	msg, err := ParseControlMessage([]byte(`{"type":"update_instructions","instructions":"Be brief."}`))
	if err != nil {
		t.Fatalf("ParseControlMessage() error = %v", err)
	}
	upd, ok := msg.(UpdateInstructions)
	if !ok || upd.Instructions != "Be brief." {
		t.Fatalf("unexpected parse result: %#v", msg)
	}
}

func TestParseControlMessageRejectsEmptyInstructions(t *testing.T) {
	if _, err := ParseControlMessage([]byte(`{"type":"update_instructions"}`)); err == nil {
		t.Fatalf("expected error for missing instructions")
	}
}

func TestParseControlMessageUnknownType(t *testing.T) {
	_, err := ParseControlMessage([]byte(`{"type":"reboot_universe"}`))
	if !errors.Is(err, ErrUnknownControl) {
		t.Fatalf("err = %v, want ErrUnknownControl", err)
	}
}

func TestParseControlMessageMalformed(t *testing.T) {
	_, err := ParseControlMessage([]byte(`{not json`))
	if err == nil || errors.Is(err, ErrUnknownControl) {
		t.Fatalf("err = %v, want decode error", err)
	}
}
