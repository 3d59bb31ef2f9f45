package syncutil

import (
	"testing"

	"github.com/google/uuid"
)

func TestCursorRoundTrip(t *testing.T) {
	c := PullCursor{Ms: 1_700_000_000_000, UID: uuid.New()}
	token := c.Encode()
	decoded, err := DecodeCursor(token)
	if err != nil {
		t.Fatalf("DecodeCursor() error = %v", err)
	}
	if decoded.Ms != c.Ms || decoded.UID != c.UID {
		t.Errorf("DecodeCursor() = %+v, want %+v", decoded, c)
	}
}

func TestDecodeCursorEmpty(t *testing.T) {
	decoded, err := DecodeCursor("")
	if err != nil {
		t.Fatalf("DecodeCursor(\"\") error = %v", err)
	}
	if decoded != (PullCursor{}) {
		t.Errorf("DecodeCursor(\"\") = %+v, want zero value", decoded)
	}
}

func TestDecodeCursorMalformed(t *testing.T) {
	tests := []string{"not-base64!!!", "aGVsbG8=", "MTIzfG5vdC1hLXV1aWQ="}
	for _, tok := range tests {
		if _, err := DecodeCursor(tok); err == nil {
			t.Errorf("DecodeCursor(%q) expected error, got nil", tok)
		}
	}
}
