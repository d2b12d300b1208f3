package policy

import (
	"strings"
	"testing"
)

func TestRedactPII(t *testing.T) {
	input := "Email me at sam@example.com or +1 (555) 123-9876 and use 4242 4242 4242 4242."
	out, changed := RedactPII(input)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	for _, marker := range []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]", "[REDACTED_CARD]"} {
		if !strings.Contains(out, marker) {
			t.Fatalf("output missing marker %q: %q", marker, out)
		}
	}
	if strings.Contains(out, "sam@example.com") {
		t.Fatalf("email survived redaction: %q", out)
	}
}

func TestRedactPIISSN(t *testing.T) {
	out, changed := RedactPII("my ssn is 123-45-6789")
	if !changed || !strings.Contains(out, "[REDACTED_SSN]") {
		t.Fatalf("RedactPII() = %q, %v; want SSN redacted", out, changed)
	}
}

func TestRedactPIIKeepsHotlineNumbers(t *testing.T) {
	in := "I called 988 last night and almost called 911"
	out, changed := RedactPII(in)
	if changed || out != in {
		t.Fatalf("RedactPII() = %q, %v; want unchanged", out, changed)
	}
}
