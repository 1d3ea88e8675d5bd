package logutil

import (
	"testing"

	"pgregory.net/rapid"
)

func testRedactTypedText_LogOffNeverLeaks(t *rapid.T) {
	target := rapid.StringMatching(`[a-zA-Z .#\-]{0,30}`).Draw(t, "target")
	text := rapid.StringMatching(`[a-zA-Z0-9!@#$%]{1,40}`).Draw(t, "text")

	got := RedactTypedText(target, text, false)
	if got != Redacted {
		t.Fatalf("RedactTypedText(log=false) = %q", got)
	}
}

func TestRedactTypedText_LogOffNeverLeaks(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testRedactTypedText_LogOffNeverLeaks)
}

func TestRedactTypedText(t *testing.T) {
	t.Parallel()

	cases := []struct {
		target string
		text   string
		log    bool
		want   string
	}{
		{"Name", "machreg-1", true, "machreg-1"},
		{"Password", "hunter2", true, Redacted},
		{"API Key", "k", true, Redacted},
		{"Username", "admin", false, Redacted},
		{".kv-item.key", "myLabel1", true, "myLabel1"},
	}
	for _, tc := range cases {
		if got := RedactTypedText(tc.target, tc.text, tc.log); got != tc.want {
			t.Errorf("RedactTypedText(%q, %q, %v) = %q, want %q", tc.target, tc.text, tc.log, got, tc.want)
		}
	}
}

func TestIsSensitiveLogField(t *testing.T) {
	t.Parallel()

	for _, key := range []string{"Authorization", "x-api-key", "session_token", "client-secret", "Password", "Cookie"} {
		if !IsSensitiveLogField(key) {
			t.Errorf("IsSensitiveLogField(%q) = false", key)
		}
	}
	for _, key := range []string{"Name", "Username", "Namespace", "Labels"} {
		if IsSensitiveLogField(key) {
			t.Errorf("IsSensitiveLogField(%q) = true", key)
		}
	}
}

func TestTruncateForLog(t *testing.T) {
	t.Parallel()

	if got := TruncateForLog("  a\nb  ", 0); got != `a\nb` {
		t.Fatalf("TruncateForLog newline = %q", got)
	}
	if got := TruncateForLog("abcdef", 3); got != "abc... [truncated]" {
		t.Fatalf("TruncateForLog truncated = %q", got)
	}
	if got := TruncateForLog("   ", 3); got != "" {
		t.Fatalf("TruncateForLog blank = %q", got)
	}
}
