package logger

import "testing"

func TestRedactAddress(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"pat.doe@example.com", "pa***@example.com"},
		{"ab@example.com", "***@example.com"},
		{"not-an-address", "***@***"},
	}
	for _, tt := range tests {
		if got := RedactAddress(tt.in); got != tt.want {
			t.Errorf("RedactAddress(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRedactValueByKey(t *testing.T) {
	if got := redactValue("recipient", "pat.doe@example.com"); got != "pa***@example.com" {
		t.Errorf("recipient field not redacted: %q", got)
	}
	if got := redactValue("detail", "wrote to pat.doe@example.com today"); got != "wrote to pa***@example.com today" {
		t.Errorf("embedded address not redacted: %q", got)
	}
	if got := redactValue("sequence", "2"); got != "2" {
		t.Errorf("plain value mangled: %q", got)
	}
}
