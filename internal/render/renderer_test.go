package render

import (
	"testing"

	"github.com/google/uuid"

	"github.com/ignite/followup-engine/internal/domain"
)

func testTemplate(subject, body string) domain.FollowupTemplate {
	return domain.FollowupTemplate{
		ID:             uuid.New(),
		Sequence:       1,
		SubjectPattern: subject,
		BodyPattern:    body,
		Active:         true,
	}
}

func testEmail() domain.TrackedEmail {
	return domain.TrackedEmail{
		ID:            uuid.New(),
		Sender:        "sales@ignite.media",
		SenderName:    "Dana",
		Recipients:    []string{"pat@example.com"},
		RecipientName: "Pat",
		Subject:       "Q3 proposal",
	}
}

func TestRenderVariables(t *testing.T) {
	r := New()
	tpl := testTemplate(
		"Re: {{ subject }}",
		"Hi {{ recipient_name }}, just following up on {{ subject }}. — {{ sender_name }}",
	)

	subject, body, err := r.Render(tpl, testEmail(), 1)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if subject != "Re: Q3 proposal" {
		t.Errorf("subject = %q", subject)
	}
	if want := "Hi Pat, just following up on Q3 proposal. — Dana"; body != want {
		t.Errorf("body = %q, want %q", body, want)
	}
}

func TestRenderDefaultFilter(t *testing.T) {
	r := New()
	tpl := testTemplate("{{ subject }}", "Hi {{ recipient_name | default: \"there\" }}")

	email := testEmail()
	email.RecipientName = ""

	_, body, err := r.Render(tpl, email, 1)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if body != "Hi there" {
		t.Errorf("body = %q", body)
	}
}

func TestRenderReprefixFilter(t *testing.T) {
	r := New()
	tpl := testTemplate("Re: {{ subject | reprefix }}", "x")

	email := testEmail()
	email.Subject = "Re: Re: Q3 proposal"

	subject, _, err := r.Render(tpl, email, 2)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if subject != "Re: Q3 proposal" {
		t.Errorf("subject = %q", subject)
	}
}

func TestRenderSequenceBinding(t *testing.T) {
	r := New()
	tpl := testTemplate("Follow-up {{ sequence }}: {{ subject }}", "x")

	subject, _, err := r.Render(tpl, testEmail(), 3)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if subject != "Follow-up 3: Q3 proposal" {
		t.Errorf("subject = %q", subject)
	}
}

// Same template, same email, same sequence: byte-identical output, every time.
func TestRenderDeterministic(t *testing.T) {
	r := New()
	tpl := testTemplate("Re: {{ subject }}", "Hi {{ recipient_name }}, circling back ({{ sequence }}).")
	email := testEmail()

	s1, b1, err := r.Render(tpl, email, 2)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for i := 0; i < 10; i++ {
		s2, b2, err := r.Render(tpl, email, 2)
		if err != nil {
			t.Fatalf("render: %v", err)
		}
		if s1 != s2 || b1 != b2 {
			t.Fatalf("render is not deterministic: %q/%q vs %q/%q", s1, b1, s2, b2)
		}
	}
}

func TestRenderBadTemplate(t *testing.T) {
	r := New()
	tpl := testTemplate("{% if %}", "x")

	if _, _, err := r.Render(tpl, testEmail(), 1); err == nil {
		t.Fatal("expected a parse error")
	}
}
