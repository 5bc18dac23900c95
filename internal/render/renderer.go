// Package render substitutes tracked-email variables into followup templates
// using the Liquid template language, matching the templates authored in the
// admin UI. Rendering is deterministic: the same template, email, and
// sequence always produce the same output.
package render

import (
	"fmt"
	"strings"
	"sync"

	"github.com/osteele/liquid"

	"github.com/ignite/followup-engine/internal/domain"
)

// Renderer renders followup templates with a shared Liquid engine and a
// parse cache keyed by template id. Safe for concurrent use.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // template id + pattern hash -> *liquid.Template
}

// New creates a renderer with the followup-specific filters registered.
func New() *Renderer {
	engine := liquid.NewEngine()

	// {{ recipient_name | default: "there" }}
	engine.RegisterFilter("default", func(value interface{}, fallback string) interface{} {
		if value == nil {
			return fallback
		}
		if s := fmt.Sprintf("%v", value); s == "" || s == "<nil>" {
			return fallback
		}
		return value
	})

	// {{ subject | reprefix }} strips stacked "Re:" prefixes before the
	// sender adds its own.
	engine.RegisterFilter("reprefix", func(s string) string {
		for {
			trimmed := strings.TrimSpace(s)
			lower := strings.ToLower(trimmed)
			if !strings.HasPrefix(lower, "re:") {
				return trimmed
			}
			s = trimmed[3:]
		}
	})

	return &Renderer{engine: engine}
}

// Render produces the subject and body for one followup. Variables exposed
// to templates: recipient_name, recipient_email, sender_name, sender_email,
// subject (the original email's subject), and sequence.
func (r *Renderer) Render(tpl domain.FollowupTemplate, email domain.TrackedEmail, sequence int) (string, string, error) {
	bindings := map[string]interface{}{
		"recipient_name":  email.RecipientName,
		"recipient_email": firstRecipient(email),
		"sender_name":     email.SenderName,
		"sender_email":    email.Sender,
		"subject":         email.Subject,
		"sequence":        sequence,
	}

	subject, err := r.renderPattern(tpl.ID.String()+":subject", tpl.SubjectPattern, bindings)
	if err != nil {
		return "", "", fmt.Errorf("render subject for template %s: %w", tpl.ID, err)
	}
	body, err := r.renderPattern(tpl.ID.String()+":body", tpl.BodyPattern, bindings)
	if err != nil {
		return "", "", fmt.Errorf("render body for template %s: %w", tpl.ID, err)
	}
	return subject, body, nil
}

func (r *Renderer) renderPattern(key, pattern string, bindings map[string]interface{}) (string, error) {
	cacheKey := key + "\x00" + pattern
	var parsed *liquid.Template
	if cached, ok := r.cache.Load(cacheKey); ok {
		parsed = cached.(*liquid.Template)
	} else {
		var err error
		parsed, err = r.engine.ParseString(pattern)
		if err != nil {
			return "", err
		}
		r.cache.Store(cacheKey, parsed)
	}

	out, err := parsed.Render(bindings)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func firstRecipient(email domain.TrackedEmail) string {
	if len(email.Recipients) == 0 {
		return ""
	}
	return email.Recipients[0]
}
