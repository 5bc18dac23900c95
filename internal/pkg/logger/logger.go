// Package logger provides structured JSON logging with recipient-address
// redaction. Every tracked email carries personal addresses, so redaction
// is on by default and applied to any field value that looks like an email.
package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log entry.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

// Logger writes one JSON object per entry to stderr.
type Logger struct {
	level     Level
	mu        sync.Mutex
	redactPII bool
}

var defaultLogger = &Logger{level: INFO, redactPII: true}

// SetLevel sets the minimum log level for the default logger.
func SetLevel(l Level) { defaultLogger.level = l }

// SetRedactPII enables or disables address redaction for the default logger.
func SetRedactPII(r bool) { defaultLogger.redactPII = r }

// Debug emits a DEBUG-level entry with key/value field pairs.
func Debug(msg string, fields ...string) { defaultLogger.log(DEBUG, msg, fields...) }

// Info emits an INFO-level entry with key/value field pairs.
func Info(msg string, fields ...string) { defaultLogger.log(INFO, msg, fields...) }

// Warn emits a WARN-level entry with key/value field pairs.
func Warn(msg string, fields ...string) { defaultLogger.log(WARN, msg, fields...) }

// Error emits an ERROR-level entry with key/value field pairs.
func Error(msg string, fields ...string) { defaultLogger.log(ERROR, msg, fields...) }

func (l *Logger) log(level Level, msg string, fields ...string) {
	if level < l.level {
		return
	}

	entry := map[string]string{
		"time":  time.Now().UTC().Format(time.RFC3339),
		"level": levelNames[level],
		"msg":   msg,
	}
	for i := 0; i+1 < len(fields); i += 2 {
		val := fields[i+1]
		if l.redactPII {
			val = redactValue(fields[i], val)
		}
		entry[fields[i]] = val
	}

	data, _ := json.Marshal(entry)
	l.mu.Lock()
	fmt.Fprintln(os.Stderr, string(data))
	l.mu.Unlock()
}

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

func redactValue(key, val string) string {
	k := strings.ToLower(key)
	if strings.Contains(k, "recipient") || strings.Contains(k, "mailbox") || strings.Contains(k, "sender") {
		return RedactAddress(val)
	}
	return emailPattern.ReplaceAllStringFunc(val, RedactAddress)
}

// RedactAddress masks an email address for safe logging.
// "pat.doe@example.com" becomes "pa***@example.com"; local parts of two or
// fewer characters are fully masked.
func RedactAddress(addr string) string {
	local, domain, ok := strings.Cut(addr, "@")
	if !ok {
		return "***@***"
	}
	if len(local) > 2 {
		return local[:2] + "***@" + domain
	}
	return "***@" + domain
}
