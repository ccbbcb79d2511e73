// Package chatfmt renders raw driver message records as a chat transcript in the
// layout of a WhatsApp chat export:
//
//	[11/14/23, 10:13 PM] Alice: Hello
//
// Records are read with gjson so the formatter does not depend on the full driver
// message schema; only timestamp, body and the sender fields are consulted.
package chatfmt

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	dateLayout = "01/02/06"
	timeLayout = "03:04 PM"
)

// senderPaths lists the record fields tried for the sender, in order.
var senderPaths = []string{"sender.pushname", "sender.name", "from"}

// Format returns the transcript for messages, one line per well-formed record,
// joined with "\n". Records that cannot be formatted are skipped. A nil loc is
// treated as UTC.
func Format(messages []json.RawMessage, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	lines := make([]string, 0, len(messages))
	for _, raw := range messages {
		if line, ok := FormatLine(raw, loc); ok {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// FormatLine formats one record. ok is false when the record is malformed.
func FormatLine(raw json.RawMessage, loc *time.Location) (string, bool) {
	if !gjson.ValidBytes(raw) {
		return "", false
	}
	rec := gjson.ParseBytes(raw)
	if !rec.IsObject() {
		return "", false
	}

	ts := rec.Get("timestamp")
	if ts.Type != gjson.Number {
		return "", false
	}
	body := rec.Get("body")
	if body.Type != gjson.String {
		return "", false
	}
	sender := senderName(rec)
	if sender == "" {
		return "", false
	}

	at := time.Unix(ts.Int(), 0).In(loc)
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(at.Format(dateLayout))
	b.WriteString(", ")
	b.WriteString(at.Format(timeLayout))
	b.WriteString("] ")
	b.WriteString(sender)
	b.WriteString(": ")
	b.WriteString(body.String())
	return b.String(), true
}

func senderName(rec gjson.Result) string {
	for _, p := range senderPaths {
		v := rec.Get(p)
		if v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return ""
}
