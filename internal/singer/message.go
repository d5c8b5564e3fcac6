// Package singer implements the wire-level concerns of the Singer
// streaming protocol: newline-delimited JSON messages with a type
// discriminator, and the STATE-line interception the pipeline runner
// and state store both need. Parsing uses goccy/go-json on the hot
// per-line path; unrecognized or malformed lines pass through
// byte-identical rather than being dropped.
package singer

import "github.com/goccy/go-json"

// Type is the message type discriminator.
type Type string

const (
	TypeSchema          Type = "SCHEMA"
	TypeRecord          Type = "RECORD"
	TypeState           Type = "STATE"
	TypeActivateVersion Type = "ACTIVATE_VERSION"
	TypeBatch           Type = "BATCH"
)

// Envelope is the minimal shape every Singer message shares: a type
// discriminator plus whichever stream/value/record fields that type
// carries. The runner only needs to look inside STATE and RECORD
// messages; everything else is treated as opaque and passed through.
type Envelope struct {
	Type   Type            `json:"type"`
	Stream string          `json:"stream,omitempty"`
	Value  json.RawMessage `json:"value,omitempty"`
	Record json.RawMessage `json:"record,omitempty"`
	Schema json.RawMessage `json:"schema,omitempty"`
}

// ParseLine attempts to decode a single newline-delimited line as a
// Singer envelope. A line that doesn't parse as JSON, or has no
// recognizable "type" field, is reported via ok=false so the caller can
// fall back to byte-identical passthrough — the runner never rejects a
// line it doesn't understand.
func ParseLine(line []byte) (Envelope, bool) {
	var env Envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return Envelope{}, false
	}
	if env.Type == "" {
		return Envelope{}, false
	}
	return env, true
}

// IsState reports whether a raw line begins a STATE message, using a
// cheap textual probe before the full JSON decode so the hot path (most
// lines are RECORD, not STATE) avoids unmarshaling lines it will
// discard anyway. Mirrors the wire contract: 'lines beginning with
// {"type": "STATE"'.
func IsState(line []byte) bool {
	// Trim any leading whitespace a well-behaved tap wouldn't emit but a
	// defensive parser should tolerate.
	i := 0
	for i < len(line) && (line[i] == ' ' || line[i] == '\t') {
		i++
	}
	const probe = `{"type"`
	if len(line)-i < len(probe) {
		return false
	}
	if string(line[i:i+len(probe)]) != probe {
		return false
	}
	rest := line[i+len(probe):]
	j := 0
	for j < len(rest) && (rest[j] == ' ' || rest[j] == ':') {
		j++
	}
	const stateTag = `"STATE"`
	return len(rest)-j >= len(stateTag) && string(rest[j:j+len(stateTag)]) == stateTag
}
