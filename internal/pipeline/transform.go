package pipeline

import (
	"bufio"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/goccy/go-json"
)

// PIIFields is the per-stream set of field names marked for hashing by
// the catalog engine's '~' selection prefix.
type PIIFields map[string]map[string]bool

// HashField replaces value with a stable 64-hex digest, salted by a
// per-project value so the same input always yields the same output
// within a project but not across projects.
func HashField(salt, value string) string {
	mac := hmac.New(sha256.New, []byte(salt))
	_, _ = mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}

// Transformer wraps a tap's stdout: for RECORD messages whose stream is
// in the PII set, it replaces the named fields with HashField's digest
// before forwarding. Every other line (including malformed ones) passes
// through byte-identical, preserving tap-emission order.
type Transformer struct {
	PII  PIIFields
	Salt string
}

// Copy reads newline-delimited messages from src and writes the
// transformed stream to dst, preserving line order. It returns once src
// is exhausted or an error occurs on either side.
func (t Transformer) Copy(dst io.Writer, src io.Reader) error {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	w := bufio.NewWriter(dst)
	defer w.Flush()

	for scanner.Scan() {
		line := scanner.Bytes()
		out := t.transformLine(line)
		if _, err := w.Write(out); err != nil {
			return err
		}
		if err := w.WriteByte('\n'); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (t Transformer) transformLine(line []byte) []byte {
	if len(t.PII) == 0 {
		return line
	}

	var msg map[string]json.RawMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		return line
	}
	var typ string
	if err := json.Unmarshal(msg["type"], &typ); err != nil || typ != "RECORD" {
		return line
	}
	var stream string
	if err := json.Unmarshal(msg["stream"], &stream); err != nil {
		return line
	}
	fields := t.PII[stream]
	if len(fields) == 0 {
		return line
	}

	var record map[string]json.RawMessage
	if err := json.Unmarshal(msg["record"], &record); err != nil {
		return line
	}
	changed := false
	for field := range fields {
		raw, ok := record[field]
		if !ok {
			continue
		}
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			continue
		}
		hashed, err := json.Marshal(t.salted(value))
		if err != nil {
			continue
		}
		record[field] = hashed
		changed = true
	}
	if !changed {
		return line
	}

	recordBytes, err := json.Marshal(record)
	if err != nil {
		return line
	}
	msg["record"] = recordBytes
	out, err := json.Marshal(msg)
	if err != nil {
		return line
	}
	return out
}

func (t Transformer) salted(value string) string {
	return HashField(t.Salt, value)
}
