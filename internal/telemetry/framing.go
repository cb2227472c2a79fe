package telemetry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/RMahshie/voltsense/pkg/models"
	"github.com/rs/zerolog/log"
)

// maxPendingBytes caps the partial line kept between chunks. A device that
// never sends a newline would otherwise grow the buffer without bound.
const maxPendingBytes = 64 * 1024

// Framer turns a chunked byte stream into newline-delimited candidate records.
// It is tied to a single connection and is not safe for concurrent use.
type Framer struct {
	pending []byte
}

// NewFramer creates an empty framer
func NewFramer() *Framer {
	return &Framer{}
}

// Feed appends a chunk and returns every complete line that looks like a JSON
// object. The trailing partial line is kept for the next call.
func (f *Framer) Feed(chunk []byte) []string {
	f.pending = append(f.pending, chunk...)

	var lines []string
	for {
		idx := bytes.IndexByte(f.pending, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimSpace(strings.ToValidUTF8(string(f.pending[:idx]), "\uFFFD"))
		f.pending = f.pending[idx+1:]

		if isCandidate(line) {
			lines = append(lines, line)
		}
	}

	if len(f.pending) > maxPendingBytes {
		log.Warn().Int("bytes", len(f.pending)).Msg("Discarding oversized partial line")
		f.pending = nil
	} else {
		// Detach the remainder so consumed chunks can be collected
		f.pending = append([]byte(nil), f.pending...)
	}

	return lines
}

// Pending returns the buffered partial line
func (f *Framer) Pending() string {
	return string(f.pending)
}

// isCandidate is a cheap pre-filter, not a validator
func isCandidate(line string) bool {
	return strings.HasPrefix(line, "{") && strings.HasSuffix(line, "}")
}

// DecodeLine parses one framed line into a raw record
func DecodeLine(line string) (models.RawRecord, error) {
	var raw models.RawRecord
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: null object", ErrMalformedRecord)
	}
	return raw, nil
}
