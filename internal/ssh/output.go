package ssh

import (
	"strings"
	"sync"
)

// maxOutputTail bounds how much command output is kept for error reports.
const maxOutputTail = 64 * 1024

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}

// appendMissing returns the bytes to add to existing so that every line in
// lines is present, in order. Lines already in existing are skipped.
func appendMissing(existing []byte, lines []string) []byte {
	present := make(map[string]bool)
	for _, l := range strings.Split(string(existing), "\n") {
		present[strings.TrimRight(l, "\r")] = true
	}

	var out strings.Builder
	if len(existing) > 0 && existing[len(existing)-1] != '\n' {
		out.WriteByte('\n')
	}
	added := false
	for _, l := range lines {
		if present[l] {
			continue
		}
		present[l] = true
		out.WriteString(l)
		out.WriteByte('\n')
		added = true
	}
	if !added {
		return nil
	}
	return []byte(out.String())
}
