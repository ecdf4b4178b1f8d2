// Package wakeup reads the kernel's last resume reason after each
// suspend/resume cycle and merges it into a single colon-joined string.
package wakeup

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/cptspacemanspiff/lowpower-stats/internal/bufwriter"
)

// DefaultMaxLineLength bounds a single line of the reason file, including
// the terminator slot. Longer lines are cut by the line reader.
const DefaultMaxLineLength = 128

const abortPrefix = "Abort:"

// ParseReasons reads wakeup-reason lines from r and writes the merged reason
// string into w, e.g. "146:gpio_keys:Abort:Pending Wakeup Sources: ipc000".
// Lines that start with neither an IRQ number nor "Abort:" are logged and
// skipped. It returns the number of lines merged; when at least one line was
// merged the payload is followed by a NUL terminator.
func ParseReasons(r io.Reader, w *bufwriter.Writer, maxLine int, logger *slog.Logger) (int, error) {
	if maxLine <= 1 {
		maxLine = DefaultMaxLineLength
	}
	br := bufio.NewReader(r)

	lines := 0
	for {
		line, err := readBoundedLine(br, maxLine)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return lines, fmt.Errorf("read reason line: %w", err)
		}

		field, reason, ok := parseReasonLine(line)
		if !ok {
			logger.Warn("bad reason line", "line", strings.TrimRight(line, "\n"))
			continue
		}

		if lines > 0 {
			field = ":" + field
		}
		w.WriteToken(field)
		w.WriteToken(":" + reason)
		lines++
	}

	logger.Debug("got wakeup reasons", "count", lines)
	if lines > 0 {
		if _, err := w.Terminate(); err != nil {
			return lines, err
		}
	}
	return lines, nil
}

// parseReasonLine splits one line into its IRQ-or-Abort field and the reason
// text that follows the field separator.
func parseReasonLine(line string) (field, reason string, ok bool) {
	var rest string
	if num, tail, found := leadingInt(line); found {
		field = strconv.FormatInt(num, 10)
		rest = tail
		if i := strings.IndexByte(rest, ':'); i >= 0 {
			rest = rest[i+1:]
		}
	} else if strings.HasPrefix(line, abortPrefix) {
		field = "Abort"
		rest = line[len(abortPrefix):]
	} else {
		return "", "", false
	}

	rest = strings.TrimLeft(rest, " ")
	if i := strings.IndexByte(rest, '\n'); i >= 0 {
		rest = rest[:i]
	}
	return field, rest, true
}

// leadingInt parses the optionally signed decimal integer at the start of s,
// after any leading whitespace, and returns it with the text that follows.
// Values outside the int64 range saturate at its bounds.
func leadingInt(s string) (int64, string, bool) {
	i := 0
	for i < len(s) && isSpace(s[i]) {
		i++
	}
	start := i
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	digits := i
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == digits {
		return 0, s, false
	}

	num, err := strconv.ParseInt(s[start:i], 10, 64)
	if errors.Is(err, strconv.ErrRange) {
		num = math.MaxInt64
		if s[start] == '-' {
			num = math.MinInt64
		}
	}
	return num, s[i:], true
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

// readBoundedLine returns the next line including its newline, holding at
// most limit-1 bytes. The rest of an overlong line is consumed and dropped.
func readBoundedLine(br *bufio.Reader, limit int) (string, error) {
	var line []byte
	for {
		b, err := br.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && len(line) > 0 {
				return string(line), nil
			}
			return "", err
		}
		if len(line) < limit-1 {
			line = append(line, b)
		}
		if b == '\n' {
			return string(line), nil
		}
	}
}
