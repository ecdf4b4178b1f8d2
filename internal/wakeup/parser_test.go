package wakeup

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/cptspacemanspiff/lowpower-stats/internal/bufwriter"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseReasons(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		maxLine   int
		bufSize   int
		want      string
		wantLines int
	}{
		{
			name:      "irq and abort merged",
			input:     "146 sd93: 00:02:00\nAbort: something\n",
			bufSize:   256,
			want:      "146:00:02:00:Abort:something",
			wantLines: 2,
		},
		{
			name:      "malformed line skipped",
			input:     "170 gpio_keys\nbogus line\nAbort: Pending Wakeup Sources: ipc000\n",
			bufSize:   256,
			want:      "170:gpio_keys:Abort:Pending Wakeup Sources: ipc000",
			wantLines: 2,
		},
		{
			name:      "single entry has no leading colon",
			input:     "57 qpnp_rtc_alarm\n",
			bufSize:   64,
			want:      "57:qpnp_rtc_alarm",
			wantLines: 1,
		},
		{
			name:      "last line without newline",
			input:     "12 a\n13    b",
			bufSize:   64,
			want:      "12:a:13:b",
			wantLines: 2,
		},
		{
			name:      "overlong line cut by reader",
			input:     "Abort: " + strings.Repeat("x", 40) + "\n42 : y\n",
			maxLine:   16,
			bufSize:   64,
			want:      "Abort:xxxxxxxx:42:y",
			wantLines: 2,
		},
		{
			name:      "leading whitespace and overflowing irq kept",
			input:     " 146 sd93: x\n99999999999999999999 big\n",
			bufSize:   64,
			want:      "146:x:9223372036854775807:big",
			wantLines: 2,
		},
		{
			name:      "tokens that do not fit are dropped",
			input:     "146 sd93: 00:02:00\nAbort: something\n",
			bufSize:   8,
			want:      "146",
			wantLines: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := bytes.Repeat([]byte{0xff}, tt.bufSize)
			w, err := bufwriter.New(buf)
			if err != nil {
				t.Fatalf("bufwriter.New() error = %v", err)
			}

			lines, err := ParseReasons(strings.NewReader(tt.input), w, tt.maxLine, discardLogger())
			if err != nil {
				t.Fatalf("ParseReasons() error = %v", err)
			}
			if lines != tt.wantLines {
				t.Fatalf("lines = %d, want %d", lines, tt.wantLines)
			}
			if got := string(w.Bytes()); got != tt.want {
				t.Fatalf("merged = %q, want %q", got, tt.want)
			}
			if buf[len(tt.want)] != 0 {
				t.Fatalf("terminator missing at %d: %q", len(tt.want), buf[:len(tt.want)+1])
			}
		})
	}
}

func TestParseReasons_NoValidLines(t *testing.T) {
	buf := bytes.Repeat([]byte{0xff}, 16)
	w, _ := bufwriter.New(buf)

	lines, err := ParseReasons(strings.NewReader("garbage\n\n"), w, 0, discardLogger())
	if err != nil {
		t.Fatalf("ParseReasons() error = %v", err)
	}
	if lines != 0 || w.Len() != 0 {
		t.Fatalf("lines = %d len = %d, want 0 0", lines, w.Len())
	}
	if buf[0] != 0xff {
		t.Fatalf("buf[0] = %#x, want untouched", buf[0])
	}
}

func TestParseReasonLine(t *testing.T) {
	tests := []struct {
		line       string
		wantField  string
		wantReason string
		wantOK     bool
	}{
		{line: "146 sd93: 00:02:00\n", wantField: "146", wantReason: "00:02:00", wantOK: true},
		{line: "007 timer\n", wantField: "7", wantReason: "timer", wantOK: true},
		{line: "Abort:   Last active Wakeup Source: eventpoll\n", wantField: "Abort", wantReason: "Last active Wakeup Source: eventpoll", wantOK: true},
		{line: " 146 sd93: x\n", wantField: "146", wantReason: "x", wantOK: true},
		{line: "\t-3 spurious\n", wantField: "-3", wantReason: "spurious", wantOK: true},
		{line: "99999999999999999999 big\n", wantField: "9223372036854775807", wantReason: "big", wantOK: true},
		{line: "-99999999999999999999 small\n", wantField: "-9223372036854775808", wantReason: "small", wantOK: true},
		{line: " Abort: x\n", wantOK: false},
		{line: "Abort\n", wantOK: false},
		{line: "wlan 12\n", wantOK: false},
		{line: "\n", wantOK: false},
	}

	for _, tt := range tests {
		field, reason, ok := parseReasonLine(tt.line)
		if ok != tt.wantOK {
			t.Fatalf("parseReasonLine(%q) ok = %v, want %v", tt.line, ok, tt.wantOK)
		}
		if !ok {
			continue
		}
		if field != tt.wantField || reason != tt.wantReason {
			t.Fatalf("parseReasonLine(%q) = (%q, %q), want (%q, %q)", tt.line, field, reason, tt.wantField, tt.wantReason)
		}
	}
}
