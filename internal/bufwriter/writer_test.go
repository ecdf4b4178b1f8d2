package bufwriter

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestNew_InvalidArgument(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
	}{
		{name: "nil", buf: nil},
		{name: "zero length", buf: make([]byte, 0)},
		{name: "zero length with spare capacity", buf: make([]byte, 0, 16)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.buf)
			if !errors.Is(err, ErrInvalidArgument) {
				t.Fatalf("New() error = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestWriteString_ClipsToRemaining(t *testing.T) {
	buf := make([]byte, 8)
	w, err := New(buf)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if got := w.WriteString("abcde"); got != 5 {
		t.Fatalf("WriteString() = %d, want 5", got)
	}
	if got := w.WriteString("fghij"); got != 3 {
		t.Fatalf("WriteString() = %d, want 3", got)
	}
	if !w.Full() {
		t.Fatal("Full() = false, want true")
	}
	if got := w.WriteString("k"); got != 0 {
		t.Fatalf("WriteString() on full writer = %d, want 0", got)
	}
	if string(w.Bytes()) != "abcdefgh" {
		t.Fatalf("Bytes() = %q, want %q", w.Bytes(), "abcdefgh")
	}
}

func TestRetractAndTerminate(t *testing.T) {
	buf := bytes.Repeat([]byte{'x'}, 6)
	w, _ := New(buf)

	w.Printf("key=%d ", 12345)
	if !w.Full() {
		t.Fatalf("Full() = false, remaining %d", w.Remaining())
	}
	w.Retract()
	n, err := w.Terminate()
	if err != nil {
		t.Fatalf("Terminate() error = %v", err)
	}
	if n != len(buf) {
		t.Fatalf("Terminate() = %d, want %d", n, len(buf))
	}
	if string(buf) != "key=1\x00" {
		t.Fatalf("buf = %q, want %q", buf, "key=1\x00")
	}
	if !w.Truncated() {
		t.Fatal("Truncated() = false, want true")
	}
	if got := w.WriteString("more"); got != 0 {
		t.Fatalf("WriteString() after Retract = %d, want 0", got)
	}
}

func TestTerminate_FullWithoutRetract(t *testing.T) {
	w, _ := New(make([]byte, 2))
	w.WriteString("ab")
	if _, err := w.Terminate(); err == nil {
		t.Fatal("Terminate() error = nil, want capacity error")
	}
}

func TestWriteToken_ReservesTerminator(t *testing.T) {
	buf := make([]byte, 6)
	w, _ := New(buf)

	if !w.WriteToken("abc") {
		t.Fatal("WriteToken(abc) = false, want true")
	}
	if w.WriteToken("def") {
		t.Fatal("WriteToken(def) = true, want false (no room for terminator)")
	}
	if !w.WriteToken("de") {
		t.Fatal("WriteToken(de) = false, want true")
	}
	n, err := w.Terminate()
	if err != nil {
		t.Fatalf("Terminate() error = %v", err)
	}
	if n != 6 || string(buf) != "abcde\x00" {
		t.Fatalf("Terminate() = %d buf=%q, want 6 %q", n, buf, "abcde\x00")
	}
}

func TestNeverWritesPastCapacity(t *testing.T) {
	backing := bytes.Repeat([]byte{'#'}, 16)
	w, _ := New(backing[:4:4])

	w.WriteString("0123456789")
	w.Retract()
	if _, err := w.Terminate(); err != nil {
		t.Fatalf("Terminate() error = %v", err)
	}
	if string(backing[4:]) != "############" {
		t.Fatalf("bytes past capacity modified: %q", backing[4:])
	}
	if string(backing[:4]) != "012\x00" {
		t.Fatalf("payload = %q, want %q", backing[:4], "012\x00")
	}
}

func TestNew_LengthBoundsCapacity(t *testing.T) {
	backing := bytes.Repeat([]byte{0xee}, 24)
	buf := backing[:16]

	w, err := New(buf)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if w.Remaining() != 16 {
		t.Fatalf("Remaining() = %d, want 16", w.Remaining())
	}

	w.WriteString(strings.Repeat("a", 32))
	w.Retract()
	n, err := w.Terminate()
	if err != nil {
		t.Fatalf("Terminate() error = %v", err)
	}
	if n != 16 || backing[15] != 0 {
		t.Fatalf("Terminate() = %d, backing[15] = %#x, want 16 and NUL", n, backing[15])
	}
	if !bytes.Equal(backing[16:], bytes.Repeat([]byte{0xee}, 8)) {
		t.Fatalf("bytes past len(buf) modified: %x", backing[16:])
	}
}
