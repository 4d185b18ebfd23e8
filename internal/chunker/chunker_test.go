package chunker

import (
	"errors"
	"strings"
	"testing"
)

func TestSplit_WindowGeometry(t *testing.T) {
	tests := []struct {
		name      string
		textLen   int
		chunkSize int
		overlap   int
		want      int
	}{
		{"empty text", 0, 1000, 200, 0},
		{"shorter than chunk", 500, 1000, 200, 1},
		{"exactly one chunk", 1000, 1000, 200, 1},
		{"one byte over", 1001, 1000, 200, 2},
		{"2500 bytes, default geometry", 2500, 1000, 200, 3},
		{"shorter than overlap", 150, 1000, 200, 1},
		{"no overlap", 2500, 500, 0, 5},
		{"small windows", 10, 4, 2, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := strings.Repeat("a", tt.textLen)
			chunks, err := Split(text, Config{ChunkSize: tt.chunkSize, Overlap: tt.overlap})
			if err != nil {
				t.Fatalf("Split() error = %v", err)
			}
			if len(chunks) != tt.want {
				t.Errorf("Split() produced %d chunks, want %d", len(chunks), tt.want)
			}
			if got := Count(tt.textLen, tt.chunkSize, tt.overlap); got != tt.want {
				t.Errorf("Count() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSplit_StartsAdvanceByStep(t *testing.T) {
	// Distinct bytes let us locate each chunk's start offset.
	text := make([]byte, 2500)
	for i := range text {
		text[i] = byte(i % 251)
	}

	const size, overlap = 1000, 200
	chunks, err := Split(string(text), Config{ChunkSize: size, Overlap: overlap})
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}

	step := size - overlap
	for i, c := range chunks {
		wantStart := i * step
		wantEnd := wantStart + size
		if wantEnd > len(text) {
			wantEnd = len(text)
		}
		if c != string(text[wantStart:wantEnd]) {
			t.Errorf("chunk %d does not cover [%d,%d)", i, wantStart, wantEnd)
		}
	}

	// Final chunk must end exactly at the end of the text.
	last := chunks[len(chunks)-1]
	if !strings.HasSuffix(string(text), last) {
		t.Error("final chunk does not end at text end")
	}
}

func TestSplit_RoundTrip(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 60)

	const size, overlap = 1000, 200
	chunks, err := Split(text, Config{ChunkSize: size, Overlap: overlap})
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}

	// Concatenating each chunk's first size-overlap bytes plus the final
	// chunk's remainder reconstructs the original exactly.
	var b strings.Builder
	step := size - overlap
	for i, c := range chunks {
		if i == len(chunks)-1 {
			b.WriteString(c)
			break
		}
		b.WriteString(c[:step])
	}
	if b.String() != text {
		t.Error("reconstruction from chunk prefixes does not match original text")
	}
}

func TestSplit_OverlapContext(t *testing.T) {
	text := strings.Repeat("x", 300) + strings.Repeat("y", 300)
	chunks, err := Split(text, Config{ChunkSize: 400, Overlap: 100})
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}
	// Tail of chunk N equals head of chunk N+1.
	for i := 0; i < len(chunks)-1; i++ {
		tail := chunks[i][len(chunks[i])-100:]
		head := chunks[i+1][:100]
		if tail != head {
			t.Errorf("chunks %d and %d do not share %d bytes of context", i, i+1, 100)
		}
	}
}

func TestSplit_ConfigDefaults(t *testing.T) {
	text := strings.Repeat("a", 1500)

	// Zero value: both defaults apply, so the second chunk carries the
	// 200-byte overlap (starts at 800, runs to 1500).
	chunks, err := Split(text, Config{})
	if err != nil {
		t.Fatalf("Split(zero config) error = %v", err)
	}
	if len(chunks) != 2 || len(chunks[1]) != 700 {
		t.Fatalf("zero config: got %d chunks, second len %d, want 2 and 700", len(chunks), len(chunks[1]))
	}

	// Explicit chunk size with zero overlap stays overlap-free even at
	// the default size: the second chunk starts at 1000.
	chunks, err = Split(text, Config{ChunkSize: DefaultChunkSize})
	if err != nil {
		t.Fatalf("Split(explicit size) error = %v", err)
	}
	if len(chunks) != 2 || len(chunks[1]) != 500 {
		t.Fatalf("explicit size: got %d chunks, second len %d, want 2 and 500", len(chunks), len(chunks[1]))
	}
}

func TestSplit_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"overlap equals size", Config{ChunkSize: 100, Overlap: 100}},
		{"overlap exceeds size", Config{ChunkSize: 100, Overlap: 150}},
		{"negative size", Config{ChunkSize: -1, Overlap: 0}},
		{"negative overlap", Config{ChunkSize: 100, Overlap: -5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Split("some text", tt.cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Split() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestSplit_Deterministic(t *testing.T) {
	text := strings.Repeat("determinism ", 500)
	a, _ := Split(text, Config{})
	b, _ := Split(text, Config{})
	if len(a) != len(b) {
		t.Fatalf("chunk counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("chunk %d differs between runs", i)
		}
	}
}
