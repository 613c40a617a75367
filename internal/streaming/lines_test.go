package streaming

import (
	"errors"
	"io"
	"math/rand/v2"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collectLines pushes chunks through a LineBuffer and flushes at the end.
func collectLines(chunks []string) []string {
	var b LineBuffer
	var out []string
	for _, c := range chunks {
		out = append(out, b.Push([]byte(c))...)
	}
	if last, ok := b.Flush(); ok {
		out = append(out, last)
	}
	return out
}

// splitRandom cuts s into non-empty fragments at pseudo-random offsets.
func splitRandom(s string, r *rand.Rand) []string {
	var chunks []string
	for len(s) > 0 {
		n := 1 + r.IntN(len(s))
		chunks = append(chunks, s[:n])
		s = s[n:]
	}
	return chunks
}

func TestLineBuffer_Push(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   []string
	}{
		{"single complete line", []string{"hello\n"}, []string{"hello"}},
		{"line split across chunks", []string{"hel", "lo\nwor", "ld\n"}, []string{"hello", "world"}},
		{"newline only chunk yields empty line", []string{"\n"}, []string{""}},
		{"blank lines preserved", []string{"data: a\n\n\n"}, []string{"data: a", "", ""}},
		{"trailing partial flushed", []string{"a\nb"}, []string{"a", "b"}},
		{"empty chunks ignored", []string{"", "x", "", "\n", ""}, []string{"x"}},
		{"no chunks", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, collectLines(tt.chunks))
		})
	}
}

func TestLineBuffer_EmptyChunkProducesNothing(t *testing.T) {
	var b LineBuffer
	assert.Nil(t, b.Push(nil))
	assert.Nil(t, b.Push([]byte{}))
	assert.Zero(t, b.Buffered())

	_, ok := b.Flush()
	assert.False(t, ok)
}

func TestLineBuffer_RetainsPartialLine(t *testing.T) {
	var b LineBuffer
	assert.Empty(t, b.Push([]byte("data: {\"a\"")))
	assert.Equal(t, 10, b.Buffered())

	assert.Equal(t, []string{`data: {"a":1}`}, b.Push([]byte(":1}\n")))
	assert.Zero(t, b.Buffered())
}

func TestLineBuffer_SplitsInsideMultiByteCharacter(t *testing.T) {
	s := "data: héllo wörld 日本\n\n"
	var chunks []string
	for i := 0; i < len(s); i++ {
		chunks = append(chunks, s[i:i+1])
	}
	assert.Equal(t, []string{"data: héllo wörld 日本", ""}, collectLines(chunks))
}

func TestLineBuffer_RejoinReproducesInput(t *testing.T) {
	inputs := []string{
		"",
		"a",
		"a\n",
		"a\nb\n",
		"a\n\nb",
		"\n\n\n",
		"id: 1\nevent: message\ndata: {\"a\":1}\n\n",
		"no newline at all",
		"x\r\ny\r\n",
	}
	r := rand.New(rand.NewPCG(7, 11))

	for _, s := range inputs {
		n := strings.Count(s, "\n")
		wantCount := n
		if s != "" && !strings.HasSuffix(s, "\n") {
			wantCount = n + 1
		}

		for round := 0; round < 20; round++ {
			lines := collectLines(splitRandom(s, r))
			require.Len(t, lines, wantCount, "input %q", s)
			assert.Equal(t, strings.TrimSuffix(s, "\n"), strings.Join(lines, "\n"), "input %q", s)
		}
	}
}

func TestLineBuffer_ChunkBoundaryIndependence(t *testing.T) {
	s := "id: 1\nevent: message\ndata: {\"generated_text\":\"Hel\"}\n\n" +
		"id: 2\nevent: message\ndata: {\"generated_text\":\"lo\"}\n\n" +
		": keep-alive\n\nid: 3\ndata: tail"

	whole := collectLines([]string{s})

	var bytewise []string
	for i := 0; i < len(s); i++ {
		bytewise = append(bytewise, s[i:i+1])
	}
	assert.Equal(t, whole, collectLines(bytewise))

	r := rand.New(rand.NewPCG(42, 99))
	for i := 0; i < 50; i++ {
		assert.Equal(t, whole, collectLines(splitRandom(s, r)))
	}
}

func TestLineReader_Next(t *testing.T) {
	lr := NewLineReader(iotest.OneByteReader(strings.NewReader("a\nb\n\nc")), 0, 0)

	var got []string
	for {
		line, err := lr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, line)
	}
	assert.Equal(t, []string{"a", "b", "", "c"}, got)

	_, err := lr.Next()
	assert.ErrorIs(t, err, io.EOF, "EOF is sticky")
}

func TestLineReader_EmptySource(t *testing.T) {
	lr := NewLineReader(strings.NewReader(""), 16, 0)
	_, err := lr.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestLineReader_ReadErrorAfterCompleteLines(t *testing.T) {
	boom := errors.New("connection reset")
	src := io.MultiReader(strings.NewReader("one\ntwo\npartial"), iotest.ErrReader(boom))
	lr := NewLineReader(src, 64, 0)

	line, err := lr.Next()
	require.NoError(t, err)
	assert.Equal(t, "one", line)

	line, err = lr.Next()
	require.NoError(t, err)
	assert.Equal(t, "two", line)

	_, err = lr.Next()
	assert.ErrorIs(t, err, boom)

	_, err = lr.Next()
	assert.ErrorIs(t, err, boom, "read errors are sticky")
}

func TestLineReader_MaxLineSize(t *testing.T) {
	lr := NewLineReader(strings.NewReader("ok\n"+strings.Repeat("x", 64)), 8, 16)

	line, err := lr.Next()
	require.NoError(t, err)
	assert.Equal(t, "ok", line)

	_, err = lr.Next()
	assert.ErrorIs(t, err, ErrLineTooLong)
}
