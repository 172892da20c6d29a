package rtty

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestSynchronizeSingleLetter(t *testing.T) {
	fs := NewFrameSynchronizer(nil)
	res := fs.Synchronize([]byte{0, 1, 1, 0, 0, 0, 1, 1}, ModeLAT)

	assert.Equal(t, "A", res.Text)
	assert.Equal(t, 8, res.Consumed)
	assert.Equal(t, ModeLAT, res.Mode)
	assert.Equal(t, 1, res.Frames)
}

func TestSynchronizeFigsSwitch(t *testing.T) {
	fs := NewFrameSynchronizer(nil)
	res := fs.Synchronize(frames(0b11011, 0b00001), ModeLAT)

	assert.Equal(t, "5", res.Text)
	assert.Equal(t, ModeFIGS, res.Mode)
	assert.Equal(t, 1, res.Switches)
}

func TestSynchronizeSwitchesTakePriority(t *testing.T) {
	fs := NewFrameSynchronizer(nil)
	res := fs.Synchronize(frames(0b00000, 0b11000, 0b11111, 0b11000), ModeLAT)

	assert.Equal(t, "АA", res.Text)
	assert.Equal(t, ModeLAT, res.Mode)
	assert.Equal(t, 2, res.Switches)
}

func TestSynchronizeUnknownCode(t *testing.T) {
	fs := NewFrameSynchronizer(nil)
	res := fs.Synchronize(frames(0b11011, 0b10111, 0b00001), ModeLAT)

	assert.Equal(t, "?5", res.Text)
	assert.Equal(t, 1, res.Unknown)
}

func TestSynchronizeSkipsIdle(t *testing.T) {
	fs := NewFrameSynchronizer(nil)
	bits := append(Idle(9), frames(0b11000)...)
	assert.Equal(t, "A", fs.Synchronize(bits, ModeLAT).Text)
}

func TestSynchronizeResyncAfterSpuriousStart(t *testing.T) {
	fs := NewFrameSynchronizer(nil)
	bits := append([]byte{0}, frames(0b11000, 0b10000)...)
	res := fs.Synchronize(bits, ModeLAT)

	assert.Equal(t, "AE", res.Text)
	assert.Equal(t, 1, res.Resyncs)
}

func TestSynchronizeLeavesPartialFrame(t *testing.T) {
	fs := NewFrameSynchronizer(nil)
	full := frames(0b11000, 0b10011)
	res := fs.Synchronize(full[:len(full)-3], ModeLAT)

	assert.Equal(t, "A", res.Text)
	assert.Equal(t, 8, res.Consumed)

	rest := append(full[res.Consumed:len(full)-3:len(full)-3], full[len(full)-3:]...)
	res = fs.Synchronize(rest, res.Mode)
	assert.Equal(t, "B", res.Text)
}

func TestSynchronizeShortInput(t *testing.T) {
	fs := NewFrameSynchronizer(nil)
	for n := 0; n < 7; n++ {
		res := fs.Synchronize(make([]byte, n), ModeRUS)
		assert.Empty(t, res.Text)
		assert.Equal(t, 0, res.Consumed)
		assert.Equal(t, ModeRUS, res.Mode)
	}
}

func TestFormatStreamText(t *testing.T) {
	assert.Equal(t, "", FormatStreamText(""))
	assert.Equal(t, "CQ\nDE\n", FormatStreamText("CQ\r\n\r\nDE\r"))
	assert.Equal(t, "A\nB", FormatStreamText("A\n\n\n\nB"))
}

// chunkedSync feeds bits in pieces the way a streaming session does
func chunkedSync(bits []byte, sizes []int) (string, Mode) {
	fs := NewFrameSynchronizer(nil)
	mode := ModeLAT
	var pending []byte
	var text string
	for len(bits) > 0 {
		n := len(bits)
		if len(sizes) > 0 {
			n = sizes[0]
			sizes = sizes[1:]
			if n > len(bits) {
				n = len(bits)
			}
		}
		pending = append(pending, bits[:n]...)
		bits = bits[n:]
		if len(pending) < frameBits {
			continue
		}
		res := fs.Synchronize(pending, mode)
		text += res.Text
		mode = res.Mode
		pending = append([]byte(nil), pending[res.Consumed:]...)
	}
	return text, mode
}

func TestRoundTripProperty(t *testing.T) {
	enc := NewEncoder(nil, 2)
	fs := NewFrameSynchronizer(nil)

	rapid.Check(t, func(t *rapid.T) {
		mode := rapid.SampledFrom([]Mode{ModeLAT, ModeRUS, ModeFIGS}).Draw(t, "mode")
		alphabet := DefaultCodebook.Alphabet(mode)
		runes := rapid.SliceOfN(rapid.SampledFrom(alphabet), 0, 40).Draw(t, "text")
		text := string(runes)

		bits, _, err := enc.EncodeText(text, ModeLAT)
		require.NoError(t, err)

		assert.Equal(t, text, fs.Synchronize(bits, ModeLAT).Text)

		sizes := rapid.SliceOfN(rapid.IntRange(1, 40), 0, 30).Draw(t, "sizes")
		chunked, _ := chunkedSync(bits, sizes)
		assert.Equal(t, text, chunked)
	})
}

func TestChunkedMatchesWholeProperty(t *testing.T) {
	fs := NewFrameSynchronizer(nil)

	rapid.Check(t, func(t *rapid.T) {
		raw := rapid.SliceOfN(rapid.IntRange(0, 1), 0, 300).Draw(t, "bits")
		bits := make([]byte, len(raw))
		for i, b := range raw {
			bits[i] = byte(b)
		}
		sizes := rapid.SliceOfN(rapid.IntRange(1, 25), 0, 40).Draw(t, "sizes")

		whole := fs.Synchronize(bits, ModeLAT)
		again := fs.Synchronize(bits, ModeLAT)
		assert.Equal(t, whole, again)

		text, mode := chunkedSync(bits, sizes)
		assert.Equal(t, whole.Text, text)
		assert.Equal(t, whole.Mode, mode)
	})
}

func TestResyncProperty(t *testing.T) {
	enc := NewEncoder(nil, 2)
	fs := NewFrameSynchronizer(nil)
	alphabet := DefaultCodebook.Alphabet(ModeLAT)

	rapid.Check(t, func(t *rapid.T) {
		// First character ends on a space bit so the spurious start cannot borrow it
		first := rapid.SampledFrom([]rune{'A', 'E', 'I', 'N', 'K', 'S', 'D'}).Draw(t, "first")
		rest := rapid.SliceOfN(rapid.SampledFrom(alphabet), 0, 20).Draw(t, "rest")
		text := string(first) + string(rest)

		bits, _, err := enc.EncodeText(text, ModeLAT)
		require.NoError(t, err)
		bits = append([]byte{0}, bits...)

		res := fs.Synchronize(bits, ModeLAT)
		assert.Equal(t, text, res.Text)
		assert.GreaterOrEqual(t, res.Resyncs, 1)
	})
}
