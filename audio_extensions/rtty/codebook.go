package rtty

import (
	"fmt"
	"sort"
)

// Mode is the active ITA2 shift register
type Mode uint8

const (
	ModeLAT  Mode = iota // Latin letters
	ModeRUS              // Cyrillic letters (MTK-2)
	ModeFIGS             // Figures
)

// Placeholder is emitted for codes with no character in the active mode
const Placeholder = '?'

// String returns the mode name used in logs and messages
func (m Mode) String() string {
	switch m {
	case ModeLAT:
		return "LAT"
	case ModeRUS:
		return "RUS"
	case ModeFIGS:
		return "FIGS"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// ParseMode converts a mode name back into a Mode
func ParseMode(s string) (Mode, error) {
	switch s {
	case "LAT", "lat":
		return ModeLAT, nil
	case "RUS", "rus":
		return ModeRUS, nil
	case "FIGS", "figs":
		return ModeFIGS, nil
	}
	return ModeLAT, fmt.Errorf("unknown mode %q", s)
}

// Code is a 5-bit ITA2 code, first transmitted data bit in bit 4
type Code uint8

// CodeFromBits packs five 0/1 values into a Code
func CodeFromBits(b []byte) Code {
	var c Code
	for i := 0; i < 5; i++ {
		c = c<<1 | Code(b[i]&1)
	}
	return c
}

// Bits unpacks the code into five 0/1 values in transmission order
func (c Code) Bits() [5]byte {
	var b [5]byte
	for i := 0; i < 5; i++ {
		b[i] = byte(c>>(4-i)) & 1
	}
	return b
}

// String renders the code as its bit pattern
func (c Code) String() string {
	b := c.Bits()
	return fmt.Sprintf("%d%d%d%d%d", b[0], b[1], b[2], b[3], b[4])
}

// Codebook holds the per-mode character tables and the mode-switch table
type Codebook struct {
	chars    [3]map[Code]rune
	reverse  [3]map[rune]Code
	switches map[Code]Mode
	shiftFor [3]Code
}

// DefaultCodebook is the shared immutable ITA2 / MTK-2 codebook
var DefaultCodebook = newDefaultCodebook()

func newDefaultCodebook() *Codebook {
	switches := map[Code]Mode{
		0b00000: ModeRUS,
		0b11011: ModeFIGS,
		0b11111: ModeLAT,
	}

	lat := map[Code]rune{
		0b11000: 'A', 0b10011: 'B', 0b01110: 'C', 0b10010: 'D', 0b10000: 'E',
		0b10110: 'F', 0b01011: 'G', 0b00101: 'H', 0b01100: 'I', 0b11010: 'J',
		0b11110: 'K', 0b01001: 'L', 0b00111: 'M', 0b00110: 'N', 0b00011: 'O',
		0b01101: 'P', 0b11101: 'Q', 0b01010: 'R', 0b10100: 'S', 0b00001: 'T',
		0b11100: 'U', 0b01111: 'V', 0b11001: 'W', 0b10111: 'X', 0b10101: 'Y',
		0b10001: 'Z', 0b00100: ' ', 0b00010: '\r', 0b01000: '\n',
	}

	// 10111 carries Ь (Ъ shares the code on the air and is folded into it).
	// 10000 carries Е (Ё is folded into it).
	rus := map[Code]rune{
		0b11000: 'А', 0b10011: 'Б', 0b11001: 'В', 0b01011: 'Г', 0b10010: 'Д',
		0b10000: 'Е', 0b01111: 'Ж', 0b10001: 'З', 0b01100: 'И', 0b11010: 'Й',
		0b11110: 'К', 0b01001: 'Л', 0b00111: 'М', 0b00110: 'Н', 0b00011: 'О',
		0b01101: 'П', 0b01010: 'Р', 0b10100: 'С', 0b00001: 'Т', 0b11100: 'У',
		0b10110: 'Ф', 0b00101: 'Х', 0b01110: 'Ц', 0b10111: 'Ь', 0b10101: 'Ы',
		0b11101: 'Я', 0b00100: ' ', 0b00010: '\r', 0b01000: '\n',
	}

	// 01010 carries Ч in the MTK-2 figures row, so the digit 4 has no code.
	figs := map[Code]rune{
		0b01101: '0', 0b11101: '1', 0b11001: '2', 0b10000: '3', 0b01010: 'Ч',
		0b00001: '5', 0b10101: '6', 0b11100: '7', 0b01100: '8', 0b00011: '9',
		0b11000: '-', 0b10001: '+', 0b10011: '?', 0b01110: ':', 0b11110: '(',
		0b01001: ')', 0b00111: '.', 0b00110: ',', 0b01111: '/', 0b00100: ' ',
		0b01011: 'Ш', 0b00101: 'Щ', 0b10110: 'Э', 0b11010: 'Ю',
		0b00010: '\r', 0b01000: '\n',
	}

	cb := &Codebook{switches: switches}
	cb.chars[ModeLAT] = lat
	cb.chars[ModeRUS] = rus
	cb.chars[ModeFIGS] = figs

	for m := range cb.chars {
		cb.reverse[m] = make(map[rune]Code, len(cb.chars[m]))
		for code, r := range cb.chars[m] {
			cb.reverse[m][r] = code
		}
	}
	for code, m := range switches {
		cb.shiftFor[m] = code
	}

	return cb
}

// Switch reports the mode a mode-switch code selects
func (cb *Codebook) Switch(code Code) (Mode, bool) {
	m, ok := cb.switches[code]
	return m, ok
}

// Lookup returns the character for code in the given mode
func (cb *Codebook) Lookup(mode Mode, code Code) (rune, bool) {
	if int(mode) >= len(cb.chars) {
		return 0, false
	}
	r, ok := cb.chars[mode][code]
	return r, ok
}

// Encode returns the code for r in the given mode
func (cb *Codebook) Encode(mode Mode, r rune) (Code, bool) {
	if int(mode) >= len(cb.reverse) {
		return 0, false
	}
	code, ok := cb.reverse[mode][r]
	return code, ok
}

// ShiftCode returns the mode-switch code that selects mode
func (cb *Codebook) ShiftCode(mode Mode) Code {
	return cb.shiftFor[mode]
}

// Alphabet returns the characters of one mode, sorted
func (cb *Codebook) Alphabet(mode Mode) []rune {
	out := make([]rune, 0, len(cb.chars[mode]))
	for _, r := range cb.chars[mode] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ModesFor returns every mode whose table contains r, LAT first
func (cb *Codebook) ModesFor(r rune) []Mode {
	var modes []Mode
	for m := range cb.reverse {
		if _, ok := cb.reverse[m][r]; ok {
			modes = append(modes, Mode(m))
		}
	}
	return modes
}
