package writer

import (
	"errors"
	"fmt"
)

// LZFFilter is the LZF compression filter (id 32000), the fast
// compressor h5py and PyTables register. The stream is a sequence of
// literal runs and backreferences into an 8 KiB window:
//
//	000LLLLL                     literal run of L+1 bytes
//	RRROXXXX XXXXXXXX            short backref, R+2 bytes (3..8)
//	111OXXXX XXXXXXXX RRRRRRRR   long backref, R+9 bytes (9..264)
//
// where OXXXX XXXXXXXX is the 13-bit offset minus one.
type LZFFilter struct{}

// NewLZFFilter returns the LZF filter; it has no parameters.
func NewLZFFilter() *LZFFilter { return &LZFFilter{} }

// ID returns the registered filter identifier.
func (f *LZFFilter) ID() FilterID { return FilterLZF }

// Name returns the registered filter name.
func (f *LZFFilter) Name() string { return "lzf" }

// Apply compresses data.
func (f *LZFFilter) Apply(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	return lzfCompress(data), nil
}

// Remove decompresses data.
func (f *LZFFilter) Remove(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	return lzfDecompress(data)
}

// Encode returns the pipeline message parameters h5py emits.
func (f *LZFFilter) Encode() (uint16, []uint32) {
	return 0, []uint32{0, 0, 0}
}

const (
	lzfWindow   = 8192
	lzfMaxMatch = 264
	lzfHashLog  = 14
)

// lzfHash spreads a 3-byte pattern over the 14-bit table index.
func lzfHash(b0, b1, b2 byte) uint32 {
	v := uint32(b0)<<16 | uint32(b1)<<8 | uint32(b2)
	v ^= v >> 16
	v *= 0x45d9f3b
	v ^= v >> 16
	return v & (1<<lzfHashLog - 1)
}

func lzfCompress(input []byte) []byte {
	out := make([]byte, 0, len(input)+len(input)/32+16)
	var table [1 << lzfHashLog]uint32

	pos := 0
	lit := 0
	for pos < len(input) {
		if pos+3 > len(input) {
			break
		}
		h := lzfHash(input[pos], input[pos+1], input[pos+2])
		ref := int(table[h])
		table[h] = uint32(pos)

		dist := pos - ref
		if ref > 0 && dist > 0 && dist <= lzfWindow &&
			input[ref] == input[pos] && input[ref+1] == input[pos+1] && input[ref+2] == input[pos+2] {
			if lit < pos {
				out = lzfLiteral(out, input[lit:pos])
			}
			maxLen := len(input) - pos
			if maxLen > lzfMaxMatch {
				maxLen = lzfMaxMatch
			}
			n := 3
			for n < maxLen && input[ref+n] == input[pos+n] {
				n++
			}
			out = lzfBackref(out, dist, n)
			pos += n
			lit = pos
			// keep the table warm over the skipped span
			for i := 1; i < n-2; i++ {
				p := pos - n + i
				if p+2 < len(input) {
					table[lzfHash(input[p], input[p+1], input[p+2])] = uint32(p)
				}
			}
		} else {
			pos++
		}
	}
	if lit < len(input) {
		out = lzfLiteral(out, input[lit:])
	}
	return out
}

// lzfLiteral emits literal runs of at most 32 bytes each.
func lzfLiteral(out, lit []byte) []byte {
	for len(lit) > 0 {
		n := len(lit)
		if n > 32 {
			n = 32
		}
		out = append(out, byte(n-1))
		out = append(out, lit[:n]...)
		lit = lit[n:]
	}
	return out
}

func lzfBackref(out []byte, dist, length int) []byte {
	off := dist - 1
	if length <= 8 {
		out = append(out, byte((length-2)<<5|off>>8), byte(off))
	} else {
		out = append(out, byte(0xE0|off>>8), byte(off), byte(length-9))
	}
	return out
}

func lzfDecompress(input []byte) ([]byte, error) {
	out := make([]byte, 0, len(input)*2)
	pos := 0
	for pos < len(input) {
		ctrl := input[pos]
		pos++

		if ctrl&0xE0 == 0 {
			n := int(ctrl) + 1
			if pos+n > len(input) {
				return nil, errors.New("lzf: truncated literal run")
			}
			out = append(out, input[pos:pos+n]...)
			pos += n
			continue
		}

		if pos >= len(input) {
			return nil, errors.New("lzf: truncated backreference")
		}
		off := int(ctrl&0x1F)<<8 | int(input[pos])
		pos++
		off++

		var n int
		if ctrl&0xE0 == 0xE0 {
			if pos >= len(input) {
				return nil, errors.New("lzf: truncated long backreference")
			}
			n = int(input[pos]) + 9
			pos++
		} else {
			n = int(ctrl>>5) + 2
		}

		if off > len(out) {
			return nil, fmt.Errorf("lzf: backreference offset %d beyond %d output bytes", off, len(out))
		}
		// source may overlap destination for run-length style matches
		src := len(out) - off
		for i := 0; i < n; i++ {
			out = append(out, out[src+i])
		}
	}
	return out, nil
}
