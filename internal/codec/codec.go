// Package codec packs pool and token state into 256-bit storage words.
//
// Each record has a static field table. Fields are laid out from the least
// significant bit of the word; a value that does not fit its field's width
// is rejected with ErrEncodingOverflow rather than truncated.
package codec

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var ErrEncodingOverflow = errors.New("value does not fit encoding field")

// Field is a fixed bit range inside a word.
type Field struct {
	Name   string
	Offset uint
	Width  uint
}

// Max returns the largest value the field can hold.
func (f Field) Max() *uint256.Int {
	return maxForWidth(f.Width)
}

// Pack writes v into f of word, leaving all other bits untouched.
func Pack(word common.Hash, f Field, v *uint256.Int) (common.Hash, error) {
	if v.Gt(f.Max()) {
		return word, fmt.Errorf("%s=%s exceeds %d bits: %w", f.Name, v.Dec(), f.Width, ErrEncodingOverflow)
	}
	w := new(uint256.Int).SetBytes32(word[:])
	mask := new(uint256.Int).Lsh(f.Max(), f.Offset)
	w.And(w, new(uint256.Int).Not(mask))
	w.Or(w, new(uint256.Int).Lsh(v, f.Offset))
	return common.Hash(w.Bytes32()), nil
}

// PackUint64 is Pack for small integers.
func PackUint64(word common.Hash, f Field, v uint64) (common.Hash, error) {
	return Pack(word, f, uint256.NewInt(v))
}

// PackBool stores b as a single bit.
func PackBool(word common.Hash, f Field, b bool) (common.Hash, error) {
	if b {
		return PackUint64(word, f, 1)
	}
	return PackUint64(word, f, 0)
}

// Unpack reads f from word.
func Unpack(word common.Hash, f Field) *uint256.Int {
	w := new(uint256.Int).SetBytes32(word[:])
	w.Rsh(w, f.Offset)
	return w.And(w, f.Max())
}

// UnpackUint64 reads a field no wider than 64 bits.
func UnpackUint64(word common.Hash, f Field) uint64 {
	return Unpack(word, f).Uint64()
}

// UnpackBool reads a single-bit field.
func UnpackBool(word common.Hash, f Field) bool {
	return !Unpack(word, f).IsZero()
}

// Compress maps v in [0, ceiling] onto [0, 2^width-1], rounding to nearest.
// Ordering is preserved. Values above ceiling fail with ErrEncodingOverflow.
func Compress(v *uint256.Int, width uint, ceiling *uint256.Int) (*uint256.Int, error) {
	if v.Gt(ceiling) {
		return nil, fmt.Errorf("compress %s above ceiling %s: %w", v.Dec(), ceiling.Dec(), ErrEncodingOverflow)
	}
	maxCode := maxForWidth(width)
	half := new(uint256.Int).Rsh(ceiling, 1)
	return scaleRounded(v, maxCode, ceiling, half)
}

// Decompress is the approximate inverse of Compress. The result differs from
// the original value by at most one quantization step, ceiling/(2^width-1).
func Decompress(code *uint256.Int, width uint, ceiling *uint256.Int) (*uint256.Int, error) {
	maxCode := maxForWidth(width)
	if code.Gt(maxCode) {
		return nil, fmt.Errorf("decompress code %s wider than %d bits: %w", code.Dec(), width, ErrEncodingOverflow)
	}
	half := new(uint256.Int).Rsh(maxCode, 1)
	return scaleRounded(code, ceiling, maxCode, half)
}

// Step returns the quantization step of a width/ceiling pair, rounded up.
func Step(width uint, ceiling *uint256.Int) *uint256.Int {
	maxCode := maxForWidth(width)
	q, r := new(uint256.Int), new(uint256.Int)
	q.DivMod(ceiling, maxCode, r)
	if !r.IsZero() {
		q.AddUint64(q, 1)
	}
	return q
}

// scaleRounded computes (v*num + bias) / den.
func scaleRounded(v, num, den, bias *uint256.Int) (*uint256.Int, error) {
	product, overflow := new(uint256.Int).MulOverflow(v, num)
	if overflow {
		return nil, fmt.Errorf("scale %s: %w", v.Dec(), ErrEncodingOverflow)
	}
	if _, overflow = product.AddOverflow(product, bias); overflow {
		return nil, fmt.Errorf("scale %s: %w", v.Dec(), ErrEncodingOverflow)
	}
	return product.Div(product, den), nil
}

func maxForWidth(width uint) *uint256.Int {
	if width >= 256 {
		return new(uint256.Int).SetAllOne()
	}
	one := uint256.NewInt(1)
	m := new(uint256.Int).Lsh(one, width)
	return m.Sub(m, one)
}
