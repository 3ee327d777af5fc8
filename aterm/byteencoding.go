package aterm

import (
	"errors"
	"fmt"
	"math/big"
)

// ErrMalformedEncoding is returned when an encoded integer or term stream cannot be decoded.
var ErrMalformedEncoding = errors.New("malformed term encoding")

const (
	mbiPayload      = 0x7f
	mbiContinuation = 0x80

	// MaxMultiByteIntLen is the longest encoding of a uint64.
	MaxMultiByteIntLen = 10
)

// AppendMultiByteInt appends the multi-byte encoding of i to dst.
// Every byte carries 7 bits of magnitude, least significant chunk first; the
// high bit is set iff more bytes follow.
func AppendMultiByteInt(dst []byte, i uint64) []byte {
	for i >= mbiContinuation {
		dst = append(dst, byte(i&mbiPayload)|mbiContinuation)
		i >>= 7
	}
	return append(dst, byte(i))
}

// EncodeMultiByteInt returns the multi-byte encoding of i. Zero encodes as a single zero byte.
func EncodeMultiByteInt(i uint64) []byte {
	return AppendMultiByteInt(make([]byte, 0, MultiByteIntLen(i)), i)
}

// MultiByteIntLen is the number of bytes EncodeMultiByteInt(i) produces.
func MultiByteIntLen(i uint64) int {
	n := 1
	for i >= mbiContinuation {
		i >>= 7
		n++
	}
	return n
}

// DecodeMultiByteInt decodes one integer from the start of buf, returning the value and the
// number of bytes consumed.
func DecodeMultiByteInt(buf []byte) (uint64, int, error) {
	var result uint64
	var shift uint
	for idx, b := range buf {
		if idx == MaxMultiByteIntLen-1 && b > 1 {
			return 0, 0, fmt.Errorf("%w: integer overflows 64 bits", ErrMalformedEncoding)
		}
		result |= uint64(b&mbiPayload) << shift
		if b&mbiContinuation == 0 {
			return result, idx + 1, nil
		}
		shift += 7
	}
	return 0, 0, fmt.Errorf("%w: unterminated integer after %d bytes", ErrMalformedEncoding, len(buf))
}

var mbiMask = big.NewInt(mbiPayload)

// AppendMultiByteBig appends the multi-byte encoding of the magnitude of x to dst. The sign
// of x is ignored.
func AppendMultiByteBig(dst []byte, x *big.Int) []byte {
	if x.IsUint64() {
		return AppendMultiByteInt(dst, x.Uint64())
	}
	v := new(big.Int).Abs(x)
	chunk := new(big.Int)
	for v.Cmp(mbiMask) > 0 {
		chunk.And(v, mbiMask)
		dst = append(dst, byte(chunk.Uint64())|mbiContinuation)
		v.Rsh(v, 7)
	}
	return append(dst, byte(v.Uint64()))
}

// DecodeMultiByteBig decodes an arbitrary precision non-negative integer from the start of buf.
func DecodeMultiByteBig(buf []byte) (*big.Int, int, error) {
	result := new(big.Int)
	chunk := new(big.Int)
	var shift uint
	for idx, b := range buf {
		chunk.SetUint64(uint64(b & mbiPayload))
		chunk.Lsh(chunk, shift)
		result.Or(result, chunk)
		if b&mbiContinuation == 0 {
			return result, idx + 1, nil
		}
		shift += 7
	}
	return nil, 0, fmt.Errorf("%w: unterminated integer after %d bytes", ErrMalformedEncoding, len(buf))
}
