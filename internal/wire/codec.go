// Package wire encodes property values and messages as protobuf wire-format records.
// Unknown fields are skipped so older peers can read newer records.
package wire

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

var ErrMalformed = errors.New("malformed record")

// field is one decoded tag/value pair. Only the member matching typ is set.
type field struct {
	num    protowire.Number
	typ    protowire.Type
	varint uint64
	fixed  uint64
	bytes  []byte
}

// walk calls fn for every field in b. It stops at the first parse error or the first error from fn.
func walk(b []byte, fn func(f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: tag: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.varint, n = protowire.ConsumeVarint(b)
		case protowire.Fixed64Type:
			f.fixed, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
		}
		b = b[n:]

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func (f field) want(typ protowire.Type) error {
	if f.typ != typ {
		return fmt.Errorf("%w: field %d has wire type %d, want %d", ErrMalformed, f.num, f.typ, typ)
	}
	return nil
}

// repeated decodes every field-1 entry of a list with decode, collecting per-entry errors.
// A malformed entry is skipped; its siblings are still returned.
func repeated[T any](b []byte, decode func([]byte) (T, error)) ([]T, error) {
	var (
		out  []T
		errs []error
	)
	err := walk(b, func(f field) error {
		if f.num != 1 {
			return nil
		}
		if err := f.want(protowire.BytesType); err != nil {
			errs = append(errs, err)
			return nil
		}
		v, err := decode(f.bytes)
		if err != nil {
			errs = append(errs, fmt.Errorf("entry %d: %w", len(out)+len(errs), err))
			return nil
		}
		out = append(out, v)
		return nil
	})
	if err != nil {
		errs = append(errs, err)
	}
	return out, errors.Join(errs...)
}

func appendRecord(b []byte, num protowire.Number, rec []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, rec)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendUint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendSint(b []byte, num protowire.Number, v int64) []byte {
	return appendUint(b, num, protowire.EncodeZigZag(v))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	return appendUint(b, num, protowire.EncodeBool(v))
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func sint(f field) (int, error) {
	if err := f.want(protowire.VarintType); err != nil {
		return 0, err
	}
	return int(protowire.DecodeZigZag(f.varint)), nil
}

func unsigned(f field) (int, error) {
	if err := f.want(protowire.VarintType); err != nil {
		return 0, err
	}
	if f.varint > math.MaxInt32 {
		return 0, fmt.Errorf("%w: field %d out of range", ErrMalformed, f.num)
	}
	return int(f.varint), nil
}

func str(f field) (string, error) {
	if err := f.want(protowire.BytesType); err != nil {
		return "", err
	}
	return string(f.bytes), nil
}

func double(f field) (float64, error) {
	if err := f.want(protowire.Fixed64Type); err != nil {
		return 0, err
	}
	return math.Float64frombits(f.fixed), nil
}
