package ads

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"unicode/utf16"
)

// FromRaw decodes a wire-format buffer into a Value, walking dt's shape
// (scalar, alias, array, struct, or enum) and resolving named subtype
// references through arena. For a struct, subItems are read at their
// declared byte offsets; gaps between them (padding) are skipped.
// objectifyEnums controls whether an enum-typed value decodes to a bare
// integer or to a {name,value} Value (Settings.ObjectifyEnumerations).
func FromRaw(buf []byte, dt *DataType, arena *DataTypeArena, objectifyEnums bool) (Value, error) {
	switch {
	case dt.IsEnum():
		return fromRawEnum(buf, dt, objectifyEnums)
	case dt.IsArrayType():
		return fromRawArray(buf, dt, arena, objectifyEnums)
	case dt.IsStruct():
		return fromRawStruct(buf, dt, arena, objectifyEnums)
	case dt.IsAlias():
		aliased, ok := arena.Lookup(dt.TypeName)
		if !ok || aliased == dt {
			return fromRawScalar(buf, dt)
		}
		return FromRaw(buf, aliased, arena, objectifyEnums)
	default:
		return fromRawScalar(buf, dt)
	}
}

// fromRawEnum decodes an enum-typed value, returning its member name (and
// numeric value) when objectify is set and an EnumInfos entry matches, or the
// bare ordinal otherwise. An ordinal with no matching EnumInfos entry (PLCs
// allow writing an enum variable outside its declared member set) decodes
// to the bare ordinal even when objectify is set.
func fromRawEnum(buf []byte, dt *DataType, objectify bool) (Value, error) {
	iv, err := decodeSignedInt(buf)
	if err != nil {
		return Value{}, err
	}
	if !objectify {
		return I64Value(iv), nil
	}
	for _, m := range dt.EnumInfos {
		if m.Value == iv {
			return NewEnumValue(m.Name, iv), nil
		}
	}
	return I64Value(iv), nil
}

func fromRawArray(buf []byte, dt *DataType, arena *DataTypeArena, objectifyEnums bool) (Value, error) {
	elemType := *dt
	elemType.ArrayInfo = nil

	elemSize := int(dt.Size) / int(dt.ElementCount())
	if dt.ElementCount() == 0 {
		elemSize = 0
	}

	count := int(dt.ElementCount())
	elements := make([]Value, 0, count)
	for i := 0; i < count; i++ {
		start := i * elemSize
		end := start + elemSize
		if end > len(buf) {
			return Value{}, fmt.Errorf("%w: array element %d exceeds buffer", ErrProtocol, i)
		}
		elem, err := FromRaw(buf[start:end], &elemType, arena, objectifyEnums)
		if err != nil {
			return Value{}, err
		}
		elements = append(elements, elem)
	}
	return ArrayValue(elements), nil
}

func fromRawStruct(buf []byte, dt *DataType, arena *DataTypeArena, objectifyEnums bool) (Value, error) {
	b := NewStructValue()
	for _, idx := range dt.SubItems {
		member := arena.Get(idx)
		if member == nil {
			continue
		}
		start := int(member.Offset)
		end := start + int(member.Size)
		if start < 0 || end > len(buf) {
			return Value{}, fmt.Errorf("%w: member %s [%d:%d] exceeds struct buffer of %d bytes", ErrProtocol, member.Name, start, end, len(buf))
		}
		val, err := FromRaw(buf[start:end], member, arena, objectifyEnums)
		if err != nil {
			return Value{}, fmt.Errorf("member %s: %w", member.Name, err)
		}
		b.Set(member.Name, val)
	}
	return b.Build(), nil
}

func fromRawScalar(buf []byte, dt *DataType) (Value, error) {
	typeCode := scalarTypeCode(dt)

	switch typeCode {
	case TypeBool:
		if len(buf) < 1 {
			return Value{}, fmt.Errorf("%w: BOOL needs 1 byte", ErrProtocol)
		}
		return BoolValue(buf[0] != 0), nil
	case TypeByte, TypeWord, TypeDWord, TypeLWord:
		u, err := decodeUnsignedInt(buf)
		if err != nil {
			return Value{}, err
		}
		return U64Value(u), nil
	case TypeSByte, TypeInt16, TypeInt32, TypeInt64, TypeTime, TypeLTime, TypeDate, TypeTimeOfDay, TypeDateTime:
		iv, err := decodeSignedInt(buf)
		if err != nil {
			return Value{}, err
		}
		return I64Value(iv), nil
	case TypeReal:
		if len(buf) < 4 {
			return Value{}, fmt.Errorf("%w: REAL needs 4 bytes", ErrProtocol)
		}
		return F64Value(float64(math.Float32frombits(binary.LittleEndian.Uint32(buf)))), nil
	case TypeLReal:
		if len(buf) < 8 {
			return Value{}, fmt.Errorf("%w: LREAL needs 8 bytes", ErrProtocol)
		}
		return F64Value(math.Float64frombits(binary.LittleEndian.Uint64(buf))), nil
	case TypeString:
		return StringValue(decodeNulString(buf)), nil
	case TypeWString:
		return StringValue(decodeWString(buf)), nil
	default:
		// Unknown/opaque type (e.g. an FB instance with no further
		// structural information): expose the raw bytes rather than fail.
		return BytesValue(append([]byte(nil), buf...)), nil
	}
}

// scalarTypeCode maps a DataType to one of the primitive type codes in
// types.go: first by its TypeName (pointer/subrange decorations stripped by
// baseTypeName), then by a nonzero AdsDataType, and only then by a
// size-based guess (1/2/4/8 bytes become the unsigned integer of that width).
func scalarTypeCode(dt *DataType) uint16 {
	if code, ok := TypeCodeFromName(strings.ToUpper(baseTypeName(dt.TypeName))); ok {
		return code
	}
	if dt.AdsDataType != 0 && dt.AdsDataType <= uint32(^uint16(0)) {
		return uint16(dt.AdsDataType)
	}
	switch dt.Size {
	case 1:
		return TypeByte
	case 2:
		return TypeWord
	case 4:
		return TypeDWord
	case 8:
		return TypeLWord
	default:
		return TypeUnknown
	}
}

// baseTypeName strips TwinCAT's "POINTER TO X" / "X(range)" decorations so
// the remainder can still be matched against the scalar name table when
// applicable (pointers resolve to a plain unsigned integer of platform
// width; subranges resolve to their base integer type).
func baseTypeName(name string) string {
	upper := strings.ToUpper(strings.TrimSpace(name))
	if strings.HasPrefix(upper, "POINTER TO ") {
		return ""
	}
	if idx := strings.Index(name, "("); idx >= 0 {
		return strings.TrimSpace(name[:idx])
	}
	return name
}

func decodeUnsignedInt(buf []byte) (uint64, error) {
	switch len(buf) {
	case 1:
		return uint64(buf[0]), nil
	case 2:
		return uint64(binary.LittleEndian.Uint16(buf)), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(buf)), nil
	case 8:
		return binary.LittleEndian.Uint64(buf), nil
	default:
		return 0, fmt.Errorf("%w: unsupported integer width %d", ErrType, len(buf))
	}
}

func decodeSignedInt(buf []byte) (int64, error) {
	switch len(buf) {
	case 1:
		return int64(int8(buf[0])), nil
	case 2:
		return int64(int16(binary.LittleEndian.Uint16(buf))), nil
	case 4:
		return int64(int32(binary.LittleEndian.Uint32(buf))), nil
	case 8:
		return int64(binary.LittleEndian.Uint64(buf)), nil
	default:
		return 0, fmt.Errorf("%w: unsupported integer width %d", ErrType, len(buf))
	}
}

func decodeNulString(buf []byte) string {
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i])
		}
	}
	return string(buf)
}

func decodeWString(buf []byte) string {
	u16 := make([]uint16, 0, len(buf)/2)
	for i := 0; i+1 < len(buf); i += 2 {
		c := binary.LittleEndian.Uint16(buf[i : i+2])
		if c == 0 {
			break
		}
		u16 = append(u16, c)
	}
	return string(utf16.Decode(u16))
}

// ToRaw encodes v into wire bytes shaped by dt. autoFill controls what
// happens when a struct Value is missing a member dt declares: if true the
// missing slot is filled with that member's zero value, otherwise it is an
// error. Struct member lookup is case-insensitive on encode even though
// FromRaw preserves the server's original casing on decode.
func ToRaw(v Value, dt *DataType, arena *DataTypeArena, autoFill bool) ([]byte, error) {
	switch {
	case dt.IsEnum():
		return toRawScalar(v, dt)
	case dt.IsArrayType():
		return toRawArray(v, dt, arena, autoFill)
	case dt.IsStruct():
		return toRawStruct(v, dt, arena, autoFill)
	case dt.IsAlias():
		aliased, ok := arena.Lookup(dt.TypeName)
		if !ok || aliased == dt {
			return toRawScalar(v, dt)
		}
		return ToRaw(v, aliased, arena, autoFill)
	default:
		return toRawScalar(v, dt)
	}
}

func toRawArray(v Value, dt *DataType, arena *DataTypeArena, autoFill bool) ([]byte, error) {
	if v.Kind() != KindArray {
		return nil, fmt.Errorf("%w: expected array value for %s", ErrType, dt.TypeName)
	}
	elemType := *dt
	elemType.ArrayInfo = nil

	var out []byte
	for _, elem := range v.Array() {
		encoded, err := ToRaw(elem, &elemType, arena, autoFill)
		if err != nil {
			return nil, err
		}
		out = append(out, encoded...)
	}
	return out, nil
}

func toRawStruct(v Value, dt *DataType, arena *DataTypeArena, autoFill bool) ([]byte, error) {
	if v.Kind() != KindStruct {
		return nil, fmt.Errorf("%w: expected struct value for %s", ErrType, dt.TypeName)
	}
	out := make([]byte, dt.Size)
	for _, idx := range dt.SubItems {
		member := arena.Get(idx)
		if member == nil {
			continue
		}
		fieldVal, ok := v.Field(member.Name)
		if !ok {
			if !autoFill {
				return nil, fmt.Errorf("%w: missing struct member %q", ErrType, member.Name)
			}
			continue // zero value already present in out
		}
		encoded, err := ToRaw(fieldVal, member, arena, autoFill)
		if err != nil {
			return nil, fmt.Errorf("member %s: %w", member.Name, err)
		}
		start := int(member.Offset)
		if start+len(encoded) > len(out) {
			return nil, fmt.Errorf("%w: member %s overruns struct of size %d", ErrProtocol, member.Name, dt.Size)
		}
		copy(out[start:], encoded)
	}
	return out, nil
}

func toRawScalar(v Value, dt *DataType) ([]byte, error) {
	typeCode := scalarTypeCode(dt)

	if dt.IsEnum() {
		iv, err := enumOrdinal(v, dt)
		if err != nil {
			return nil, err
		}
		return encodeSignedInt(iv, int(dt.Size))
	}

	switch typeCode {
	case TypeBool:
		return encodeValueWithType(v.Bool(), typeCode)
	case TypeByte, TypeWord, TypeDWord, TypeLWord:
		return encodeValueWithType(v.U64(), typeCode)
	case TypeSByte, TypeInt16, TypeInt32, TypeInt64, TypeTime, TypeLTime, TypeDate, TypeTimeOfDay, TypeDateTime:
		return encodeValueWithType(v.I64(), typeCode)
	case TypeReal, TypeLReal:
		return encodeValueWithType(v.F64(), typeCode)
	case TypeString, TypeWString:
		s := v.String()
		raw, err := encodeValueWithType(s, typeCode)
		if err != nil {
			return nil, err
		}
		return padOrTrim(raw, int(dt.Size)), nil
	default:
		if v.Kind() == KindBytes {
			return padOrTrim(v.Bytes(), int(dt.Size)), nil
		}
		return nil, fmt.Errorf("%w: cannot encode %s as %s", ErrType, v.Kind(), dt.TypeName)
	}
}

// enumOrdinal resolves the numeric value to write for an enum-typed
// member: the ordinal as-is for a numeric Value, or a lookup by member
// name for the {name} form (an enum Value or a bare string), matching
// Settings.ObjectifyEnumerations on the write side regardless of how the
// value was decoded.
func enumOrdinal(v Value, dt *DataType) (int64, error) {
	switch v.Kind() {
	case KindI64:
		return v.I64(), nil
	case KindU64:
		return int64(v.U64()), nil
	case KindEnum:
		if name := v.EnumName(); name != "" {
			return enumOrdinalByName(dt, name)
		}
		return v.EnumOrdinal(), nil
	case KindString:
		return enumOrdinalByName(dt, v.String())
	default:
		return 0, fmt.Errorf("%w: cannot encode %s as enum %s", ErrType, v.Kind(), dt.TypeName)
	}
}

func enumOrdinalByName(dt *DataType, name string) (int64, error) {
	for _, m := range dt.EnumInfos {
		if equalFold(m.Name, name) {
			return m.Value, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown enum member %q for %s", ErrType, name, dt.TypeName)
}

func encodeSignedInt(v int64, size int) ([]byte, error) {
	buf := make([]byte, size)
	switch size {
	case 1:
		buf[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(buf, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(buf, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(buf, uint64(v))
	default:
		return nil, fmt.Errorf("%w: unsupported enum width %d", ErrType, size)
	}
	return buf, nil
}

// padOrTrim fits raw into exactly n bytes: truncated if longer, zero-padded
// (the PLC's expected representation for fixed-size STRING buffers) if
// shorter. n <= 0 means "use raw's own length" (e.g. WSTRING without a
// declared fixed size).
func padOrTrim(raw []byte, n int) []byte {
	if n <= 0 || len(raw) == n {
		return raw
	}
	if len(raw) > n {
		return raw[:n]
	}
	out := make([]byte, n)
	copy(out, raw)
	return out
}
