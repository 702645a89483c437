package ads

import "fmt"

// Kind discriminates the variant a Value currently holds.
type Kind int

const (
	KindBool Kind = iota
	KindI64
	KindU64
	KindF64
	KindBytes
	KindString
	KindArray
	KindStruct
	KindEnum
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "Bool"
	case KindI64:
		return "I64"
	case KindU64:
		return "U64"
	case KindF64:
		return "F64"
	case KindBytes:
		return "Bytes"
	case KindString:
		return "String"
	case KindArray:
		return "Array"
	case KindStruct:
		return "Struct"
	case KindEnum:
		return "Enum"
	default:
		return "Unknown"
	}
}

// structField is one entry of a Value's ordered struct representation.
// Order is preserved so re-encoding a struct that was decoded from the wire
// reproduces the original member order even though lookups are
// case-insensitive.
type structField struct {
	name  string
	value Value
}

// Value is a tagged union able to hold any decoded ADS variable: a scalar,
// a byte blob, a string, an array of Values, or an ordered struct of named
// Values. Exactly one of the typed accessors is meaningful for a given
// Kind; the others panic, mirroring the source's "dynamic property bag"
// model without resorting to interface{} everywhere.
type Value struct {
	kind   Kind
	b      bool
	i      int64
	u      uint64
	f      float64
	bytes  []byte
	str    string
	arr    []Value
	fields []structField
}

func BoolValue(v bool) Value     { return Value{kind: KindBool, b: v} }
func I64Value(v int64) Value     { return Value{kind: KindI64, i: v} }
func U64Value(v uint64) Value    { return Value{kind: KindU64, u: v} }
func F64Value(v float64) Value   { return Value{kind: KindF64, f: v} }
func BytesValue(v []byte) Value  { return Value{kind: KindBytes, bytes: v} }
func StringValue(v string) Value { return Value{kind: KindString, str: v} }
func ArrayValue(v []Value) Value { return Value{kind: KindArray, arr: v} }

// NewEnumValue builds an enum Value carrying both its symbolic member name
// and its underlying numeric value, the {name,value} form ObjectifyEnumerations
// produces on decode.
func NewEnumValue(name string, value int64) Value {
	return Value{kind: KindEnum, str: name, i: value}
}

// StructBuilder accumulates named fields in insertion order before being
// turned into a Value, so callers don't need to hand-assemble the
// unexported structField slice.
type StructBuilder struct {
	fields []structField
}

// NewStructValue starts a new struct Value.
func NewStructValue() *StructBuilder {
	return &StructBuilder{}
}

func (b *StructBuilder) Set(name string, v Value) *StructBuilder {
	b.fields = append(b.fields, structField{name: name, value: v})
	return b
}

func (b *StructBuilder) Build() Value {
	return Value{kind: KindStruct, fields: b.fields}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) Bool() bool {
	if v.kind != KindBool {
		panic(fmt.Sprintf("ads: Value.Bool on %s value", v.kind))
	}
	return v.b
}

func (v Value) I64() int64 {
	if v.kind != KindI64 {
		panic(fmt.Sprintf("ads: Value.I64 on %s value", v.kind))
	}
	return v.i
}

func (v Value) U64() uint64 {
	if v.kind != KindU64 {
		panic(fmt.Sprintf("ads: Value.U64 on %s value", v.kind))
	}
	return v.u
}

func (v Value) F64() float64 {
	if v.kind != KindF64 {
		panic(fmt.Sprintf("ads: Value.F64 on %s value", v.kind))
	}
	return v.f
}

func (v Value) Bytes() []byte {
	if v.kind != KindBytes {
		panic(fmt.Sprintf("ads: Value.Bytes on %s value", v.kind))
	}
	return v.bytes
}

// String renders the value as text. For KindString it is the raw string;
// for scalars it's a best-effort textual form, useful for logging.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindBool:
		return fmt.Sprintf("%v", v.b)
	case KindI64:
		return fmt.Sprintf("%d", v.i)
	case KindU64:
		return fmt.Sprintf("%d", v.u)
	case KindF64:
		return fmt.Sprintf("%g", v.f)
	case KindEnum:
		return v.str
	default:
		return fmt.Sprintf("<%s>", v.kind)
	}
}

// EnumName returns an enum Value's symbolic member name.
func (v Value) EnumName() string {
	if v.kind != KindEnum {
		panic(fmt.Sprintf("ads: Value.EnumName on %s value", v.kind))
	}
	return v.str
}

// EnumOrdinal returns an enum Value's underlying numeric value.
func (v Value) EnumOrdinal() int64 {
	if v.kind != KindEnum {
		panic(fmt.Sprintf("ads: Value.EnumOrdinal on %s value", v.kind))
	}
	return v.i
}

func (v Value) Array() []Value {
	if v.kind != KindArray {
		panic(fmt.Sprintf("ads: Value.Array on %s value", v.kind))
	}
	return v.arr
}

// Field looks up a struct member case-insensitively, matching the ADS
// convention that symbol and member names are case-insensitive on the wire.
func (v Value) Field(name string) (Value, bool) {
	if v.kind != KindStruct {
		return Value{}, false
	}
	for _, f := range v.fields {
		if equalFold(f.name, name) {
			return f.value, true
		}
	}
	return Value{}, false
}

// Fields returns the struct's members in their original declaration order.
func (v Value) Fields() []string {
	if v.kind != KindStruct {
		return nil
	}
	names := make([]string, len(v.fields))
	for i, f := range v.fields {
		names[i] = f.name
	}
	return names
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
