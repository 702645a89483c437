package ads

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromRawToRawScalarRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		dt   *DataType
		raw  []byte
	}{
		{"BOOL true", &DataType{TypeName: "BOOL", Size: 1, AdsDataType: uint32(TypeBool)}, []byte{1}},
		{"BOOL false", &DataType{TypeName: "BOOL", Size: 1, AdsDataType: uint32(TypeBool)}, []byte{0}},
		{"BYTE", &DataType{TypeName: "BYTE", Size: 1, AdsDataType: uint32(TypeByte)}, []byte{0xAB}},
		{"INT", &DataType{TypeName: "INT", Size: 2, AdsDataType: uint32(TypeInt16)}, []byte{0x34, 0x12}},
		{"DINT negative", &DataType{TypeName: "DINT", Size: 4, AdsDataType: uint32(TypeInt32)}, []byte{0xFF, 0xFF, 0xFF, 0xFF}},
		{"DWORD", &DataType{TypeName: "DWORD", Size: 4, AdsDataType: uint32(TypeDWord)}, []byte{1, 0, 0, 0}},
		{"REAL", &DataType{TypeName: "REAL", Size: 4, AdsDataType: uint32(TypeReal)}, []byte{0xC3, 0xF5, 0x48, 0x40}},
		{"LREAL", &DataType{TypeName: "LREAL", Size: 8, AdsDataType: uint32(TypeLReal)}, []byte{0, 0, 0, 0, 0, 0, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := FromRaw(tt.raw, tt.dt, nil, false)
			require.NoError(t, err)

			raw, err := ToRaw(v, tt.dt, nil, false)
			require.NoError(t, err)
			assert.Equal(t, tt.raw, raw)
		})
	}
}

func TestFromRawString(t *testing.T) {
	dt := &DataType{TypeName: "STRING", Size: 10, AdsDataType: uint32(TypeString)}
	raw := append([]byte("hi"), make([]byte, 8)...)

	v, err := FromRaw(raw, dt, nil, false)
	require.NoError(t, err)
	assert.Equal(t, "hi", v.String())

	out, err := ToRaw(v, dt, nil, false)
	require.NoError(t, err)
	require.Len(t, out, 10)
	assert.Equal(t, "hi\x00", string(out[:3]))
}

func TestFromRawArray(t *testing.T) {
	dt := &DataType{
		TypeName:    "INT",
		Size:        6,
		AdsDataType: uint32(TypeInt16),
		ArrayInfo:   []ArrayBound{{LowerBound: 0, Length: 3}},
	}
	raw := []byte{1, 0, 2, 0, 3, 0}

	v, err := FromRaw(raw, dt, nil, false)
	require.NoError(t, err)
	require.Equal(t, KindArray, v.Kind())

	elems := v.Array()
	require.Len(t, elems, 3)
	assert.Equal(t, int64(1), elems[0].I64())
	assert.Equal(t, int64(2), elems[1].I64())
	assert.Equal(t, int64(3), elems[2].I64())

	out, err := ToRaw(v, dt, nil, false)
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}

func TestFromRawStruct(t *testing.T) {
	arena := NewDataTypeArena()

	xIdx := arena.AddMember(&DataType{Name: "X", TypeName: "INT", Size: 2, Offset: 0, AdsDataType: uint32(TypeInt16)})
	yIdx := arena.AddMember(&DataType{Name: "Y", TypeName: "INT", Size: 2, Offset: 2, AdsDataType: uint32(TypeInt16)})

	structType := &DataType{
		TypeName: "ST_Point",
		Size:     4,
		SubItems: []int{xIdx, yIdx},
	}

	raw := []byte{10, 0, 20, 0}
	v, err := FromRaw(raw, structType, arena, false)
	require.NoError(t, err)
	require.Equal(t, KindStruct, v.Kind())

	xVal, ok := v.Field("x")
	require.True(t, ok, "struct field lookup should be case-insensitive")
	assert.Equal(t, int64(10), xVal.I64())

	out, err := ToRaw(v, structType, arena, false)
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}

// TestFromRawStructDuplicateMemberTypeName guards against members of the
// same TypeName colliding in the arena: a naive Add() keyed by TypeName
// would dedup "a INT" and "b INT" onto one index and lose the first field.
func TestFromRawStructDuplicateMemberTypeName(t *testing.T) {
	arena := NewDataTypeArena()

	aIdx := arena.AddMember(&DataType{Name: "A", TypeName: "INT", Size: 2, Offset: 0, AdsDataType: uint32(TypeInt16)})
	bIdx := arena.AddMember(&DataType{Name: "B", TypeName: "INT", Size: 2, Offset: 2, AdsDataType: uint32(TypeInt16)})
	require.NotEqual(t, aIdx, bIdx, "distinct struct members must get distinct arena slots even with the same TypeName")

	structType := &DataType{TypeName: "ST_Pair", Size: 4, SubItems: []int{aIdx, bIdx}}
	raw := []byte{10, 0, 20, 0}

	v, err := FromRaw(raw, structType, arena, false)
	require.NoError(t, err)

	aVal, ok := v.Field("a")
	require.True(t, ok)
	assert.Equal(t, int64(10), aVal.I64())

	bVal, ok := v.Field("b")
	require.True(t, ok)
	assert.Equal(t, int64(20), bVal.I64())

	out, err := ToRaw(v, structType, arena, false)
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}

func TestToRawStructMissingMemberWithoutAutoFill(t *testing.T) {
	arena := NewDataTypeArena()
	xIdx := arena.AddMember(&DataType{Name: "X", TypeName: "INT", Size: 2, Offset: 0, AdsDataType: uint32(TypeInt16)})
	structType := &DataType{TypeName: "ST_Point", Size: 2, SubItems: []int{xIdx}}

	empty := NewStructValue().Build()
	_, err := ToRaw(empty, structType, arena, false)
	assert.Error(t, err)
}

func TestToRawStructMissingMemberWithAutoFill(t *testing.T) {
	arena := NewDataTypeArena()
	xIdx := arena.AddMember(&DataType{Name: "X", TypeName: "INT", Size: 2, Offset: 0, AdsDataType: uint32(TypeInt16)})
	structType := &DataType{TypeName: "ST_Point", Size: 2, SubItems: []int{xIdx}}

	empty := NewStructValue().Build()
	out, err := ToRaw(empty, structType, arena, true)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0}, out)
}

func TestFromRawEnumBareOrdinalWhenNotObjectified(t *testing.T) {
	dt := &DataType{
		TypeName:  "E_Color",
		Size:      2,
		EnumInfos: []EnumMember{{Name: "Red", Value: 0}, {Name: "Green", Value: 1}, {Name: "Blue", Value: 2}},
	}
	raw := []byte{1, 0}

	v, err := FromRaw(raw, dt, nil, false)
	require.NoError(t, err)
	assert.Equal(t, KindI64, v.Kind())
	assert.Equal(t, int64(1), v.I64())

	out, err := ToRaw(v, dt, nil, false)
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}

func TestFromRawEnumObjectifiedCarriesNameAndValue(t *testing.T) {
	dt := &DataType{
		TypeName:  "E_Color",
		Size:      2,
		EnumInfos: []EnumMember{{Name: "Red", Value: 0}, {Name: "Green", Value: 1}, {Name: "Blue", Value: 2}},
	}
	raw := []byte{1, 0}

	v, err := FromRaw(raw, dt, nil, true)
	require.NoError(t, err)
	require.Equal(t, KindEnum, v.Kind())
	assert.Equal(t, "Green", v.EnumName())
	assert.Equal(t, int64(1), v.EnumOrdinal())

	out, err := ToRaw(v, dt, nil, false)
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}

func TestToRawEnumAcceptsNameForm(t *testing.T) {
	dt := &DataType{
		TypeName:  "E_Color",
		Size:      2,
		EnumInfos: []EnumMember{{Name: "Red", Value: 0}, {Name: "Green", Value: 1}, {Name: "Blue", Value: 2}},
	}

	out, err := ToRaw(StringValue("blue"), dt, nil, false)
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 0}, out)

	out, err = ToRaw(NewEnumValue("Green", 0), dt, nil, false)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 0}, out)
}

func TestFromRawAliasResolvesThroughArena(t *testing.T) {
	arena := NewDataTypeArena()
	arena.Add(&DataType{TypeName: "DINT", Size: 4, AdsDataType: uint32(TypeInt32)})

	alias := &DataType{TypeName: "DINT", Size: 4}
	v, err := FromRaw([]byte{42, 0, 0, 0}, alias, arena, false)
	require.NoError(t, err)
	assert.Equal(t, int64(42), v.I64())
}
