package ads

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// EnumMember is one name/value pair of an enum DataType.
type EnumMember struct {
	Name  string
	Value int64
}

// DataType describes one TwinCAT type: a scalar, an alias, an array, a
// struct (subItems), or an enum (EnumInfos). Complex types reference their
// members by index into a DataTypeArena rather than by pointer, so the
// whole type graph stays a flat, cheaply-comparable structure with no
// ownership cycles.
type DataType struct {
	Version       uint32
	HashValue     uint32
	TypeHashValue uint32
	Size          uint32
	Offset        uint32 // byte offset within the parent struct, for subItems
	AdsDataType   uint32
	Flags         uint32
	Name          string // member name (empty for the type's own top-level entry)
	TypeName      string // PLC type name
	Comment       string
	ArrayInfo     []ArrayBound
	SubItems      []int // indices into the owning arena
	Attributes    []Attribute
	EnumInfos     []EnumMember
	TypeGUID      [16]byte
	Reserved      []byte
}

// IsStruct reports whether d is a struct (has named subItems).
func (d *DataType) IsStruct() bool { return len(d.SubItems) > 0 }

// IsArrayType reports whether d has one or more array dimensions.
func (d *DataType) IsArrayType() bool { return len(d.ArrayInfo) > 0 }

// IsEnum reports whether d is an enumeration.
func (d *DataType) IsEnum() bool { return len(d.EnumInfos) > 0 }

// IsAlias reports whether d is a bare rename of another named type (a
// typeName with neither subItems nor array dimensions nor enum values).
func (d *DataType) IsAlias() bool {
	return d.TypeName != "" && !d.IsStruct() && !d.IsArrayType() && !d.IsEnum()
}

// IsPointer reports whether d's type name carries TwinCAT's "POINTER TO"
// decoration.
func (d *DataType) IsPointer() bool {
	return strings.HasPrefix(strings.ToUpper(d.TypeName), "POINTER TO ")
}

// IsSubrange reports whether d's type name carries a "(range)" decoration,
// TwinCAT's convention for subrange types (e.g. INT(0..100)).
func (d *DataType) IsSubrange() bool {
	return strings.Contains(d.TypeName, "(") && strings.HasSuffix(strings.TrimSpace(d.TypeName), ")")
}

// ElementCount returns the total number of elements across all array
// dimensions (1 for a non-array type).
func (d *DataType) ElementCount() uint32 {
	count := uint32(1)
	for _, dim := range d.ArrayInfo {
		count *= dim.Length
	}
	return count
}

// DataTypeArena owns every DataType reachable from a session's symbol
// table, keyed by lowercase type name, and lets subItems reference their
// member types by arena index instead of by pointer. This keeps the
// (possibly cyclic, via FB references) type graph flat and avoids manual
// ownership bookkeeping.
type DataTypeArena struct {
	types   []*DataType
	byName  map[string]int
}

// NewDataTypeArena returns an empty arena.
func NewDataTypeArena() *DataTypeArena {
	return &DataTypeArena{byName: make(map[string]int)}
}

// Add inserts dt under its lowercase TypeName, returning its arena index.
// If a type of that name already exists it is replaced and the existing
// index is reused, so a reconnect-triggered re-upload doesn't fragment the
// arena. Use this only for named top-level types that other types resolve
// by name (e.g. alias targets); struct/array members must go through
// AddMember instead, since two members can legitimately share a TypeName.
func (a *DataTypeArena) Add(dt *DataType) int {
	key := strings.ToLower(dt.TypeName)
	if idx, ok := a.byName[key]; ok {
		a.types[idx] = dt
		return idx
	}
	idx := len(a.types)
	a.types = append(a.types, dt)
	a.byName[key] = idx
	return idx
}

// AddMember appends dt as its own arena entry without deduping or
// registering it under its TypeName. A struct's subItems are positional
// (distinguished by Name/Offset, not by type), so two members of the same
// TypeName — e.g. `a INT; b INT` — must each get a distinct index rather
// than collapsing onto one.
func (a *DataTypeArena) AddMember(dt *DataType) int {
	idx := len(a.types)
	a.types = append(a.types, dt)
	return idx
}

// Get returns the DataType at idx.
func (a *DataTypeArena) Get(idx int) *DataType {
	if idx < 0 || idx >= len(a.types) {
		return nil
	}
	return a.types[idx]
}

// Lookup finds a DataType by name, case-insensitively.
func (a *DataTypeArena) Lookup(name string) (*DataType, bool) {
	if a == nil {
		return nil, false
	}
	idx, ok := a.byName[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return a.types[idx], true
}

// parseDataType decodes one DataType record, recursively parsing its
// subItems block. It mirrors parseSymbolInfo's layout with the additional
// version/hash/offset prefix fields and a trailing enumInfos + subItems
// block, whose counts are carried in the header.
func parseDataType(buf []byte) (*DataType, int, error) {
	const fixedHeaderSize = 4*4 + 4*4 + 2*4 + 2 + 2
	if len(buf) < fixedHeaderSize {
		return nil, 0, fmt.Errorf("%w: DataType record too short", ErrProtocol)
	}

	entryLength := binary.LittleEndian.Uint32(buf[0:4])
	if int(entryLength) > len(buf) {
		return nil, 0, fmt.Errorf("%w: DataType entryLength %d exceeds buffer", ErrProtocol, entryLength)
	}
	record := buf[:entryLength]

	dt := &DataType{
		Version:       binary.LittleEndian.Uint32(record[4:8]),
		HashValue:     binary.LittleEndian.Uint32(record[8:12]),
		TypeHashValue: binary.LittleEndian.Uint32(record[12:16]),
		Size:          binary.LittleEndian.Uint32(record[16:20]),
		Offset:        binary.LittleEndian.Uint32(record[20:24]),
		AdsDataType:   binary.LittleEndian.Uint32(record[24:28]),
		Flags:         binary.LittleEndian.Uint32(record[28:32]),
	}
	arrayDim := binary.LittleEndian.Uint16(record[32:34])
	nameLen := binary.LittleEndian.Uint16(record[34:36])
	typeLen := binary.LittleEndian.Uint16(record[36:38])
	commentLen := binary.LittleEndian.Uint16(record[38:40])
	subItemCount := binary.LittleEndian.Uint16(record[40:42])
	enumCount := binary.LittleEndian.Uint16(record[42:44])

	off := fixedHeaderSize
	readString := func(n uint16) (string, error) {
		end := off + int(n)
		if end+1 > len(record) {
			return "", fmt.Errorf("%w: DataType string field truncated", ErrProtocol)
		}
		s := string(record[off:end])
		off = end + 1
		return s, nil
	}

	var err error
	if dt.Name, err = readString(nameLen); err != nil {
		return nil, 0, err
	}
	if dt.TypeName, err = readString(typeLen); err != nil {
		return nil, 0, err
	}
	if dt.Comment, err = readString(commentLen); err != nil {
		return nil, 0, err
	}

	for i := 0; i < int(arrayDim); i++ {
		if off+8 > len(record) {
			return nil, 0, fmt.Errorf("%w: DataType arrayInfo truncated", ErrProtocol)
		}
		dt.ArrayInfo = append(dt.ArrayInfo, ArrayBound{
			LowerBound: int32(binary.LittleEndian.Uint32(record[off : off+4])),
			Length:     binary.LittleEndian.Uint32(record[off+4 : off+8]),
		})
		off += 8
	}

	for i := 0; i < int(enumCount); i++ {
		if off+8 > len(record) {
			break
		}
		nameLen := binary.LittleEndian.Uint16(record[off : off+2])
		off += 2
		valueLen := binary.LittleEndian.Uint16(record[off : off+2])
		off += 2
		if off+int(nameLen)+int(valueLen) > len(record) {
			break
		}
		name := string(record[off : off+int(nameLen)])
		off += int(nameLen)
		val := parseEnumValue(record[off : off+int(valueLen)])
		off += int(valueLen)
		dt.EnumInfos = append(dt.EnumInfos, EnumMember{Name: name, Value: val})
	}

	if dt.Flags&symFlagExtendedBlock != 0 && off+16 <= len(record) {
		copy(dt.TypeGUID[:], record[off:off+16])
		off += 16
	}

	if off < len(record) && subItemCount == 0 {
		dt.Reserved = append([]byte(nil), record[off:]...)
	}

	return dt, int(entryLength), nil
}

func parseEnumValue(b []byte) int64 {
	switch len(b) {
	case 1:
		return int64(int8(b[0]))
	case 2:
		return int64(int16(binary.LittleEndian.Uint16(b)))
	case 4:
		return int64(int32(binary.LittleEndian.Uint32(b)))
	case 8:
		return int64(binary.LittleEndian.Uint64(b))
	default:
		return 0
	}
}

// parseDataTypeTree decodes a top-level DataType followed immediately by
// its subItems, parsing (recursively) as many subItem records as the
// header's subItem count declares, and registers the parsed type in arena under its
// TypeName so other types can resolve it by name (e.g. alias targets). It
// returns the arena index of the top-level type.
func parseDataTypeTree(buf []byte, arena *DataTypeArena) (int, int, error) {
	idx, total, err := parseDataTypeTreeInto(buf, arena, false)
	return idx, total, err
}

// parseDataTypeTreeInto is parseDataTypeTree's recursive worker. member
// distinguishes a struct/array member (appended to the arena positionally
// via AddMember, since sibling members can share a TypeName) from the
// top-level type (registered by name via Add).
func parseDataTypeTreeInto(buf []byte, arena *DataTypeArena, member bool) (int, int, error) {
	dt, consumed, err := parseDataType(buf)
	if err != nil {
		return 0, 0, err
	}

	remaining := buf[consumed:]
	subCount := subItemCountOf(buf[:consumed])
	total := consumed
	for i := 0; i < subCount; i++ {
		childIdx, childConsumed, err := parseDataTypeTreeInto(remaining, arena, true)
		if err != nil {
			return 0, 0, fmt.Errorf("subitem %d of %s: %w", i, dt.Name, err)
		}
		dt.SubItems = append(dt.SubItems, childIdx)
		remaining = remaining[childConsumed:]
		total += childConsumed
	}

	var idx int
	if member {
		idx = arena.AddMember(dt)
	} else {
		idx = arena.Add(dt)
	}
	return idx, total, nil
}

func subItemCountOf(record []byte) int {
	if len(record) < 42 {
		return 0
	}
	return int(binary.LittleEndian.Uint16(record[40:42]))
}
