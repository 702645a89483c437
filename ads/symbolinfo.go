package ads

import (
	"encoding/binary"
	"fmt"
)

// SymbolFlags are bit flags carried in a SymbolInfo's Flags field.
const (
	SymFlagPersistent uint32 = 0x0001 // Persistent variable
	SymFlagBitValue   uint32 = 0x0002 // Bit value (part of larger type)
	SymFlagReserved   uint32 = 0x0004 // Reserved
	SymFlagReference  uint32 = 0x0008 // Reference to another variable
	SymFlagReadOnly   uint32 = 0x0010 // Read-only (CONSTANT)
	SymFlagStaticVar  uint32 = 0x0020 // Static variable
	SymFlagInput      uint32 = 0x0040 // Input variable
	SymFlagOutput     uint32 = 0x0080 // Output variable
	SymFlagInOut      uint32 = 0x0100 // InOut variable

	// symFlagExtendedBlock marks that an extended block (type GUID and
	// attribute list) follows the three NUL-terminated strings.
	symFlagExtendedBlock uint32 = 0x0200
)

// ArrayBound describes one dimension of an array: its lower bound (which
// may be negative, e.g. ARRAY[-5..10] OF INT) and element count.
type ArrayBound struct {
	LowerBound int32
	Length     uint32
}

// Attribute is a freeform name/value pair TwinCAT attaches to a symbol or
// data type (pragmas like {attribute 'pack_mode'}).
type Attribute struct {
	Name  string
	Value string
}

// SymbolInfo holds everything the ADS SymbolInfoByNameEx / symbol upload
// commands report about one PLC variable.
type SymbolInfo struct {
	Name        string // full symbol name, e.g. "MAIN.Temperature"
	TypeName    string // PLC type name, e.g. "REAL" or "ST_Recipe"
	Comment     string
	IndexGroup  uint32
	IndexOffset uint32
	Size        uint32
	AdsDataType uint32
	Flags       uint32
	ArrayInfo   []ArrayBound
	Attributes  []Attribute
	TypeGUID    [16]byte
	ExtendedFlags uint32
	// Reserved carries any bytes past what this parser interprets,
	// preserved verbatim. This package has no SymbolInfo encoder, so they
	// are kept for inspection only and never re-emitted.
	Reserved []byte
}

// IsReadable reports whether the symbol can be read. ADS symbol flags don't
// carry a dedicated "unreadable" bit, so it does not inspect the flags and
// always returns true.
func (s *SymbolInfo) IsReadable() bool {
	return true
}

// IsWritable reports whether the symbol accepts writes.
func (s *SymbolInfo) IsWritable() bool {
	return s.Flags&SymFlagReadOnly == 0
}

// IsArray reports whether the symbol has one or more array dimensions.
func (s *SymbolInfo) IsArray() bool {
	return len(s.ArrayInfo) > 0
}

func (s *SymbolInfo) String() string {
	if s == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s (%s, %d bytes)", s.Name, s.TypeName, s.Size)
}

// parseSymbolInfo decodes one SymbolInfo record per the ADS wire layout:
//
//	entryLength u32, indexGroup u32, indexOffset u32, size u32,
//	adsDataType u32, flags u32, arrayDim u16, nameLength u16,
//	typeLength u16, commentLength u16, then NUL-terminated name/type/comment,
//	then arrayDim * (lowerBound i32, length u32), then an optional extended
//	block (typeGuid, attribute list, reserved tail) guarded by flags.
func parseSymbolInfo(buf []byte) (*SymbolInfo, int, error) {
	const fixedHeaderSize = 4 + 4 + 4 + 4 + 4 + 4 + 2 + 2 + 2 + 2
	if len(buf) < fixedHeaderSize {
		return nil, 0, fmt.Errorf("%w: SymbolInfo record too short", ErrProtocol)
	}

	entryLength := binary.LittleEndian.Uint32(buf[0:4])
	if int(entryLength) > len(buf) {
		return nil, 0, fmt.Errorf("%w: SymbolInfo entryLength %d exceeds buffer", ErrProtocol, entryLength)
	}
	record := buf[:entryLength]

	info := &SymbolInfo{
		IndexGroup:  binary.LittleEndian.Uint32(record[4:8]),
		IndexOffset: binary.LittleEndian.Uint32(record[8:12]),
		Size:        binary.LittleEndian.Uint32(record[12:16]),
		AdsDataType: binary.LittleEndian.Uint32(record[16:20]),
		Flags:       binary.LittleEndian.Uint32(record[20:24]),
	}
	arrayDim := binary.LittleEndian.Uint16(record[24:26])
	nameLen := binary.LittleEndian.Uint16(record[26:28])
	typeLen := binary.LittleEndian.Uint16(record[28:30])
	commentLen := binary.LittleEndian.Uint16(record[30:32])

	off := fixedHeaderSize
	readString := func(n uint16) (string, error) {
		// Each string field is stored as n bytes of content plus a NUL
		// terminator.
		end := off + int(n)
		if end+1 > len(record) {
			return "", fmt.Errorf("%w: SymbolInfo string field truncated", ErrProtocol)
		}
		s := string(record[off:end])
		off = end + 1
		return s, nil
	}

	var err error
	if info.Name, err = readString(nameLen); err != nil {
		return nil, 0, err
	}
	if info.TypeName, err = readString(typeLen); err != nil {
		return nil, 0, err
	}
	if info.Comment, err = readString(commentLen); err != nil {
		return nil, 0, err
	}

	for i := 0; i < int(arrayDim); i++ {
		if off+8 > len(record) {
			return nil, 0, fmt.Errorf("%w: SymbolInfo arrayInfo truncated", ErrProtocol)
		}
		info.ArrayInfo = append(info.ArrayInfo, ArrayBound{
			LowerBound: int32(binary.LittleEndian.Uint32(record[off : off+4])),
			Length:     binary.LittleEndian.Uint32(record[off+4 : off+8]),
		})
		off += 8
	}

	if info.Flags&symFlagExtendedBlock != 0 && off+16 <= len(record) {
		copy(info.TypeGUID[:], record[off:off+16])
		off += 16
		if off+4 <= len(record) {
			attrCount := binary.LittleEndian.Uint32(record[off : off+4])
			off += 4
			for i := uint32(0); i < attrCount && off < len(record); i++ {
				if off+2 > len(record) {
					break
				}
				nameLen := int(record[off])
				valLen := int(record[off+1])
				off += 2
				if off+nameLen+valLen > len(record) {
					break
				}
				info.Attributes = append(info.Attributes, Attribute{
					Name:  string(record[off : off+nameLen]),
					Value: string(record[off+nameLen : off+nameLen+valLen]),
				})
				off += nameLen + valLen
			}
		}
	}

	if off < len(record) {
		info.Reserved = append([]byte(nil), record[off:]...)
	}

	return info, int(entryLength), nil
}
