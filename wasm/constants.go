package wasm

// WebAssembly binary format constants
const (
	Magic   uint32 = 0x6d736100 // "\0asm"
	Version uint32 = 0x01

	PageSize = 65536
)

// Section IDs
const (
	SectionCustom    byte = 0
	SectionType      byte = 1
	SectionImport    byte = 2
	SectionFunction  byte = 3
	SectionTable     byte = 4
	SectionMemory    byte = 5
	SectionGlobal    byte = 6
	SectionExport    byte = 7
	SectionStart     byte = 8
	SectionElement   byte = 9
	SectionCode      byte = 10
	SectionData      byte = 11
	SectionDataCount byte = 12
	SectionTag       byte = 13
)

// External kinds for imports and exports
const (
	KindFunc   byte = 0x00
	KindTable  byte = 0x01
	KindMemory byte = 0x02
	KindGlobal byte = 0x03
	KindTag    byte = 0x04
)

// Value types
const (
	ValI32       ValType = 0x7F
	ValI64       ValType = 0x7E
	ValF32       ValType = 0x7D
	ValF64       ValType = 0x7C
	ValV128      ValType = 0x7B
	ValFuncRef   ValType = 0x70
	ValExternRef ValType = 0x6F
)

// FuncTypeByte introduces a function type in the type section.
const FuncTypeByte byte = 0x60

// Limits flags
const (
	LimitsNoMax  byte = 0x00
	LimitsHasMax byte = 0x01
)

// Data segment modes
const (
	DataActive         uint32 = 0x00
	DataPassive        uint32 = 0x01
	DataActiveExplicit uint32 = 0x02
)

// Opcodes used by generated code and constant expressions
const (
	OpUnreachable byte = 0x00
	OpNop         byte = 0x01
	OpEnd         byte = 0x0B
	OpReturn      byte = 0x0F
	OpCall        byte = 0x10
	OpDrop        byte = 0x1A
	OpLocalGet    byte = 0x20
	OpGlobalGet   byte = 0x23
	OpI32Const    byte = 0x41
	OpI64Const    byte = 0x42
	OpF32Const    byte = 0x43
	OpF64Const    byte = 0x44
)

// sectionOrder gives the required position of each known non-custom section.
var sectionOrder = map[byte]int{
	SectionType:      1,
	SectionImport:    2,
	SectionFunction:  3,
	SectionTable:     4,
	SectionMemory:    5,
	SectionTag:       6,
	SectionGlobal:    7,
	SectionExport:    8,
	SectionStart:     9,
	SectionElement:   10,
	SectionDataCount: 11,
	SectionCode:      12,
	SectionData:      13,
}
