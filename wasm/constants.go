package wasm

// WebAssembly binary format magic number and version.
const (
	// Magic is the WebAssembly binary magic number ("\0asm" in little-endian).
	Magic uint32 = 0x6D736100

	// Version is the supported WebAssembly binary format version.
	Version uint32 = 0x01
)

// Section IDs define the binary identifiers for each module section.
// Sections must appear in canonical order (except custom sections).
const (
	SectionCustom    byte = 0  // Custom section (can appear anywhere)
	SectionType      byte = 1  // Type section (function signatures)
	SectionImport    byte = 2  // Import section
	SectionFunction  byte = 3  // Function section (type indices)
	SectionTable     byte = 4  // Table section
	SectionMemory    byte = 5  // Memory section
	SectionGlobal    byte = 6  // Global section
	SectionExport    byte = 7  // Export section
	SectionStart     byte = 8  // Start section
	SectionElement   byte = 9  // Element section
	SectionCode      byte = 10 // Code section (function bodies)
	SectionData      byte = 11 // Data section
	SectionDataCount byte = 12 // Data count section (bulk memory)
	SectionTag       byte = 13 // Tag section (exception handling, rejected)
)

// Import/Export descriptor kinds identify the type of imported or exported item.
const (
	KindFunc   byte = 0
	KindTable  byte = 1
	KindMemory byte = 2
	KindGlobal byte = 3
)

// Value type encodings as defined in the WebAssembly binary format.
const (
	ValI32     ValType = 0x7F
	ValI64     ValType = 0x7E
	ValF32     ValType = 0x7D
	ValF64     ValType = 0x7C
	ValV128    ValType = 0x7B
	ValFuncRef ValType = 0x70
	ValExtern  ValType = 0x6F
)

// BlockTypeVoid is the empty block type used by if/block/loop.
const BlockTypeVoid byte = 0x40

// Opcodes emitted by the guest builder or accepted inside init expressions.
const (
	OpUnreachable   byte = 0x00
	OpNop           byte = 0x01
	OpIf            byte = 0x04
	OpEnd           byte = 0x0B
	OpReturn        byte = 0x0F
	OpCall          byte = 0x10
	OpDrop          byte = 0x1A
	OpLocalGet      byte = 0x20
	OpLocalSet      byte = 0x21
	OpLocalTee      byte = 0x22
	OpGlobalGet     byte = 0x23
	OpGlobalSet     byte = 0x24
	OpMemorySize    byte = 0x3F
	OpMemoryGrow    byte = 0x40
	OpI32Const      byte = 0x41
	OpI64Const      byte = 0x42
	OpF32Const      byte = 0x43
	OpF64Const      byte = 0x44
	OpI32Eq         byte = 0x46
	OpI32Add        byte = 0x6A
	OpI32Shl        byte = 0x74
	OpI32ShrU       byte = 0x76
	OpI64ExtendI32U byte = 0xAD
	OpRefNull       byte = 0xD0
	OpRefFunc       byte = 0xD2
)

// OpPrefixMisc introduces bulk memory and saturating truncation instructions.
// It is followed by a LEB128-encoded sub-opcode.
const OpPrefixMisc byte = 0xFC

// Misc opcodes (0xFC prefix)
const (
	MiscMemoryCopy uint32 = 0x0A
	MiscMemoryFill uint32 = 0x0B
)

// Limits flags
const (
	LimitsNoMax    byte = 0x00
	LimitsHasMax   byte = 0x01
	LimitsShared   byte = 0x02
	LimitsMemory64 byte = 0x04
)

// MemoryMaxPages32 is the page ceiling for 32-bit memories (4GiB).
const MemoryMaxPages32 uint64 = 65536

// PageSize is the size of one linear memory page in bytes.
const PageSize uint32 = 65536

// FuncTypeByte prefixes every function type in the type section.
const FuncTypeByte byte = 0x60
