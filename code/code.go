// ==============================================================================================
// FILE: code/code.go
// ==============================================================================================
// PACKAGE: code
// PURPOSE: Bytecode instruction format shared by the compiler and the vm: an Opcode enum with
//          a name table for disassembly, big-endian operand encoding, and a line table mapping
//          instruction offsets back to source positions for tracebacks.
// ==============================================================================================

package code

import (
	"encoding/binary"
	"fmt"

	"wings/token"
)

type Instructions []byte

type Opcode byte

const (
	OpConstant Opcode = iota
	OpNone
	OpTrue
	OpFalse
	OpPop

	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpPow
	OpBitAnd
	OpBitOr
	OpBitXor
	OpShl
	OpShr

	OpEqual
	OpNotEqual
	OpGreaterThan
	OpGreaterEqual
	OpContains
	OpIs

	OpNeg
	OpNot
	OpBitNot

	OpLoadLocal
	OpStoreLocal
	OpLoadGlobal
	OpStoreGlobal
	OpLoadCell
	OpStoreCell
	OpLoadFree
	OpDefineLocal

	OpBuildTuple
	OpBuildList
	OpBuildDict
	OpBuildSet

	OpGetIndex
	OpSetIndex
	OpGetSlice
	OpGetAttr
	OpSetAttr

	OpJump
	OpJumpIfFalse
	OpJumpIfTrue

	OpCall
	OpCallKw
	OpReturnValue
	OpReturnNone

	OpMakeFunction
	OpMakeClass

	OpGetIter
	OpForIter

	OpSetupTry
	OpPopTry
	OpRaise
	OpPushExcInfo
	OpPopExcInfo
	OpExceptionMatches

	OpImport
	OpImportFrom

	OpDup
	OpBuildStringFmt
	OpCompAppend // operand: 0=list append, 1=set add, 2=dict set; used by comprehension codegen
)

var OpcodeNames = map[Opcode]string{
	OpConstant:       "OpConstant",
	OpNone:           "OpNone",
	OpTrue:           "OpTrue",
	OpFalse:          "OpFalse",
	OpPop:            "OpPop",
	OpAdd:            "OpAdd",
	OpSub:            "OpSub",
	OpMul:            "OpMul",
	OpDiv:            "OpDiv",
	OpMod:            "OpMod",
	OpPow:            "OpPow",
	OpBitAnd:         "OpBitAnd",
	OpBitOr:          "OpBitOr",
	OpBitXor:         "OpBitXor",
	OpShl:            "OpShl",
	OpShr:            "OpShr",
	OpEqual:          "OpEqual",
	OpNotEqual:       "OpNotEqual",
	OpGreaterThan:    "OpGreaterThan",
	OpGreaterEqual:   "OpGreaterEqual",
	OpContains:       "OpContains",
	OpIs:             "OpIs",
	OpNeg:            "OpNeg",
	OpNot:            "OpNot",
	OpBitNot:         "OpBitNot",
	OpLoadLocal:      "OpLoadLocal",
	OpStoreLocal:     "OpStoreLocal",
	OpLoadGlobal:     "OpLoadGlobal",
	OpStoreGlobal:    "OpStoreGlobal",
	OpLoadCell:       "OpLoadCell",
	OpStoreCell:      "OpStoreCell",
	OpLoadFree:       "OpLoadFree",
	OpDefineLocal:    "OpDefineLocal",
	OpBuildTuple:     "OpBuildTuple",
	OpBuildList:      "OpBuildList",
	OpBuildDict:      "OpBuildDict",
	OpBuildSet:       "OpBuildSet",
	OpGetIndex:       "OpGetIndex",
	OpSetIndex:       "OpSetIndex",
	OpGetSlice:       "OpGetSlice",
	OpGetAttr:        "OpGetAttr",
	OpSetAttr:        "OpSetAttr",
	OpJump:           "OpJump",
	OpJumpIfFalse:    "OpJumpIfFalse",
	OpJumpIfTrue:     "OpJumpIfTrue",
	OpCall:           "OpCall",
	OpCallKw:         "OpCallKw",
	OpReturnValue:    "OpReturnValue",
	OpReturnNone:     "OpReturnNone",
	OpMakeFunction:   "OpMakeFunction",
	OpMakeClass:      "OpMakeClass",
	OpGetIter:        "OpGetIter",
	OpForIter:        "OpForIter",
	OpSetupTry:       "OpSetupTry",
	OpPopTry:         "OpPopTry",
	OpRaise:          "OpRaise",
	OpPushExcInfo:    "OpPushExcInfo",
	OpPopExcInfo:     "OpPopExcInfo",
	OpExceptionMatches: "OpExceptionMatches",
	OpImport:         "OpImport",
	OpImportFrom:     "OpImportFrom",
	OpDup:            "OpDup",
	OpBuildStringFmt: "OpBuildStringFmt",
	OpCompAppend:     "OpCompAppend",
}

func (op Opcode) String() string {
	if name, ok := OpcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("OpUnknown(%d)", byte(op))
}

// OperandWidths gives the number of 2-byte operands each opcode carries.
// Every operand is encoded as a big-endian uint16; instructions needing a
// wider range (none currently do) would need a dedicated encoding.
var OperandWidths = map[Opcode]int{
	OpConstant:     1,
	OpLoadLocal:    1,
	OpStoreLocal:   1,
	OpLoadGlobal:   1,
	OpStoreGlobal:  1,
	OpLoadCell:     1,
	OpStoreCell:    1,
	OpLoadFree:     1,
	OpDefineLocal:  1,
	OpBuildTuple:   1,
	OpBuildList:    1,
	OpBuildDict:    1,
	OpBuildSet:     1,
	OpJump:         1,
	OpJumpIfFalse:  1,
	OpJumpIfTrue:   1,
	OpCall:         1,
	OpCallKw:       2,
	OpMakeFunction: 1,
	OpMakeClass:    2, // constant index, number of base classes on the stack
	OpSetupTry:     1,
	OpForIter:      1,
	OpGetAttr:      1,
	OpSetAttr:      1,
	OpImport:       1,
	OpImportFrom:   2, // module name constant, imported-name constant
	OpBuildStringFmt: 1,
	OpCompAppend:   1,
}

// Make encodes a single instruction: opcode byte followed by its operands.
func Make(op Opcode, operands ...int) []byte {
	width := OperandWidths[op]
	instr := make([]byte, 1+2*width)
	instr[0] = byte(op)
	offset := 1
	for i := 0; i < width; i++ {
		var v int
		if i < len(operands) {
			v = operands[i]
		}
		binary.BigEndian.PutUint16(instr[offset:], uint16(v))
		offset += 2
	}
	return instr
}

// ReadOperands decodes the operands of the instruction at ins[0:], returning
// the decoded values and the number of bytes consumed (excluding the opcode
// byte itself).
func ReadOperands(op Opcode, ins Instructions) ([]int, int) {
	width := OperandWidths[op]
	operands := make([]int, width)
	offset := 0
	for i := 0; i < width; i++ {
		operands[i] = int(binary.BigEndian.Uint16(ins[offset:]))
		offset += 2
	}
	return operands, offset
}

// LineTable records which source line each instruction offset belongs to, in
// ascending-offset order; PositionFor scans it to map an offset back to its
// source position during a traceback.
type LineTable struct {
	Offsets []int
	Lines   []token.Position
}

func (lt *LineTable) Add(offset int, pos token.Position) {
	lt.Offsets = append(lt.Offsets, offset)
	lt.Lines = append(lt.Lines, pos)
}

// PositionFor returns the source position responsible for the instruction at
// the given offset.
func (lt *LineTable) PositionFor(offset int) token.Position {
	pos := token.Position{}
	for i, o := range lt.Offsets {
		if o > offset {
			break
		}
		pos = lt.Lines[i]
	}
	return pos
}

// Disassemble renders instructions in a human-readable form for debug dumps.
func Disassemble(ins Instructions) string {
	out := ""
	i := 0
	for i < len(ins) {
		op := Opcode(ins[i])
		operands, read := ReadOperands(op, ins[i+1:])
		out += fmt.Sprintf("%04d %s %v\n", i, op, operands)
		i += 1 + read
	}
	return out
}
