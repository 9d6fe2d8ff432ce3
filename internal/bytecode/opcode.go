// Package bytecode defines the instruction set and binary file layout of
// spec §4.5 and §6.
package bytecode

import "fmt"

type Op byte

const (
	OpPushTrue Op = iota
	OpPushFalse
	OpPushInteger
	OpPushFloat
	OpPushString
	OpPushSimpleTag
	OpPushTag
	OpPushList
	OpPushComponent

	OpIntegerAdd
	OpIntegerSub
	OpIntegerMul
	OpIntegerDiv
	OpIntegerMod
	OpIntegerLessThan
	OpIntegerLessThanEquals

	OpFloatAdd
	OpFloatSub
	OpFloatMul
	OpFloatDiv
	OpFloatMod
	OpFloatLessThan
	OpFloatLessThanEquals

	OpStringConcat
	OpBooleanAnd
	OpBooleanOr
	OpEquals
	OpNegation
	OpNot

	OpGetLocalValue
	OpSetLocalValue
	OpGetForeignValue
	OpGetContextValue
	OpSetContextValue
	OpGetFieldValue
	OpSetFieldValue

	OpGetListElementAtIndex
	OpGetArrayLength
	OpArrayAppend
	OpLog

	OpGetTagName
	OpGetTagPayload

	OpJump
	OpJumpIfTrue
	OpJumpIfFalse
	OpReturn

	OpFunctionSignature
	OpFunctionChunk
	OpFunction
	OpCall
	OpCallForeign

	OpContextQuery
	OpSetNextComponentColumnOrJump
	OpCreate
	OpDestroy
)

var opNames = [...]string{
	OpPushTrue:                     "PushTrue",
	OpPushFalse:                    "PushFalse",
	OpPushInteger:                  "PushInteger",
	OpPushFloat:                    "PushFloat",
	OpPushString:                   "PushString",
	OpPushSimpleTag:                "PushSimpleTag",
	OpPushTag:                      "PushTag",
	OpPushList:                     "PushList",
	OpPushComponent:                "PushComponent",
	OpIntegerAdd:                   "IntegerAddition",
	OpIntegerSub:                   "IntegerSubtraction",
	OpIntegerMul:                   "IntegerMultiplication",
	OpIntegerDiv:                   "IntegerDivision",
	OpIntegerMod:                   "IntegerModulo",
	OpIntegerLessThan:              "IntegerLessThan",
	OpIntegerLessThanEquals:        "IntegerLessThanEquals",
	OpFloatAdd:                     "FloatAddition",
	OpFloatSub:                     "FloatSubtraction",
	OpFloatMul:                     "FloatMultiplication",
	OpFloatDiv:                     "FloatDivision",
	OpFloatMod:                     "FloatModulo",
	OpFloatLessThan:                "FloatLessThan",
	OpFloatLessThanEquals:          "FloatLessThanEquals",
	OpStringConcat:                 "StringConcat",
	OpBooleanAnd:                   "BooleanAnd",
	OpBooleanOr:                    "BooleanOr",
	OpEquals:                       "Equals",
	OpNegation:                     "Negation",
	OpNot:                          "Not",
	OpGetLocalValue:                "GetLocalValue",
	OpSetLocalValue:                "SetLocalValue",
	OpGetForeignValue:              "GetForeignValue",
	OpGetContextValue:              "GetContextValue",
	OpSetContextValue:              "SetContextValue",
	OpGetFieldValue:                "GetFieldValue",
	OpSetFieldValue:                "SetFieldValue",
	OpGetListElementAtIndex:        "GetListElementAtIndex",
	OpGetArrayLength:               "GetArrayLength",
	OpArrayAppend:                  "ArrayAppend",
	OpLog:                          "Log",
	OpGetTagName:                   "GetTagName",
	OpGetTagPayload:                "GetTagPayload",
	OpJump:                         "Jump",
	OpJumpIfTrue:                   "JumpIfTrue",
	OpJumpIfFalse:                  "JumpIfFalse",
	OpReturn:                       "Return",
	OpFunctionSignature:            "FunctionSignature",
	OpFunctionChunk:                "FunctionChunk",
	OpFunction:                     "Function",
	OpCall:                         "Call",
	OpCallForeign:                  "CallForeign",
	OpContextQuery:                 "ContextQuery",
	OpSetNextComponentColumnOrJump: "SetNextComponentColumnOrJump",
	OpCreate:                       "Create",
	OpDestroy:                      "Destroy",
}

func (o Op) String() string {
	if int(o) >= 0 && int(o) < len(opNames) && opNames[o] != "" {
		return opNames[o]
	}
	return fmt.Sprintf("Op(%d)", byte(o))
}

// Field type ids for component layouts (spec §3 "Component layout").
const (
	FieldBool   byte = 0
	FieldI32    byte = 1
	FieldF32    byte = 2
	FieldString byte = 3 // 1-byte length + up to 32 bytes, padded to 33
)

// StringFieldSize is the fixed on-disk width of a string-typed field.
const StringFieldSize = 33

func FieldSize(typeID byte) uint16 {
	switch typeID {
	case FieldBool:
		return 1
	case FieldI32, FieldF32:
		return 4
	case FieldString:
		return StringFieldSize
	}
	return 0
}
