package parsetree

// Node kinds produced by the flow parser.
const (
	KindProgram   = "program"
	KindImport    = "import"
	KindFunction  = "function"
	KindOverload  = "overload"
	KindScope     = "scope"
	KindStatement = "statement"
	KindUsing     = "using"

	KindAssignment = "assignment"
	KindTargets    = "targets"
	KindDeclare    = "declare"
	KindIgnore     = "ignore"
	KindAccessLHS  = "access_lhs"

	KindForEach         = "for_each"
	KindIterate         = "iterate"
	KindDoWhile         = "do_while"
	KindLoopSettings    = "loop_settings"
	KindMaxIterations   = "max_iterations"
	KindCurrentIndex    = "current_index"
	KindNoLimit         = "no_limit"
	KindLoopParameter   = "loop_parameter"
	KindLoopResult      = "loop_result"
	KindIterationTarget = "iteration_target"
	KindState           = "state"
	KindCondition       = "condition"

	KindParameters = "parameters"
	KindParameter  = "parameter"
	KindResults    = "results"
	KindResult     = "result"
	KindDefault    = "default"
	KindFeedback   = "feedback"
	KindBody       = "body"
	KindTerminal   = "terminal"

	KindOverloadInput  = "overload_input"
	KindOverloadResult = "overload_result"

	KindBinary   = "binary"
	KindCompare  = "compare"
	KindOperator = "operator"
	KindLogic    = "logic"
	KindUnary    = "unary"

	KindCall     = "call"
	KindArgument = "argument"

	KindNumber     = "number"
	KindString     = "string"
	KindBool       = "bool"
	KindVariable   = "variable"
	KindArray      = "array"
	KindVector     = "vector"
	KindMatrix     = "matrix"
	KindColumn     = "column"
	KindObject     = "object"
	KindEntry      = "entry"
	KindEmptyArray = "empty_array"
	KindEnum       = "enum"

	KindAccess     = "access"
	KindMember     = "member"
	KindIndex      = "index"
	KindSlice      = "slice"
	KindStart      = "start"
	KindStop       = "stop"
	KindStep       = "step"
	KindKeyDefault = "key_default"
	KindPortAccess = "port_access"

	KindType = "type"
	KindName = "name"
)
