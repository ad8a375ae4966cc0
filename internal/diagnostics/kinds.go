package diagnostics

// Kind is a closed taxonomy of structured message kinds. Every Diagnostic
// carries exactly one Kind and the payload type that kind documents below.
type Kind int

const (
	KindFileNotFound Kind = iota
	KindIncludeFailed
	KindRecursiveInclude
	KindMacroDefinedTwice
	KindMacroUndefinedIgnored
	KindArgCountMismatch
	KindMissingEndif
	KindUnexpectedEndif
	KindElseWithoutIf
	KindDuplicateElse
	KindUnassignedVariable
	KindMagicVariableTypeMismatch
	KindScopeNameAlreadySet
	KindScriptNameAlreadySet
	KindSuspensionInUnscheduledEnvironment
	KindMaximumInstructionCountReached
	KindScriptHandleAlreadyFinished
	KindScriptHandleAlreadyTerminated
	KindNumberOutOfRange
	KindArrayRecursion
	KindTypeMismatch
	KindUnhandledException
	KindExpectedArraySizeMissmatchWeak
)

var kindNames = map[Kind]string{
	KindFileNotFound:                       "FileNotFound",
	KindIncludeFailed:                      "IncludeFailed",
	KindRecursiveInclude:                   "RecursiveInclude",
	KindMacroDefinedTwice:                  "MacroDefinedTwice",
	KindMacroUndefinedIgnored:              "MacroUndefinedIgnored",
	KindArgCountMismatch:                   "ArgCountMismatch",
	KindMissingEndif:                       "MissingEndif",
	KindUnexpectedEndif:                    "UnexpectedEndif",
	KindElseWithoutIf:                      "ElseWithoutIf",
	KindDuplicateElse:                      "DuplicateElse",
	KindUnassignedVariable:                 "UnassignedVariable",
	KindMagicVariableTypeMismatch:          "MagicVariableTypeMismatch",
	KindScopeNameAlreadySet:                "ScopeNameAlreadySet",
	KindScriptNameAlreadySet:               "ScriptNameAlreadySet",
	KindSuspensionInUnscheduledEnvironment: "SuspensionInUnscheduledEnvironment",
	KindMaximumInstructionCountReached:     "MaximumInstructionCountReached",
	KindScriptHandleAlreadyFinished:        "ScriptHandleAlreadyFinished",
	KindScriptHandleAlreadyTerminated:      "ScriptHandleAlreadyTerminated",
	KindNumberOutOfRange:                   "NumberOutOfRange",
	KindArrayRecursion:                     "ArrayRecursion",
	KindTypeMismatch:                       "TypeMismatch",
	KindUnhandledException:                 "UnhandledException",
	KindExpectedArraySizeMissmatchWeak:      "ExpectedArraySizeMissmatchWeak",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "Unknown"
}
