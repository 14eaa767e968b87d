package message

// Kind names a message variant.
type Kind string

const (
	KindAssemblyStarting       Kind = "assembly-starting"
	KindAssemblyFinished       Kind = "assembly-finished"
	KindAssemblyCleanupFailure Kind = "assembly-cleanup-failure"

	KindCollectionStarting       Kind = "collection-starting"
	KindCollectionFinished       Kind = "collection-finished"
	KindCollectionCleanupFailure Kind = "collection-cleanup-failure"

	KindClassStarting       Kind = "class-starting"
	KindClassFinished       Kind = "class-finished"
	KindClassCleanupFailure Kind = "class-cleanup-failure"

	KindMethodStarting       Kind = "method-starting"
	KindMethodFinished       Kind = "method-finished"
	KindMethodCleanupFailure Kind = "method-cleanup-failure"

	KindCaseStarting       Kind = "case-starting"
	KindCaseFinished       Kind = "case-finished"
	KindCaseCleanupFailure Kind = "case-cleanup-failure"

	KindTestStarting       Kind = "test-starting"
	KindTestFinished       Kind = "test-finished"
	KindTestCleanupFailure Kind = "test-cleanup-failure"
	KindTestPassed         Kind = "test-passed"
	KindTestFailed         Kind = "test-failed"
	KindTestSkipped        Kind = "test-skipped"
	KindTestNotRun         Kind = "test-not-run"
	KindTestOutput         Kind = "test-output"

	KindError              Kind = "error"
	KindDiagnostic         Kind = "diagnostic"
	KindInternalDiagnostic Kind = "internal-diagnostic"
)

var kindLevels = map[Kind]Level{
	KindAssemblyStarting:         LevelAssembly,
	KindAssemblyFinished:         LevelAssembly,
	KindAssemblyCleanupFailure:   LevelAssembly,
	KindCollectionStarting:       LevelCollection,
	KindCollectionFinished:       LevelCollection,
	KindCollectionCleanupFailure: LevelCollection,
	KindClassStarting:            LevelClass,
	KindClassFinished:            LevelClass,
	KindClassCleanupFailure:      LevelClass,
	KindMethodStarting:           LevelMethod,
	KindMethodFinished:           LevelMethod,
	KindMethodCleanupFailure:     LevelMethod,
	KindCaseStarting:             LevelCase,
	KindCaseFinished:             LevelCase,
	KindCaseCleanupFailure:       LevelCase,
	KindTestStarting:             LevelTest,
	KindTestFinished:             LevelTest,
	KindTestCleanupFailure:       LevelTest,
	KindTestPassed:               LevelTest,
	KindTestFailed:               LevelTest,
	KindTestSkipped:              LevelTest,
	KindTestNotRun:               LevelTest,
	KindTestOutput:               LevelTest,
}

// Level returns the scope level the kind describes, or LevelNone for
// global messages.
func (k Kind) Level() Level {
	return kindLevels[k]
}
