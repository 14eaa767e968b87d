package message

import (
	"encoding/json"
	"fmt"
)

type envelope struct {
	Kind    Kind            `json:"kind"`
	Message json.RawMessage `json:"message"`
}

var factories = map[Kind]func() Message{
	KindAssemblyStarting:         func() Message { return &AssemblyStarting{} },
	KindAssemblyFinished:         func() Message { return &AssemblyFinished{} },
	KindAssemblyCleanupFailure:   func() Message { return &AssemblyCleanupFailure{} },
	KindCollectionStarting:       func() Message { return &CollectionStarting{} },
	KindCollectionFinished:       func() Message { return &CollectionFinished{} },
	KindCollectionCleanupFailure: func() Message { return &CollectionCleanupFailure{} },
	KindClassStarting:            func() Message { return &ClassStarting{} },
	KindClassFinished:            func() Message { return &ClassFinished{} },
	KindClassCleanupFailure:      func() Message { return &ClassCleanupFailure{} },
	KindMethodStarting:           func() Message { return &MethodStarting{} },
	KindMethodFinished:           func() Message { return &MethodFinished{} },
	KindMethodCleanupFailure:     func() Message { return &MethodCleanupFailure{} },
	KindCaseStarting:             func() Message { return &CaseStarting{} },
	KindCaseFinished:             func() Message { return &CaseFinished{} },
	KindCaseCleanupFailure:       func() Message { return &CaseCleanupFailure{} },
	KindTestStarting:             func() Message { return &TestStarting{} },
	KindTestFinished:             func() Message { return &TestFinished{} },
	KindTestCleanupFailure:       func() Message { return &TestCleanupFailure{} },
	KindTestPassed:               func() Message { return &TestPassed{} },
	KindTestFailed:               func() Message { return &TestFailed{} },
	KindTestSkipped:              func() Message { return &TestSkipped{} },
	KindTestNotRun:               func() Message { return &TestNotRun{} },
	KindTestOutput:               func() Message { return &TestOutput{} },
	KindError:                    func() Message { return &ErrorMessage{} },
	KindDiagnostic:               func() Message { return &DiagnosticMessage{} },
	KindInternalDiagnostic:       func() Message { return &InternalDiagnosticMessage{} },
}

// Marshal encodes msg as a JSON envelope tagged with its kind.
func Marshal(msg Message) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", msg.Kind(), err)
	}

	return json.Marshal(envelope{Kind: msg.Kind(), Message: body})
}

// Unmarshal decodes an envelope produced by Marshal.
func Unmarshal(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}

	factory, ok := factories[env.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown message kind %q", env.Kind)
	}

	msg := factory()
	if err := json.Unmarshal(env.Message, msg); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", env.Kind, err)
	}

	return msg, nil
}
