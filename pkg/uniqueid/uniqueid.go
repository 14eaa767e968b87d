// Package uniqueid derives the deterministic identifiers that let messages
// from separate processes or re-runs refer to the same scope.
package uniqueid

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"hash"
	"strconv"
)

// ErrUsedAfterCompute is returned when a sealed generator is reused.
var ErrUsedAfterCompute = errors.New("unique id generator used after compute")

// Generator hashes an ordered sequence of strings into a unique id. It is a
// one-shot value: Compute seals it.
type Generator struct {
	hasher hash.Hash
	sealed bool
}

// New returns an empty generator.
func New() *Generator {
	return &Generator{hasher: sha256.New()}
}

// Add appends a value to the hashed sequence.
func (g *Generator) Add(value string) error {
	if g.sealed {
		return ErrUsedAfterCompute
	}

	// hash.Hash writes never fail.
	_, _ = g.hasher.Write([]byte(value))
	_, _ = g.hasher.Write([]byte{0})

	return nil
}

// Compute seals the generator and returns the hex encoded digest.
func (g *Generator) Compute() (string, error) {
	if g.sealed {
		return "", ErrUsedAfterCompute
	}

	g.sealed = true

	return hex.EncodeToString(g.hasher.Sum(nil)), nil
}

// hashAll hashes values with a fresh generator. It cannot fail.
func hashAll(values ...string) string {
	g := New()

	for _, v := range values {
		_ = g.Add(v)
	}

	id, _ := g.Compute()

	return id
}

// ForAssembly computes the id of an assembly.
func ForAssembly(name, path, configFile string) string {
	return hashAll(name, path, configFile)
}

// ForCollection computes the id of a collection inside an assembly.
func ForCollection(assemblyID, displayName, definitionClass string) string {
	return hashAll(assemblyID, displayName, definitionClass)
}

// ForClass computes the id of a class. An empty class name yields an empty
// id: the collection holds no class.
func ForClass(collectionID, className string) string {
	if className == "" {
		return ""
	}

	return hashAll(collectionID, className)
}

// ForMethod computes the id of a method. Returns an empty id if either the
// class id or the method name is missing.
func ForMethod(classID, methodName string) string {
	if classID == "" || methodName == "" {
		return ""
	}

	return hashAll(classID, methodName)
}

// ForCase computes the id of a test case under its closest parent (method,
// class or collection) from its display name and data arguments.
func ForCase(parentID, displayName string, args ...string) string {
	values := make([]string, 0, len(args)+2)
	values = append(values, parentID, displayName)
	values = append(values, args...)

	return hashAll(values...)
}

// ForTest computes the id of the index-th test materialized from a case.
func ForTest(caseID string, index int) string {
	return hashAll(caseID, strconv.Itoa(index))
}
