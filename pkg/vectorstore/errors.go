package vectorstore

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// EmbeddingError reports a failed call to an embedding provider
type EmbeddingError struct {
	Operation string
	Provider  string
	Cause     error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("%s: %s embedder: %v", e.Operation, e.Provider, e.Cause)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Cause
}

func wrapEmbeddingError(err error, operation, provider string) error {
	if err == nil {
		return nil
	}
	return &EmbeddingError{Operation: operation, Provider: provider, Cause: err}
}

// ValidationError rejects a collection name or chunk id before it reaches chromem
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

var (
	ErrEmptyText       = errors.New("nothing to embed")
	ErrTextTooLong     = errors.New("chunk too long to embed")
	ErrBatchTooLarge   = errors.New("too many chunks in one embedding batch")
	ErrEmptyCollection = errors.New("collection name is empty")
	ErrEmptyDocumentID = errors.New("chunk id is empty")
)

const maxCollectionName = 63

// validateCollectionName accepts lowercase names such as "normas" or
// "normas_laboral": letters, digits, '_' and '-', starting with a letter.
func validateCollectionName(name string) error {
	if name == "" {
		return ErrEmptyCollection
	}
	if len(name) > maxCollectionName {
		return &ValidationError{Field: "collection", Value: name,
			Reason: fmt.Sprintf("longer than %d characters", maxCollectionName)}
	}
	if name[0] < 'a' || name[0] > 'z' {
		return &ValidationError{Field: "collection", Value: name, Reason: "must start with a lowercase letter"}
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return &ValidationError{Field: "collection", Value: name, Reason: fmt.Sprintf("character %q not allowed", r)}
		}
	}
	return nil
}

// ParseChunkID splits a chunk id of the form "<normaID>-<chunk>"
func ParseChunkID(id string) (normaID int64, chunk int, err error) {
	if id == "" {
		return 0, 0, ErrEmptyDocumentID
	}
	head, tail, ok := strings.Cut(id, "-")
	if !ok {
		return 0, 0, &ValidationError{Field: "chunk id", Value: id, Reason: "want <norma>-<chunk>"}
	}
	normaID, err = strconv.ParseInt(head, 10, 64)
	if err != nil || normaID <= 0 {
		return 0, 0, &ValidationError{Field: "chunk id", Value: id, Reason: "norma id must be a positive number"}
	}
	chunk, err = strconv.Atoi(tail)
	if err != nil || chunk < 0 {
		return 0, 0, &ValidationError{Field: "chunk id", Value: id, Reason: "chunk index must be a number"}
	}
	return normaID, chunk, nil
}

func validateDocumentID(id string) error {
	_, _, err := ParseChunkID(id)
	return err
}
