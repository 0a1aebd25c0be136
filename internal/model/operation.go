package model

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnknownOperation is returned when an operation alias or id has no entry
// in the operation table.
var ErrUnknownOperation = errors.New("unknown operation")

// OperationKind is what an operation does to the target entity.
type OperationKind string

const (
	OperationCreate OperationKind = "create"
	OperationUpdate OperationKind = "update"
	OperationDelete OperationKind = "delete"
)

// IsValid checks whether the kind is a known value.
func (k OperationKind) IsValid() bool {
	switch k {
	case OperationCreate, OperationUpdate, OperationDelete:
		return true
	}
	return false
}

// RESTMethod is the HTTP method used to deliver events of this kind.
func (k OperationKind) RESTMethod() string {
	if k == OperationDelete {
		return http.MethodDelete
	}
	return http.MethodPost
}

// Operation is an origin specific alias ("created", "allocate", ...) mapped
// to one of the three operation kinds.
type Operation struct {
	ID   int64         `json:"id"`
	Name string        `json:"name"`
	Kind OperationKind `json:"kind"`
}

// Operations is the alias table for one run, indexed by name and by id.
type Operations struct {
	byName map[string]Operation
	byID   map[int64]Operation
}

// NewOperations builds an alias table. An operation with an unknown kind is a
// configuration error.
func NewOperations(ops []Operation) (*Operations, error) {
	t := &Operations{
		byName: make(map[string]Operation, len(ops)),
		byID:   make(map[int64]Operation, len(ops)),
	}
	for _, op := range ops {
		if !op.Kind.IsValid() {
			return nil, &ConfigError{Owner: "operation " + op.Name, Msg: fmt.Sprintf("unknown operation type %q", op.Kind)}
		}
		t.byName[op.Name] = op
		t.byID[op.ID] = op
	}
	return t, nil
}

// ByName looks up an operation by its origin alias.
func (t *Operations) ByName(name string) (Operation, error) {
	op, ok := t.byName[name]
	if !ok {
		return Operation{}, fmt.Errorf("%w: %s", ErrUnknownOperation, name)
	}
	return op, nil
}

// ByID looks up an operation by its stored id.
func (t *Operations) ByID(id int64) (Operation, error) {
	op, ok := t.byID[id]
	if !ok {
		return Operation{}, fmt.Errorf("%w: ID %d", ErrUnknownOperation, id)
	}
	return op, nil
}

// Len returns the number of registered aliases.
func (t *Operations) Len() int {
	return len(t.byName)
}
