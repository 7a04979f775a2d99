package gateway

import (
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// checkDocument parses doc and makes sure it defines the named operation.
// It returns the operation kind ("mutation" or "query").
func checkDocument(doc, operation string) (ast.Operation, error) {
	parsed, err := parser.ParseQuery(&ast.Source{Name: operation, Input: doc})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidDocument, operation, err)
	}
	for _, op := range parsed.Operations {
		if op.Name != operation {
			continue
		}
		switch op.Operation {
		case ast.Mutation, ast.Query:
			return op.Operation, nil
		default:
			return "", fmt.Errorf("%w: %s: unsupported operation type %q", ErrInvalidDocument, operation, op.Operation)
		}
	}
	return "", fmt.Errorf("%w: no operation named %q", ErrInvalidDocument, operation)
}

// RootField returns the first selected field (alias-aware) of the named
// operation. The payload of a mutation lives under this key.
func RootField(doc, operation string) (string, error) {
	parsed, err := parser.ParseQuery(&ast.Source{Name: operation, Input: doc})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidDocument, operation, err)
	}
	op := parsed.Operations.ForName(operation)
	if op == nil {
		return "", fmt.Errorf("%w: no operation named %q", ErrInvalidDocument, operation)
	}
	for _, sel := range op.SelectionSet {
		if f, ok := sel.(*ast.Field); ok {
			if f.Alias != "" {
				return f.Alias, nil
			}
			return f.Name, nil
		}
	}
	return "", fmt.Errorf("%w: %s selects no field", ErrInvalidDocument, operation)
}
