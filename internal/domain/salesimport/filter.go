package salesimport

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"

	"hivepos/internal/core/apperror"
)

// RowFilter is a CEL expression that excludes parsed rows when it evaluates
// to true, e.g. `category == "Gift Cards" || sku.startsWith("TIP")`.
//
// Variables: sku, name, category, status (string), quantity (int), total (double).
type RowFilter struct {
	expr    string
	program cel.Program
}

// NewRowFilter compiles expr. An empty expression yields a nil filter.
func NewRowFilter(expr string) (*RowFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}

	env, err := cel.NewEnv(
		cel.Variable("sku", cel.StringType),
		cel.Variable("name", cel.StringType),
		cel.Variable("category", cel.StringType),
		cel.Variable("status", cel.StringType),
		cel.Variable("quantity", cel.IntType),
		cel.Variable("total", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("row filter env: %w", err)
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, apperror.NewValidation("invalid row filter: " + iss.Err().Error())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, apperror.NewValidation("row filter must evaluate to a boolean")
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("row filter program: %w", err)
	}
	return &RowFilter{expr: expr, program: program}, nil
}

// String returns the source expression.
func (f *RowFilter) String() string {
	if f == nil {
		return ""
	}
	return f.expr
}

// Excludes reports whether the line matches the filter.
func (f *RowFilter) Excludes(line ParsedLine) (bool, error) {
	if f == nil {
		return false, nil
	}
	total, _ := line.LineTotal.Float64()
	out, _, err := f.program.Eval(map[string]any{
		"sku":      line.ProductSKU,
		"name":     line.ProductName,
		"category": line.Category,
		"status":   line.Status,
		"quantity": int64(line.Quantity),
		"total":    total,
	})
	if err != nil {
		return false, err
	}
	excluded, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("row filter returned %T", out.Value())
	}
	return excluded, nil
}
