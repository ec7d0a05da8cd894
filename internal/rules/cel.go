package rules

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"sfex/pkg/models"
)

// Expression rules run CEL programs against a single record exposed as
// a string map. Programs are compiled once, at rule-set load.
func newExpressionEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("record", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("record_id", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

func compileExpression(env *cel.Env, expression string) (cel.Program, error) {
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("invalid expression: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("expression must return bool, got %v", ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to build expression program: %w", err)
	}

	return program, nil
}

func evaluateExpression(ctx context.Context, program cel.Program, record models.Record) (bool, error) {
	vars := map[string]interface{}{
		"record":    record.Fields,
		"record_id": record.ID,
	}

	result, _, err := program.ContextEval(ctx, vars)
	if err != nil {
		return false, fmt.Errorf("expression evaluation failed: %w", err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression did not return bool, got %T", result.Value())
	}

	return boolVal, nil
}
