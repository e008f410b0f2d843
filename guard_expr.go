package spellbook

import (
	"fmt"
	"sync"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// Expression guards see the detected version as:
//
//	version  string, e.g. "6.7.3"
//	major    int
//	minor    int
//	patch    int
//
// and the functions atLeast(version, "6.5.8") and below(version, "7.0").
// Expression guards have no floor and keep their declared position inside a Rule.

type exprGuard struct {
	src     string
	program *exprvm.Program
}

// ExprGuard compiles src with expr-lang. The expression must evaluate to a bool.
func ExprGuard(src string) (Guard, error) {
	if src == "" {
		return nil, fmt.Errorf("expr guard: expression must not be empty")
	}
	program, err := exprlang.Compile(src,
		exprlang.Env(versionEnv(Version{})),
		exprlang.AsBool(),
		exprlang.Function("atLeast", func(params ...any) (any, error) {
			return compareParams(params, func(c int) bool { return c >= 0 })
		}, new(func(string, string) bool)),
		exprlang.Function("below", func(params ...any) (any, error) {
			return compareParams(params, func(c int) bool { return c < 0 })
		}, new(func(string, string) bool)),
	)
	if err != nil {
		return nil, fmt.Errorf("expr guard %q: %w", src, err)
	}
	return &exprGuard{src: src, program: program}, nil
}

func (e *exprGuard) Match(v Version) (bool, error) {
	out, err := exprlang.Run(e.program, versionEnv(v))
	if err != nil {
		return false, fmt.Errorf("expr guard %q: %w", e.src, err)
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("expr guard %q: result %T is not bool", e.src, out)
	}
	return b, nil
}

func (e *exprGuard) Floor() (Version, bool) { return Version{}, false }
func (e *exprGuard) String() string         { return "expr(" + e.src + ")" }

func versionEnv(v Version) map[string]any {
	return map[string]any{
		"version": v.String(),
		"major":   v.Major(),
		"minor":   v.Minor(),
		"patch":   v.Patch(),
	}
}

func compareParams(params []any, pred func(int) bool) (any, error) {
	if len(params) != 2 {
		return nil, fmt.Errorf("want 2 arguments, got %d", len(params))
	}
	a, ok1 := params[0].(string)
	b, ok2 := params[1].(string)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("arguments must be strings")
	}
	c, err := compareStrings(a, b)
	if err != nil {
		return nil, err
	}
	return pred(c), nil
}

func compareStrings(a, b string) (int, error) {
	va, err := ParseVersion(a)
	if err != nil {
		return 0, err
	}
	vb, err := ParseVersion(b)
	if err != nil {
		return 0, err
	}
	return va.Compare(vb), nil
}

type celGuard struct {
	src     string
	program cel.Program
}

var (
	celEnv     *cel.Env
	celEnvErr  error
	celEnvOnce sync.Once
)

func versionCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable("version", cel.StringType),
			cel.Variable("major", cel.IntType),
			cel.Variable("minor", cel.IntType),
			cel.Variable("patch", cel.IntType),
			cel.Function("atLeast", cel.Overload("atLeast_string_string",
				[]*cel.Type{cel.StringType, cel.StringType}, cel.BoolType,
				cel.BinaryBinding(celCompare(func(c int) bool { return c >= 0 })))),
			cel.Function("below", cel.Overload("below_string_string",
				[]*cel.Type{cel.StringType, cel.StringType}, cel.BoolType,
				cel.BinaryBinding(celCompare(func(c int) bool { return c < 0 })))),
		)
	})
	return celEnv, celEnvErr
}

func celCompare(pred func(int) bool) func(lhs, rhs ref.Val) ref.Val {
	return func(lhs, rhs ref.Val) ref.Val {
		a, ok1 := lhs.Value().(string)
		b, ok2 := rhs.Value().(string)
		if !ok1 || !ok2 {
			return types.NewErr("arguments must be strings")
		}
		c, err := compareStrings(a, b)
		if err != nil {
			return types.NewErr("%s", err.Error())
		}
		return types.Bool(pred(c))
	}
}

// CELGuard compiles src with cel-go. The expression must be of type bool.
func CELGuard(src string) (Guard, error) {
	if src == "" {
		return nil, fmt.Errorf("cel guard: expression must not be empty")
	}
	env, err := versionCELEnv()
	if err != nil {
		return nil, err
	}
	ast, issues := env.Compile(src)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("cel guard %q: %w", src, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("cel guard %q: result type %s is not bool", src, ast.OutputType())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("cel guard %q: %w", src, err)
	}
	return &celGuard{src: src, program: program}, nil
}

func (c *celGuard) Match(v Version) (bool, error) {
	out, _, err := c.program.Eval(map[string]any{
		"version": v.String(),
		"major":   int64(v.Major()),
		"minor":   int64(v.Minor()),
		"patch":   int64(v.Patch()),
	})
	if err != nil {
		return false, fmt.Errorf("cel guard %q: %w", c.src, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("cel guard %q: result %T is not bool", c.src, out.Value())
	}
	return b, nil
}

func (c *celGuard) Floor() (Version, bool) { return Version{}, false }
func (c *celGuard) String() string         { return "cel(" + c.src + ")" }
