package filter

import (
	"maps"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/s0up4200/cupid/cupid"
)

// Variables exposed to expressions, e.g. `gender == "female" and has_discriminator`
const (
	VarID               = "id"
	VarName             = "name"
	VarTag              = "tag"
	VarDiscriminator    = "discriminator"
	VarHasDiscriminator = "has_discriminator"
	VarAvatarURL        = "avatar_url"
	VarGender           = "gender"
)

// userVariables returns the variables describing a user
func userVariables(user cupid.User) map[string]any {
	disc, ok := user.Discriminator()
	tag := user.Name()
	if ok {
		tag += "#" + disc
	}
	return map[string]any{
		VarID:               user.ID(),
		VarName:             user.Name(),
		VarTag:              tag,
		VarDiscriminator:    disc,
		VarHasDiscriminator: ok,
		VarAvatarURL:        user.AvatarURL(),
		VarGender:           string(user.Gender()),
	}
}

// typeEnvironment describes the variable types for compilation
func typeEnvironment(funcs map[string]any) map[string]any {
	env := map[string]any{
		VarID:               int64(0),
		VarName:             "",
		VarTag:              "",
		VarDiscriminator:    "",
		VarHasDiscriminator: false,
		VarAvatarURL:        "",
		VarGender:           "",
	}
	maps.Copy(env, funcs)
	return env
}

// ExprCompilerOption configures an expr compiler
type ExprCompilerOption func(*exprCompiler)

// WithCache enables caching of up to size compiled filters
func WithCache(size int) ExprCompilerOption {
	return func(c *exprCompiler) {
		if size > 0 {
			// only fails for a non-positive size
			c.cache, _ = lru.New[string, CompiledFilter](size)
		}
	}
}

// WithCustomFunctions adds functions callable from expressions
func WithCustomFunctions(funcs map[string]any) ExprCompilerOption {
	return func(c *exprCompiler) {
		maps.Copy(c.funcs, funcs)
	}
}

// NewExprCompiler creates a compiler for expr-lang filter expressions
func NewExprCompiler(opts ...ExprCompilerOption) CachingCompiler {
	c := &exprCompiler{
		funcs: helperFunctions(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type exprCompiler struct {
	funcs map[string]any
	cache *lru.Cache[string, CompiledFilter]
}

// Compile compiles an expression into a filter
func (c *exprCompiler) Compile(expression string) (CompiledFilter, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, &CompilationError{
			Expression: expression,
			Reason:     "empty expression",
		}
	}

	if c.cache != nil {
		if cached, ok := c.cache.Get(expression); ok {
			return cached, nil
		}
	}

	program, err := expr.Compile(expression,
		expr.Env(typeEnvironment(c.funcs)),
		expr.AsBool(),
	)
	if err != nil {
		return nil, &CompilationError{
			Expression: expression,
			Reason:     "invalid expression",
			Err:        err,
		}
	}

	filter := &exprFilter{
		expression: expression,
		program:    program,
		funcs:      c.funcs,
	}

	if c.cache != nil {
		c.cache.Add(expression, filter)
	}

	return filter, nil
}

// Clear removes all cached filters
func (c *exprCompiler) Clear() {
	if c.cache != nil {
		c.cache.Purge()
	}
}

// Size returns the number of cached filters
func (c *exprCompiler) Size() int {
	if c.cache != nil {
		return c.cache.Len()
	}
	return 0
}

type exprFilter struct {
	expression string
	program    *vm.Program
	funcs      map[string]any
}

// Match evaluates the filter against a user
func (f *exprFilter) Match(user cupid.User) (bool, error) {
	env := userVariables(user)
	maps.Copy(env, f.funcs)

	result, err := expr.Run(f.program, env)
	if err != nil {
		return false, &EvaluationError{
			Expression: f.expression,
			UserID:     user.ID(),
			UserName:   user.Name(),
			Err:        err,
		}
	}
	return result.(bool), nil
}

func (f *exprFilter) Expression() string {
	return f.expression
}

// helperFunctions are case-insensitive string helpers. The case-sensitive
// operators (contains, startsWith, endsWith) and builtins such as lower and
// upper are available as usual.
func helperFunctions() map[string]any {
	return map[string]any{
		"equalFold": strings.EqualFold,
		"containsFold": func(str, substr string) bool {
			return strings.Contains(strings.ToLower(str), strings.ToLower(substr))
		},
		"prefixFold": func(str, prefix string) bool {
			return strings.HasPrefix(strings.ToLower(str), strings.ToLower(prefix))
		},
		"suffixFold": func(str, suffix string) bool {
			return strings.HasSuffix(strings.ToLower(str), strings.ToLower(suffix))
		},
	}
}
