package filter

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/expr-lang/expr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s0up4200/cupid/cupid"
)

type testUser struct {
	record cupid.UserRecord
}

func (u testUser) ID() int64            { return u.record.ID }
func (u testUser) Name() string         { return u.record.Name }
func (u testUser) AvatarURL() string    { return u.record.AvatarURL }
func (u testUser) Gender() cupid.Gender { return u.record.Gender }
func (u testUser) Record() cupid.UserRecord {
	return u.record
}
func (u testUser) Discriminator() (string, bool) {
	if u.record.Discriminator == nil {
		return "", false
	}
	return *u.record.Discriminator, true
}

func newUser(id int64, name, discriminator string, gender cupid.Gender) cupid.User {
	rec := cupid.UserRecord{
		ID: id,
		UserData: cupid.UserData{
			Name:      name,
			AvatarURL: fmt.Sprintf("https://cdn.example.com/%d.png", id),
			Gender:    gender,
		},
	}
	if discriminator != "" {
		rec.Discriminator = &discriminator
	}
	return testUser{record: rec}
}

func generateUsers(n int) []cupid.User {
	genders := []cupid.Gender{cupid.GenderFemale, cupid.GenderMale, cupid.GenderNonBinary}
	users := make([]cupid.User, 0, n)
	for i := range n {
		disc := ""
		if i%2 == 0 {
			disc = fmt.Sprintf("%04d", i%10000)
		}
		users = append(users, newUser(int64(i+1), fmt.Sprintf("user%d", i+1), disc, genders[i%len(genders)]))
	}
	return users
}

func TestCompile(t *testing.T) {
	tests := []struct {
		name       string
		expression string
		wantErr    string
	}{
		{name: "simple comparison", expression: `gender == "female"`},
		{name: "helper function", expression: `containsFold(name, "ali") and has_discriminator`},
		{name: "builtin", expression: `lower(name) startsWith "a"`},
		{name: "empty expression", expression: "  ", wantErr: "empty expression"},
		{name: "invalid syntax", expression: `name == "unclosed`, wantErr: "invalid expression"},
		{name: "unknown variable", expression: `age > 3`, wantErr: "invalid expression"},
		{name: "not a predicate", expression: `name`, wantErr: "invalid expression"},
	}

	compiler := NewExprCompiler()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filter, err := compiler.Compile(tt.expression)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				var compErr *CompilationError
				assert.ErrorAs(t, err, &compErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expression, filter.Expression())
		})
	}
}

func TestMatch(t *testing.T) {
	alice := newUser(100, "Alice", "0231", cupid.GenderFemale)
	bob := newUser(200, "Bob", "", cupid.GenderMale)

	tests := []struct {
		expression string
		alice      bool
		bob        bool
	}{
		{expression: `gender == "female"`, alice: true},
		{expression: `has_discriminator`, alice: true},
		{expression: `not has_discriminator`, bob: true},
		{expression: `discriminator == "0231"`, alice: true},
		{expression: `tag == "Alice#0231"`, alice: true},
		{expression: `tag == "Bob"`, bob: true},
		{expression: `id >= 150`, bob: true},
		{expression: `equalFold(name, "BOB")`, bob: true},
		{expression: `prefixFold(name, "al") or suffixFold(name, "OB")`, alice: true, bob: true},
		{expression: `avatar_url endsWith ".png"`, alice: true, bob: true},
		{expression: `name in ["Alice", "Carol"]`, alice: true},
	}

	compiler := NewExprCompiler()
	for _, tt := range tests {
		t.Run(tt.expression, func(t *testing.T) {
			filter, err := compiler.Compile(tt.expression)
			require.NoError(t, err)

			got, err := filter.Match(alice)
			require.NoError(t, err)
			assert.Equal(t, tt.alice, got, "alice")

			got, err = filter.Match(bob)
			require.NoError(t, err)
			assert.Equal(t, tt.bob, got, "bob")
		})
	}
}

func TestMatch_EvaluationError(t *testing.T) {
	compiler := NewExprCompiler(WithCustomFunctions(map[string]any{
		"explode": func(s string) (bool, error) {
			return false, errors.New("boom")
		},
	}))
	filter, err := compiler.Compile(`explode(name)`)
	require.NoError(t, err)

	_, err = filter.Match(newUser(7, "Eve", "", cupid.GenderFemale))
	require.Error(t, err)

	var evalErr *EvaluationError
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, int64(7), evalErr.UserID)
	assert.Equal(t, "Eve", evalErr.UserName)
}

func TestCustomFunctions(t *testing.T) {
	compiler := NewExprCompiler(WithCustomFunctions(map[string]any{
		"isStaff": func(id int64) bool { return id < 10 },
	}))

	filter, err := compiler.Compile(`isStaff(id)`)
	require.NoError(t, err)

	ok, err := filter.Match(newUser(3, "Root", "", cupid.GenderNonBinary))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConcurrentEvaluation(t *testing.T) {
	users := generateUsers(1000)
	filter, err := NewExprCompiler().Compile(`gender == "female" and has_discriminator`)
	require.NoError(t, err)

	evaluator := NewConcurrentEvaluator(WithWorkers(4), WithBatchSize(50))
	t.Cleanup(func() { _ = evaluator.Stop(context.Background()) })

	matches, err := evaluator.Evaluate(context.Background(), filter, users)
	require.NoError(t, err)

	expected, err := evaluateSequential(filter, users)
	require.NoError(t, err)
	require.Equal(t, len(expected), len(matches))
	for i := range matches {
		assert.Equal(t, expected[i].ID(), matches[i].ID(), "order is preserved")
	}
}

func TestConcurrentEvaluation_Cancelled(t *testing.T) {
	users := generateUsers(500)
	filter, err := NewExprCompiler().Compile(`id > 0`)
	require.NoError(t, err)

	evaluator := NewConcurrentEvaluator(WithWorkers(2), WithBatchSize(10))
	t.Cleanup(func() { _ = evaluator.Stop(context.Background()) })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = evaluator.Evaluate(ctx, filter, users)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestManager(t *testing.T) {
	manager := NewManager()
	t.Cleanup(func() { _ = manager.Close(context.Background()) })
	ctx := context.Background()

	err := manager.RegisterFilters(map[string]string{
		"women":    `gender == "female"`,
		"untagged": `not has_discriminator`,
		"early":    `id <= 10`,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"early", "untagged", "women"}, manager.ListFilters())

	users := generateUsers(30)
	matches, err := manager.EvaluateFilter(ctx, "early", users)
	require.NoError(t, err)
	assert.Len(t, matches, 10)

	results, err := manager.EvaluateSelected(ctx, []string{"women", "untagged"}, users)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.NoError(t, results["women"].Error)
	assert.Len(t, results["women"].Matches, 10)
	assert.Len(t, results["untagged"].Matches, 15)

	_, err = manager.EvaluateSelected(ctx, []string{"missing"}, users)
	assert.Error(t, err)

	manager.UnregisterFilter("early")
	_, exists := manager.GetFilter("early")
	assert.False(t, exists)
	_, err = manager.EvaluateFilter(ctx, "early", users)
	assert.Error(t, err)
}

func TestManager_Close(t *testing.T) {
	compiler := NewExprCompiler(WithCache(10))
	manager := NewManager(
		WithCompiler(compiler),
		WithEvaluator(NewConcurrentEvaluator(WithWorkers(0), WithBatchSize(5))),
	)

	require.NoError(t, manager.RegisterFilter("women", `gender == "female"`))
	assert.Equal(t, 1, compiler.Size())

	matches, err := manager.EvaluateFilter(context.Background(), "women", generateUsers(30))
	require.NoError(t, err, "zero workers falls back to the default")
	assert.Len(t, matches, 10)

	require.NoError(t, manager.Close(context.Background()))
	assert.Equal(t, 0, compiler.Size(), "closing drops cached compilations")
}

func TestManager_RegisterFiltersIsAtomic(t *testing.T) {
	manager := NewManager()
	t.Cleanup(func() { _ = manager.Close(context.Background()) })

	err := manager.RegisterFilters(map[string]string{
		"good": `id > 1`,
		"bad":  `id >`,
	})
	require.Error(t, err)
	assert.Empty(t, manager.ListFilters())
}

func TestCache(t *testing.T) {
	compiler := NewExprCompiler(WithCache(2))

	first, err := compiler.Compile(`id > 1`)
	require.NoError(t, err)
	second, err := compiler.Compile(" id > 1 ")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, compiler.Size())

	_, err = compiler.Compile(`id > 2`)
	require.NoError(t, err)
	_, err = compiler.Compile(`id > 3`)
	require.NoError(t, err)
	assert.Equal(t, 2, compiler.Size(), "least recently used entry is evicted")

	compiler.Clear()
	assert.Equal(t, 0, compiler.Size())
}

func TestWorkerPool_Stop(t *testing.T) {
	pool := NewWorkerPool(2)

	done := make(chan struct{})
	require.NoError(t, pool.Submit(func() { close(done) }))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, pool.Stop(ctx))
	<-done

	assert.ErrorIs(t, pool.Submit(func() {}), ErrPoolStopped)
	assert.NoError(t, pool.Stop(ctx), "stopping twice is fine")
}

// Guard against expr reserving one of the helper names.
func TestHelperNamesCompile(t *testing.T) {
	for name := range helperFunctions() {
		_, err := expr.Compile(name+`("a", "b")`, expr.Env(typeEnvironment(helperFunctions())))
		assert.NoError(t, err, name)
	}
}
