package delta_test

import (
	"testing"

	"github.com/aledsdavies/delta"
	"github.com/aledsdavies/delta/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run compiles and executes source against a fresh Context/PersistentData,
// failing the test immediately on a compile error.
func run(t *testing.T, source string) (delta.Value, error) {
	t.Helper()
	ctx := delta.NewContext()
	data := delta.NewPersistentData()
	program := delta.New(ctx, data, false)

	sink := program.Reload(source)
	require.True(t, sink.Empty(), "unexpected diagnostics: %v", sink.Errors())
	return program.Run()
}

func TestScenarioIntegerPipeline(t *testing.T) {
	v, err := run(t, "1 + 2 + 3 + 4 + 5")
	require.NoError(t, err)
	assert.Equal(t, delta.Int(15), v)
}

func TestScenarioFloatPipeline(t *testing.T) {
	v, err := run(t, "1.1 +. 2.2 +. 3.3 +. 4.4 +. 5.5")
	require.NoError(t, err)
	assert.InDelta(t, 16.5, float64(v.F), 0.01)
}

func TestScenarioDivisionByZeroIsTotal(t *testing.T) {
	v, err := run(t, "10 / 0")
	require.NoError(t, err)
	assert.Equal(t, delta.Int(0), v)

	v, err = run(t, "54.32 /. 0.0")
	require.NoError(t, err)
	assert.Equal(t, delta.Float(0), v)
}

func TestScenarioFunctionPipe(t *testing.T) {
	source := "add = \\v1 v2\n\tv1 + v2\n5 | add 3"
	v, err := run(t, source)
	require.NoError(t, err)
	assert.Equal(t, delta.Int(8), v)
}

func TestScenarioPatternMatchDefault(t *testing.T) {
	source := "3 is\n\t2\n\t\t\"nope\"\n\t_\n\t\t\"yes\""
	v, err := run(t, source)
	require.NoError(t, err)
	assert.Equal(t, delta.Str("yes"), v)
}

func TestScenarioStringInterpolation(t *testing.T) {
	v, err := run(t, `"Hello {40 + 2}"`)
	require.NoError(t, err)
	assert.Equal(t, delta.Str("Hello 42"), v)
}

func TestScenarioMultipleDefaultArmsIsADiagnostic(t *testing.T) {
	ctx := delta.NewContext()
	data := delta.NewPersistentData()
	program := delta.New(ctx, data, false)

	source := "3 is\n\t_\n\t\t\"ok\"\n\t_\n\t\t\"not okay\""
	sink := program.Reload(source)
	require.False(t, sink.Empty())
	var messages []string
	for _, e := range sink.Errors() {
		messages = append(messages, e.Message)
	}
	assert.Contains(t, messages, "An `is` block cannot have multiple default arms.")
}

func TestScenarioUnknownNameIsADiagnostic(t *testing.T) {
	ctx := delta.NewContext()
	data := delta.NewPersistentData()
	program := delta.New(ctx, data, false)

	sink := program.Reload("x")
	require.False(t, sink.Empty())
	assert.Contains(t, sink.Errors()[0].Message, "Name not found in scope: x")
}

func TestForeignValueAndFunction(t *testing.T) {
	ctx := delta.NewContext()
	calls := 0
	ctx.AddValue("health", types.Int(), func() delta.Value {
		calls++
		return delta.Int(100)
	})
	ctx.AddFunction("double", types.Function([]types.Type{types.Int()}, types.Int()), func(args []delta.Value) (delta.Value, error) {
		return delta.Int(args[0].I * 2), nil
	})

	data := delta.NewPersistentData()
	program := delta.New(ctx, data, false)
	sink := program.Reload("health | double")
	require.True(t, sink.Empty(), "unexpected diagnostics: %v", sink.Errors())

	v, err := program.Run()
	require.NoError(t, err)
	assert.Equal(t, delta.Int(200), v)
	assert.Equal(t, 1, calls)
}

func TestRunFunctionByName(t *testing.T) {
	ctx := delta.NewContext()
	data := delta.NewPersistentData()
	program := delta.New(ctx, data, false)

	sink := program.Reload("add = \\v1 v2\n\tv1 + v2\n0")
	require.True(t, sink.Empty(), "unexpected diagnostics: %v", sink.Errors())
	_, err := program.Run()
	require.NoError(t, err)

	v, err := program.RunFunction("add", []delta.Value{delta.Int(4), delta.Int(9)})
	require.NoError(t, err)
	assert.Equal(t, delta.Int(13), v)
}

// TestQueryMutatesComponentFieldInPlace is the ECS/query scenario: define a
// component, create an entity, mutate a field from inside a query loop, and
// confirm the mutation is visible to a second, independent query over the
// same world rather than just to the in-flight ComponentValue.
func TestQueryMutatesComponentFieldInPlace(t *testing.T) {
	source := "component Position { x i32, y i32 }\n\n" +
		"create [Position{x 1, y 2}]\n\n" +
		"query Position p\n\t\tp.x = p.x + 10\n\n" +
		"query Position p\n\t\tp.x"

	v, err := run(t, source)
	require.NoError(t, err)
	assert.Equal(t, delta.Int(11), v)
}

func TestQueryExcludeFiltersOutMatchingComponent(t *testing.T) {
	source := "component Position { x i32 }\n" +
		"component Tagged { x i32 }\n\n" +
		"create [Position{x 1}]\n" +
		"create [Position{x 2}, Tagged{x 0}]\n\n" +
		"query Position p, not Tagged\n\t\tp.x = p.x + 100\n\n" +
		"query Position p\n\t\tp.x = p.x + 1000\n"

	v, err := run(t, source)
	require.NoError(t, err)
	// Only the untagged entity (created first) gets +100 from the
	// filtered query; both entities get +1000 from the second,
	// unfiltered one, visited in ascending entity-id order, so the
	// second (tagged) entity's new value is what's left on the stack.
	assert.Equal(t, delta.Int(1002), v)
}

func TestAmbientContextRoundTrip(t *testing.T) {
	ctx := delta.NewContext()
	data := delta.NewPersistentData()
	program := delta.New(ctx, data, false)

	sink := program.Reload("ctx.score = 7\nctx.score")
	require.True(t, sink.Empty(), "unexpected diagnostics: %v", sink.Errors())

	v, err := program.Run()
	require.NoError(t, err)
	assert.Equal(t, delta.Int(7), v)
	assert.Equal(t, delta.Int(7), data.Ambient["score"])
}
