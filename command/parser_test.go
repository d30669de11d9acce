package command

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptforge/promptforge/prompt"
)

func testRegistry(t *testing.T) *prompt.Registry {
	t.Helper()
	reg := prompt.NewRegistry()
	reg.Register(&prompt.Definition{ID: "analyze", Name: "Analyzer", Category: "analysis",
		UserMessageTemplate: "Analyze {{topic}}."})
	reg.Register(&prompt.Definition{ID: "s1", Name: "Step One", UserMessageTemplate: "one"})
	reg.Register(&prompt.Definition{ID: "s2", Name: "Step Two", UserMessageTemplate: "two"})
	reg.Register(&prompt.Definition{ID: "index", Name: "Indexer", UserMessageTemplate: "idx"})
	reg.Register(&prompt.Definition{ID: "review", Name: "Reviewer", Category: "workflows",
		ChainSteps: []prompt.ChainStep{
			{StepNumber: 1, PromptID: "s1", VariableName: "draft"},
			{StepNumber: 2, PromptID: "s2", InputMapping: map[string]string{"draft": "input"}},
		}})
	return reg
}

func TestParseSingleSymbolic(t *testing.T) {
	parsed, err := Parse(`>>analyze topic="graphs"`, testRegistry(t))
	require.NoError(t, err)
	assert.Equal(t, "analyze", parsed.PromptID)
	assert.Equal(t, FormatSymbolic, parsed.Format)
	assert.Equal(t, TypeSingle, parsed.CommandType)
	assert.Equal(t, `topic="graphs"`, parsed.RawArgs)
	require.Len(t, parsed.Steps, 1)
}

func TestParseFullModifierPrefix(t *testing.T) {
	parsed, err := Parse(`@CAGEERF :: "quality" ::sec: "no secrets" ::lint: $(mdl -) #lean-style %lean >>analyze topic=x`, testRegistry(t))
	require.NoError(t, err)

	assert.Equal(t, "CAGEERF", parsed.FrameworkOverride)
	assert.Equal(t, "lean-style", parsed.StyleSelection)
	assert.True(t, parsed.Lean)
	assert.False(t, parsed.Clean)
	assert.Equal(t, []string{"quality"}, parsed.InlineGateCriteria)
	require.Len(t, parsed.NamedInlineGates, 1)
	assert.Equal(t, NamedGate{ID: "sec", Criteria: "no secrets"}, parsed.NamedInlineGates[0])
	require.Len(t, parsed.ShellVerifyGates, 1)
	assert.Equal(t, ShellGate{ID: "lint", Command: "mdl -"}, parsed.ShellVerifyGates[0])
	assert.Equal(t, "analyze", parsed.PromptID)
}

func TestParseExplicitChain(t *testing.T) {
	for _, raw := range []string{">>s1 key=x --> >>s2", ">>s1 key=x | >>s2"} {
		parsed, err := Parse(raw, testRegistry(t))
		require.NoError(t, err, raw)
		assert.Equal(t, TypeChain, parsed.CommandType)
		require.Len(t, parsed.Steps, 2)
		assert.Equal(t, "s1", parsed.Steps[0].PromptID)
		assert.Equal(t, "key=x", parsed.Steps[0].RawArgs)
		assert.Equal(t, "s2", parsed.Steps[1].PromptID)
		assert.Equal(t, 2, parsed.Steps[1].StepNumber)
	}
}

func TestPipeInsideQuotedValueIsNotAChainOperator(t *testing.T) {
	parsed, err := Parse(`>>analyze topic="apples | oranges"`, testRegistry(t))
	require.NoError(t, err)
	assert.Equal(t, TypeSingle, parsed.CommandType)
	require.Len(t, parsed.Steps, 1)
	assert.Equal(t, `topic="apples | oranges"`, parsed.RawArgs)
}

func TestPipeInFreeTextPayloadIsNotAChainOperator(t *testing.T) {
	parsed, err := Parse(`>>analyze compare apples | oranges`, testRegistry(t))
	require.NoError(t, err)
	assert.Equal(t, TypeSingle, parsed.CommandType)
	require.Len(t, parsed.Steps, 1)
	assert.Equal(t, "compare apples | oranges", parsed.RawArgs)
}

func TestArrowInsideQuotedValueIsNotAChainOperator(t *testing.T) {
	parsed, err := Parse(`>>s1 note="a --> b" --> >>s2`, testRegistry(t))
	require.NoError(t, err)
	assert.Equal(t, TypeChain, parsed.CommandType)
	require.Len(t, parsed.Steps, 2)
	assert.Equal(t, `note="a --> b"`, parsed.Steps[0].RawArgs)
	assert.Equal(t, "s2", parsed.Steps[1].PromptID)
}

func TestChainPromptExpandsDeclaredSteps(t *testing.T) {
	parsed, err := Parse(`>>review topic=x`, testRegistry(t))
	require.NoError(t, err)
	assert.Equal(t, TypeChain, parsed.CommandType)
	require.Len(t, parsed.Steps, 2)
	assert.Equal(t, "s1", parsed.Steps[0].PromptID)
	assert.Equal(t, "topic=x", parsed.Steps[0].RawArgs, "payload goes to step 1")
	assert.Empty(t, parsed.Steps[1].RawArgs)
}

func TestParseClassicFormat(t *testing.T) {
	parsed, err := Parse(`Analyzer topic="graphs"`, testRegistry(t))
	require.NoError(t, err)
	assert.Equal(t, FormatClassic, parsed.Format)
	assert.Equal(t, "analyze", parsed.PromptID, "resolved by display name")
	assert.Equal(t, `topic="graphs"`, parsed.RawArgs)
}

func TestCaseInsensitiveResolution(t *testing.T) {
	parsed, err := Parse(`>>ANALYZE`, testRegistry(t))
	require.NoError(t, err)
	assert.Equal(t, "analyze", parsed.PromptID, "canonical ID recorded")
}

func TestPromptNotFoundWithSuggestion(t *testing.T) {
	_, err := Parse(`>>idx`, testRegistry(t))
	var notFound *PromptNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "idx", notFound.ID)
	assert.Contains(t, notFound.Suggestions, "index")
}

func TestMalformedOperators(t *testing.T) {
	tests := []string{
		`@ >>analyze`,
		`# >>analyze`,
		`%fast >>analyze`,
		`:: unquoted >>analyze`,
		`:: "unterminated >>analyze`,
		`::lint: $(mdl - >>analyze`,
		`@CAGEERF`,
	}
	for _, raw := range tests {
		_, err := Parse(raw, testRegistry(t))
		var malformed *MalformedOperatorError
		assert.ErrorAs(t, err, &malformed, raw)
	}
}

func TestMissingCommand(t *testing.T) {
	_, err := Parse("   ", testRegistry(t))
	var missing *MissingCommandError
	assert.True(t, errors.As(err, &missing))
}

func TestParseIsIdempotent(t *testing.T) {
	reg := testRegistry(t)
	raw := `@ReACT :: "concise" >>s1 a=1 --> >>s2`
	first, err := Parse(raw, reg)
	require.NoError(t, err)
	second, err := Parse(raw, reg)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMergeOptionsFillsOnlyUnfilled(t *testing.T) {
	parsed := &ParsedCommand{Steps: []Step{{
		StepNumber: 1,
		Args: map[string]interface{}{
			"topic": "graphs",
			"depth": "",
			"tags":  []interface{}{},
		},
	}}}

	MergeOptions(parsed, map[string]interface{}{
		"topic": "override attempt",
		"depth": "full",
		"tags":  []interface{}{"a"},
		"extra": 7,
	})

	args := parsed.Steps[0].Args
	assert.Equal(t, "graphs", args["topic"], "truthy inline value kept")
	assert.Equal(t, "full", args["depth"])
	assert.Equal(t, []interface{}{"a"}, args["tags"])
	assert.Equal(t, 7, args["extra"])
}
