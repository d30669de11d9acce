package template

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePromptResolver map[string]string

func (f fakePromptResolver) ResolveTemplate(id string) (string, error) {
	if tmpl, ok := f[id]; ok {
		return tmpl, nil
	}
	return "", fmt.Errorf("prompt %q not found", id)
}

type fakeScriptResolver map[string]string

func (f fakeScriptResolver) ScriptOutput(id string) (string, bool) {
	out, ok := f[id]
	return out, ok
}

func TestRenderSimpleSubstitution(t *testing.T) {
	r := NewRenderer()
	out, err := r.Render("Hello, {{name}}!", map[string]string{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "Hello, Ada!", out)
}

func TestRenderRecursiveSubstitution(t *testing.T) {
	r := NewRenderer()
	out, err := r.Render("{{outer}}", map[string]string{
		"outer": "value is {{inner}}",
		"inner": "42",
	})
	require.NoError(t, err)
	assert.Equal(t, "value is 42", out)
}

func TestRenderUnresolvedPlaceholderErrors(t *testing.T) {
	r := NewRenderer()
	_, err := r.Render("Hello, {{name}}!", map[string]string{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "{{name}}")
}

func TestRenderAllowUnresolved(t *testing.T) {
	r := &Renderer{AllowUnresolved: true}
	out, err := r.Render("Hello, {{name}}!", nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello, {{name}}!", out)
}

func TestRenderConditionals(t *testing.T) {
	tests := []struct {
		name string
		tmpl string
		vars map[string]string
		want string
	}{
		{
			name: "if taken",
			tmpl: "a{%if flag%}X{%endif%}b",
			vars: map[string]string{"flag": "yes"},
			want: "aXb",
		},
		{
			name: "if skipped",
			tmpl: "a{%if flag%}X{%endif%}b",
			vars: map[string]string{},
			want: "ab",
		},
		{
			name: "else branch",
			tmpl: "{%if flag%}X{%else%}Y{%endif%}",
			vars: map[string]string{"flag": "false"},
			want: "Y",
		},
		{
			name: "elif branch",
			tmpl: "{%if a%}A{%elif b%}B{%else%}C{%endif%}",
			vars: map[string]string{"b": "1"},
			want: "B",
		},
		{
			name: "equality",
			tmpl: `{%if mode == "fast"%}quick{%else%}slow{%endif%}`,
			vars: map[string]string{"mode": "fast"},
			want: "quick",
		},
		{
			name: "negation",
			tmpl: "{%if !flag%}off{%endif%}",
			vars: map[string]string{"flag": ""},
			want: "off",
		},
		{
			name: "nested",
			tmpl: "{%if a%}[{%if b%}ab{%else%}a{%endif%}]{%endif%}",
			vars: map[string]string{"a": "1", "b": "1"},
			want: "[ab]",
		},
		{
			name: "conditional with variables inside",
			tmpl: "{%if name%}Hi {{name}}{%endif%}",
			vars: map[string]string{"name": "Ada"},
			want: "Hi Ada",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRenderer()
			out, err := r.Render(tt.tmpl, tt.vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestRenderConditionalErrors(t *testing.T) {
	r := NewRenderer()

	_, err := r.Render("{%if a%}no end", nil)
	assert.Error(t, err)

	_, err = r.Render("{%endif%}", nil)
	assert.Error(t, err)

	_, err = r.Render("{%bogus%}", nil)
	assert.Error(t, err)
}

func TestRenderRefInclusion(t *testing.T) {
	r := &Renderer{
		Prompts: fakePromptResolver{
			"header": "== {{title}} ==",
			"doc":    "{{ref:header}}\nbody",
		},
	}

	out, err := r.Render("{{ref:doc}}", map[string]string{"title": "Notes"})
	require.NoError(t, err)
	assert.Equal(t, "== Notes ==\nbody", out)
}

func TestRenderRefUnknownPrompt(t *testing.T) {
	r := &Renderer{Prompts: fakePromptResolver{}}
	_, err := r.Render("{{ref:missing}}", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestRenderRefWithoutResolver(t *testing.T) {
	r := NewRenderer()
	_, err := r.Render("{{ref:x}}", nil)
	assert.Error(t, err)
}

func TestRenderRefCycleBounded(t *testing.T) {
	r := &Renderer{
		Prompts: fakePromptResolver{
			"a": "{{ref:b}}",
			"b": "{{ref:a}}",
		},
	}
	_, err := r.Render("{{ref:a}}", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "depth")
}

func TestRenderScriptOutput(t *testing.T) {
	r := &Renderer{
		Scripts: fakeScriptResolver{"linter": `{"valid": true}`},
	}

	out, err := r.Render("result: {{script:linter}}", nil)
	require.NoError(t, err)
	assert.Equal(t, `result: {"valid": true}`, out)
}

func TestRenderScriptUnknownToolIsEmpty(t *testing.T) {
	r := &Renderer{Scripts: fakeScriptResolver{}}
	out, err := r.Render("result:{{script:none}}.", nil)
	require.NoError(t, err)
	assert.Equal(t, "result:.", out)
}

func TestRenderDeterministic(t *testing.T) {
	r := NewRenderer()
	tmpl := "{%if a%}{{x}}{%else%}{{y}}{%endif%} and {{z}}"
	vars := map[string]string{"a": "1", "x": "X", "y": "Y", "z": "Z"}

	first, err := r.Render(tmpl, vars)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := r.Render(tmpl, vars)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestVariables(t *testing.T) {
	names := Variables("{{a}} {{b}} {{ref:p}} {{script:s}} {{a}}")
	assert.Equal(t, []string{"a", "b"}, names)
}

func TestMergeVars(t *testing.T) {
	merged := MergeVars(
		map[string]string{"color": "blue", "size": "medium"},
		map[string]string{"color": "red"},
	)
	assert.Equal(t, map[string]string{"color": "red", "size": "medium"}, merged)
}
