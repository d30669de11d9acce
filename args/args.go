// Package args parses raw argument payloads against a prompt's declared
// arguments. A payload is interpreted by the first applicable strategy
// (JSON object, key=value list, bare text, fallback), then validated,
// coerced to the declared types, and completed from the defaults chain.
package args

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/promptforge/promptforge/prompt"
)

// Source records where an argument value came from, for observability.
type Source string

const (
	SourceUserProvided  Source = "user_provided"
	SourceSmartMapped   Source = "user_provided_smart_mapped"
	SourceOptions       Source = "request_options"
	SourceDefaultValue  Source = "default_value"
	SourcePromptDefault Source = "prompt_defaults"
	SourceEnvironment   Source = "environment"
	SourceEmptyFallback Source = "empty_fallback"
)

// Strategy names the payload interpretation that was applied.
type Strategy string

const (
	StrategyJSON     Strategy = "json"
	StrategyKeyValue Strategy = "key_value"
	StrategyText     Strategy = "simple_text"
	StrategyFallback Strategy = "fallback"
)

// Parsed is the typed argument record handed to the renderer.
type Parsed struct {
	Values   map[string]interface{}
	Sources  map[string]Source
	Strategy Strategy
}

// Context supplies the out-of-band value sources consulted for missing
// arguments.
type Context struct {
	// PromptDefaults are runtime defaults keyed by argument name.
	PromptDefaults map[string]interface{}
	// LookupEnv defaults to os.LookupEnv; injectable for tests.
	LookupEnv func(key string) (string, bool)
}

func (c *Context) lookupEnv(key string) (string, bool) {
	if c != nil && c.LookupEnv != nil {
		return c.LookupEnv(key)
	}
	return os.LookupEnv(key)
}

var (
	keyValuePattern    = regexp.MustCompile(`([\w-]+)\s*[=:]\s*("(?:[^"\\]|\\.)*"|\S+)`)
	keyValueDetect     = regexp.MustCompile(`^\s*[\w-]+\s*[=:]`)
	placeholderPattern = regexp.MustCompile(`^\[.*to be provided.*\]$`)
)

// Parse interprets the raw payload for a prompt, merges preset values
// (inline step args and request options), validates, coerces, and applies
// the defaults chain. On validation failure it returns a *ValidationError.
func Parse(raw string, def *prompt.Definition, preset map[string]interface{}, ctx *Context) (*Parsed, error) {
	p := &Parsed{
		Values:  map[string]interface{}{},
		Sources: map[string]Source{},
	}

	for key, value := range preset {
		if !isEmptyValue(value) {
			p.Values[key] = value
			p.Sources[key] = SourceOptions
		}
	}

	parsePayload(strings.TrimSpace(raw), def, p)
	applyDefaults(def, p, ctx)
	coerceAll(def, p)

	if err := validate(def, p); err != nil {
		return nil, err
	}
	return p, nil
}

func parsePayload(raw string, def *prompt.Definition, p *Parsed) {
	switch {
	case raw == "":
		p.Strategy = StrategyFallback

	case looksLikeJSON(raw):
		p.Strategy = StrategyJSON
		var decoded map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &decoded); err == nil {
			for key, value := range decoded {
				setUserValue(p, key, value, SourceUserProvided)
			}
			return
		}
		// Unparseable braces degrade to bare text.
		smartMap(raw, def, p)

	case keyValueDetect.MatchString(raw):
		p.Strategy = StrategyKeyValue
		for _, m := range keyValuePattern.FindAllStringSubmatch(raw, -1) {
			setUserValue(p, m[1], unquote(m[2]), SourceUserProvided)
		}

	case len(def.Arguments) > 0:
		p.Strategy = StrategyText
		smartMap(raw, def, p)

	default:
		p.Strategy = StrategyFallback
	}
}

func setUserValue(p *Parsed, key string, value interface{}, source Source) {
	p.Values[key] = value
	p.Sources[key] = source
}

func looksLikeJSON(raw string) bool {
	return (strings.HasPrefix(raw, "{") && strings.HasSuffix(raw, "}")) ||
		(strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]"))
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		if u, err := strconv.Unquote(s); err == nil {
			return u
		}
	}
	return s
}

// smartMappingPriority orders candidate argument names for bare-text
// payloads. Earlier entries win; declaration order breaks remaining ties.
var smartMappingPriority = []string{
	"content", "text", "input", "query", "message", "topic", "question", "code", "data",
}

// smartMap assigns a bare text blob to the best-matching unfilled argument.
func smartMap(raw string, def *prompt.Definition, p *Parsed) {
	var unfilled []prompt.Argument
	for _, arg := range def.Arguments {
		if isEmptyValue(p.Values[arg.Name]) {
			unfilled = append(unfilled, arg)
		}
	}
	if len(unfilled) == 0 {
		return
	}

	target := unfilled[0]
	source := SourceUserProvided
	if len(unfilled) > 1 {
		source = SourceSmartMapped
	priority:
		for _, candidate := range smartMappingPriority {
			for _, arg := range unfilled {
				name := strings.ToLower(arg.Name)
				desc := strings.ToLower(arg.Description)
				if name == candidate || strings.Contains(desc, candidate) {
					target = arg
					break priority
				}
			}
		}
	} else if !strings.EqualFold(target.Name, raw) {
		source = SourceSmartMapped
	}
	setUserValue(p, target.Name, raw, source)
}

func applyDefaults(def *prompt.Definition, p *Parsed, ctx *Context) {
	for _, arg := range def.Arguments {
		if !isEmptyValue(p.Values[arg.Name]) {
			continue
		}
		switch {
		case arg.Default != nil:
			p.Values[arg.Name] = arg.Default
			p.Sources[arg.Name] = SourceDefaultValue
		case ctx != nil && !isEmptyValue(ctx.PromptDefaults[arg.Name]):
			p.Values[arg.Name] = ctx.PromptDefaults[arg.Name]
			p.Sources[arg.Name] = SourcePromptDefault
		default:
			envKey := "PROMPT_" + strings.ToUpper(strings.ReplaceAll(arg.Name, "-", "_"))
			if v, ok := ctx.lookupEnv(envKey); ok {
				p.Values[arg.Name] = v
				p.Sources[arg.Name] = SourceEnvironment
			} else {
				p.Values[arg.Name] = ""
				p.Sources[arg.Name] = SourceEmptyFallback
			}
		}
	}
}

func coerceAll(def *prompt.Definition, p *Parsed) {
	for _, arg := range def.Arguments {
		value, ok := p.Values[arg.Name]
		if !ok {
			continue
		}
		p.Values[arg.Name] = Coerce(value, inferType(arg))
	}
}

// inferType returns the declared type, or one inferred from the argument
// description when the declaration is the default string.
func inferType(arg prompt.Argument) prompt.ArgType {
	if arg.Type != "" && arg.Type != prompt.ArgString {
		return arg.Type
	}
	desc := strings.ToLower(arg.Description)
	switch {
	case strings.Contains(desc, "number"):
		return prompt.ArgNumber
	case strings.Contains(desc, "list of"):
		return prompt.ArgArray
	case strings.Contains(desc, "json object"):
		return prompt.ArgObject
	}
	return arg.Type
}

// Coerce converts a string value toward the target type. Values that fail
// to coerce are returned unchanged.
func Coerce(value interface{}, typ prompt.ArgType) interface{} {
	s, isString := value.(string)
	if !isString {
		return value
	}
	switch typ {
	case prompt.ArgNumber:
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return n
		}
	case prompt.ArgBoolean:
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true":
			return true
		case "false":
			return false
		}
	case prompt.ArgArray:
		if strings.HasPrefix(strings.TrimSpace(s), "[") {
			var arr []interface{}
			if err := json.Unmarshal([]byte(s), &arr); err == nil {
				return arr
			}
		}
		if s == "" {
			return value
		}
		parts := strings.Split(s, ",")
		arr := make([]interface{}, 0, len(parts))
		for _, part := range parts {
			arr = append(arr, strings.TrimSpace(part))
		}
		return arr
	case prompt.ArgObject:
		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(s), &obj); err == nil {
			return obj
		}
	}
	return value
}

// Serialize renders a typed value back to its payload string form.
// Coerce(Serialize(v)) round-trips for every legal typed value.
func Serialize(value interface{}) string {
	switch t := value.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Sprintf("%v", value)
		}
		return string(data)
	}
}

func isEmptyValue(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == "" || placeholderPattern.MatchString(strings.TrimSpace(t))
	case []interface{}:
		return len(t) == 0
	}
	return false
}
