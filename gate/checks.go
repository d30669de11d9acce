package gate

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/jmespath/go-jmespath"
	"gopkg.in/yaml.v3"
)

// CheckResult holds the outcome of one pass criterion.
type CheckResult struct {
	OK      bool
	Code    string
	Message string
	// Score is an optional 0..1 quality signal; -1 means not scored.
	Score float64
}

func pass() CheckResult { return CheckResult{OK: true, Score: -1} }

func fail(code, format string, args ...interface{}) CheckResult {
	return CheckResult{OK: false, Code: code, Message: fmt.Sprintf(format, args...), Score: -1}
}

// CheckFunc evaluates one criterion against rendered content.
type CheckFunc func(content string, params map[string]interface{}) CheckResult

// Checks maps check names to implementations. Gates reference checks by
// name in their pass_criteria, so unknown names fail loudly at evaluation
// time rather than being silently skipped.
type Checks struct {
	mu    sync.RWMutex
	funcs map[string]CheckFunc
}

// NewChecks creates a check registry with the built-in checks registered.
func NewChecks() *Checks {
	c := &Checks{funcs: make(map[string]CheckFunc)}
	c.Register("format", checkFormat)
	c.Register("section_presence", checkSectionPresence)
	c.Register("hierarchy", checkHierarchy)
	c.Register("code_quality", checkCodeQuality)
	c.Register("required_fields", checkRequiredFields)
	c.Register("completeness", checkCompleteness)
	c.Register("security_scan", checkSecurityScan)
	c.Register("phrase", checkPhrase)
	c.Register("word_count", checkWordCount)
	return c
}

// Register adds or replaces a check implementation.
func (c *Checks) Register(name string, fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.funcs[name] = fn
}

// Get retrieves a check by name.
func (c *Checks) Get(name string) (CheckFunc, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn, ok := c.funcs[name]
	return fn, ok
}

// Param helpers. YAML decoding yields interface{} values, so every check
// goes through these instead of direct type assertions.

func paramString(params map[string]interface{}, key string) (string, bool) {
	v, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func paramInt(params map[string]interface{}, key string) (int, bool) {
	switch v := params[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

func paramStrings(params map[string]interface{}, key string) []string {
	var out []string
	switch v := params[key].(type) {
	case []string:
		out = v
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

// checkFormat verifies the content parses as the declared format.
// params: format: markdown | json | yaml
func checkFormat(content string, params map[string]interface{}) CheckResult {
	format, _ := paramString(params, "format")
	switch format {
	case "json":
		var v interface{}
		if err := json.Unmarshal([]byte(content), &v); err != nil {
			return fail("FORMAT_INVALID", "content is not valid JSON: %v", err)
		}
	case "yaml":
		var v interface{}
		if err := yaml.Unmarshal([]byte(content), &v); err != nil {
			return fail("FORMAT_INVALID", "content is not valid YAML: %v", err)
		}
	case "markdown", "":
		// Markdown is permissive; reject only content with no structure at
		// all when a minimum is demanded.
		if min, ok := paramInt(params, "min_headers"); ok {
			if n := len(headerPattern.FindAllString(content, -1)); n < min {
				return fail("FORMAT_INVALID", "expected at least %d markdown headers, found %d", min, n)
			}
		}
	default:
		return fail("UNKNOWN_FORMAT", "unsupported format %q", format)
	}
	return pass()
}

var headerPattern = regexp.MustCompile(`(?m)^#{1,6}\s+\S`)

// checkSectionPresence verifies every named section appears as a header.
// params: sections: [name, ...]
func checkSectionPresence(content string, params map[string]interface{}) CheckResult {
	sections := paramStrings(params, "sections")
	lower := strings.ToLower(content)
	var missing []string
	for _, section := range sections {
		needle := strings.ToLower(section)
		found := false
		for _, header := range headerPattern.FindAllString(lower, -1) {
			if strings.Contains(header, needle) {
				found = true
				break
			}
		}
		if !found && !strings.Contains(lower, needle) {
			missing = append(missing, section)
		}
	}
	if len(missing) > 0 {
		return fail("SECTION_MISSING", "missing sections: %s", strings.Join(missing, ", "))
	}
	return pass()
}

// checkHierarchy verifies markdown header structure: a single H1, no
// header-depth jumps, and no two headers with no body between them.
func checkHierarchy(content string, params map[string]interface{}) CheckResult {
	lines := strings.Split(content, "\n")
	prevDepth := 0
	prevWasHeader := false
	h1Count := 0
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "#") {
			if trimmed != "" {
				prevWasHeader = false
			}
			continue
		}
		depth := 0
		for depth < len(trimmed) && trimmed[depth] == '#' {
			depth++
		}
		if depth > 6 || depth >= len(trimmed) || trimmed[depth] != ' ' {
			prevWasHeader = false
			continue
		}
		if depth == 1 {
			h1Count++
		}
		if prevDepth > 0 && depth > prevDepth+1 {
			return fail("HIERARCHY_SKIP", "header depth jumps from H%d to H%d", prevDepth, depth)
		}
		if prevWasHeader {
			return fail("HIERARCHY_EMPTY", "consecutive headers with no content between them")
		}
		prevDepth = depth
		prevWasHeader = true
	}
	if requireH1, ok := params["require_h1"].(bool); ok && requireH1 && h1Count == 0 {
		return fail("HIERARCHY_NO_TITLE", "content has no top-level header")
	}
	if h1Count > 1 {
		return fail("HIERARCHY_MULTIPLE_TITLES", "content has %d top-level headers", h1Count)
	}
	return pass()
}

// checkCodeQuality applies structural heuristics to fenced code blocks:
// balanced brackets and an optional nesting-depth ceiling.
func checkCodeQuality(content string, params map[string]interface{}) CheckResult {
	maxDepth, hasMax := paramInt(params, "max_nesting")
	for _, block := range extractCodeBlocks(content) {
		depth, maxSeen := 0, 0
		for _, r := range block {
			switch r {
			case '{', '(', '[':
				depth++
				if depth > maxSeen {
					maxSeen = depth
				}
			case '}', ')', ']':
				depth--
				if depth < 0 {
					return fail("CODE_UNBALANCED", "code block has unbalanced brackets")
				}
			}
		}
		if depth != 0 {
			return fail("CODE_UNBALANCED", "code block has %d unclosed brackets", depth)
		}
		if hasMax && maxSeen > maxDepth {
			return fail("CODE_TOO_NESTED", "code block nests %d levels deep, limit is %d", maxSeen, maxDepth)
		}
	}
	return pass()
}

var fencePattern = regexp.MustCompile("(?s)```[a-zA-Z0-9]*\n(.*?)```")

func extractCodeBlocks(content string) []string {
	var blocks []string
	for _, m := range fencePattern.FindAllStringSubmatch(content, -1) {
		blocks = append(blocks, m[1])
	}
	return blocks
}

// checkRequiredFields parses the content as JSON and verifies every
// JMESPath expression resolves to a non-null value.
// params: paths: ["result.summary", "items[0].name", ...]
func checkRequiredFields(content string, params map[string]interface{}) CheckResult {
	paths := paramStrings(params, "paths")
	if len(paths) == 0 {
		return pass()
	}
	var doc interface{}
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return fail("FORMAT_INVALID", "required_fields needs JSON content: %v", err)
	}
	var missing []string
	for _, path := range paths {
		v, err := jmespath.Search(path, doc)
		if err != nil || v == nil {
			missing = append(missing, path)
		}
	}
	if len(missing) > 0 {
		return fail("FIELD_MISSING", "missing fields: %s", strings.Join(missing, ", "))
	}
	return pass()
}

// checkCompleteness scores coverage of expected topics and fails below a
// threshold. params: topics: [...], min_score: 0.8
func checkCompleteness(content string, params map[string]interface{}) CheckResult {
	topics := paramStrings(params, "topics")
	if len(topics) == 0 {
		return pass()
	}
	minScore := 1.0
	if v, ok := params["min_score"].(float64); ok {
		minScore = v
	}
	lower := strings.ToLower(content)
	covered := 0
	var missed []string
	for _, topic := range topics {
		if strings.Contains(lower, strings.ToLower(topic)) {
			covered++
		} else {
			missed = append(missed, topic)
		}
	}
	score := float64(covered) / float64(len(topics))
	if score < minScore {
		r := fail("INCOMPLETE", "covers %d/%d topics, missing: %s",
			covered, len(topics), strings.Join(missed, ", "))
		r.Score = score
		return r
	}
	return CheckResult{OK: true, Score: score}
}

// Security scanner patterns by tier. Standard includes basic; strict
// includes both.
var securityPatterns = map[string][]*regexp.Regexp{
	"basic": {
		regexp.MustCompile(`(?i)\brm\s+-rf\s+/`),
		regexp.MustCompile(`(?i)\beval\s*\(`),
		regexp.MustCompile(`(?i)curl\s+[^|]*\|\s*(?:ba)?sh`),
	},
	"standard": {
		regexp.MustCompile(`(?i)(?:api[_-]?key|secret|password)\s*[:=]\s*['"][^'"]{8,}['"]`),
		regexp.MustCompile(`-----BEGIN (?:RSA |EC |OPENSSH )?PRIVATE KEY-----`),
	},
	"strict": {
		regexp.MustCompile(`(?i)\bexec\s*\(`),
		regexp.MustCompile(`(?i)os\.system\s*\(`),
		regexp.MustCompile(`(?i)subprocess\.(?:call|run|Popen)\s*\(`),
	},
}

// checkSecurityScan flags dangerous constructs in the content.
// params: tier: basic | standard | strict (default standard)
func checkSecurityScan(content string, params map[string]interface{}) CheckResult {
	tier, _ := paramString(params, "tier")
	if tier == "" {
		tier = "standard"
	}
	var tiers []string
	switch tier {
	case "basic":
		tiers = []string{"basic"}
	case "standard":
		tiers = []string{"basic", "standard"}
	case "strict":
		tiers = []string{"basic", "standard", "strict"}
	default:
		return fail("UNKNOWN_TIER", "unsupported security tier %q", tier)
	}
	for _, t := range tiers {
		for _, pattern := range securityPatterns[t] {
			if loc := pattern.FindString(content); loc != "" {
				return fail("SECURITY_FLAG", "flagged construct (%s tier): %s", t, loc)
			}
		}
	}
	return pass()
}

// checkPhrase requires or forbids literal phrases, case-insensitive.
// params: require: [...], forbid: [...]
func checkPhrase(content string, params map[string]interface{}) CheckResult {
	lower := strings.ToLower(content)
	for _, phrase := range paramStrings(params, "require") {
		if !strings.Contains(lower, strings.ToLower(phrase)) {
			return fail("PHRASE_MISSING", "required phrase %q not found", phrase)
		}
	}
	for _, phrase := range paramStrings(params, "forbid") {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			return fail("PHRASE_FORBIDDEN", "forbidden phrase %q present", phrase)
		}
	}
	return pass()
}

// checkWordCount bounds the word count. params: min, max
func checkWordCount(content string, params map[string]interface{}) CheckResult {
	words := len(strings.Fields(content))
	if min, ok := paramInt(params, "min"); ok && words < min {
		return fail("TOO_SHORT", "content has %d words, minimum is %d", words, min)
	}
	if max, ok := paramInt(params, "max"); ok && words > max {
		return fail("TOO_LONG", "content has %d words, maximum is %d", words, max)
	}
	return pass()
}
