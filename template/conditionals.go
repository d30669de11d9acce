package template

import (
	"fmt"
	"strings"
)

// Conditional tag delimiters.
const (
	tagOpen  = "{%"
	tagClose = "%}"
)

// evalConditionals evaluates {%if%} / {%elif%} / {%else%} / {%endif%} blocks
// against the variable map. Blocks may nest. Conditions are one of:
//
//	var             truthy check (non-empty, not "false", not "0")
//	!var            negated truthy check
//	var == "text"   string equality
//	var != "text"   string inequality
func evalConditionals(text string, vars map[string]string) (string, error) {
	if !strings.Contains(text, tagOpen) {
		return text, nil
	}

	out, rest, err := evalBlock(text, vars, false)
	if err != nil {
		return "", err
	}
	if rest != "" {
		return "", fmt.Errorf("unexpected conditional tag near %q", truncate(rest, 40))
	}
	return out, nil
}

// evalBlock renders text until an elif/else/endif tag belonging to the
// enclosing block (when nested is true) or until end of input. It returns the
// rendered output and the unconsumed remainder starting at the terminating tag.
func evalBlock(text string, vars map[string]string, nested bool) (string, string, error) {
	var sb strings.Builder
	rest := text

	for {
		start := strings.Index(rest, tagOpen)
		if start < 0 {
			sb.WriteString(rest)
			return sb.String(), "", nil
		}

		end := strings.Index(rest[start:], tagClose)
		if end < 0 {
			return "", "", fmt.Errorf("unterminated %q tag", tagOpen)
		}
		end += start

		tag := strings.TrimSpace(rest[start+len(tagOpen) : end])
		switch {
		case strings.HasPrefix(tag, "if "), tag == "if":
			sb.WriteString(rest[:start])
			rendered, remainder, err := evalIf(rest[start:], vars)
			if err != nil {
				return "", "", err
			}
			sb.WriteString(rendered)
			rest = remainder

		case strings.HasPrefix(tag, "elif"), tag == "else", tag == "endif":
			if !nested {
				return "", "", fmt.Errorf("%q without matching if", tag)
			}
			sb.WriteString(rest[:start])
			return sb.String(), rest[start:], nil

		default:
			return "", "", fmt.Errorf("unknown conditional tag %q", tag)
		}
	}
}

// evalIf consumes a full if/elif/else/endif construct starting at text[0]
// (which must be an if tag) and returns the selected branch rendered, plus
// the remainder after endif.
func evalIf(text string, vars map[string]string) (string, string, error) {
	rest := text
	taken := false
	var result string

	for {
		end := strings.Index(rest, tagClose)
		if end < 0 {
			return "", "", fmt.Errorf("unterminated %q tag", tagOpen)
		}
		tag := strings.TrimSpace(rest[len(tagOpen):end])
		rest = rest[end+len(tagClose):]

		switch {
		case strings.HasPrefix(tag, "if "), strings.HasPrefix(tag, "elif "):
			cond := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(tag, "elif"), "if"))
			match, err := evalCondition(cond, vars)
			if err != nil {
				return "", "", err
			}

			rendered, remainder, err := evalBlock(rest, vars, true)
			if err != nil {
				return "", "", err
			}
			if remainder == "" {
				return "", "", fmt.Errorf("missing endif")
			}
			if match && !taken {
				taken = true
				result = rendered
			}
			rest = remainder

		case tag == "else":
			rendered, remainder, err := evalBlock(rest, vars, true)
			if err != nil {
				return "", "", err
			}
			if remainder == "" {
				return "", "", fmt.Errorf("missing endif")
			}
			if !taken {
				taken = true
				result = rendered
			}
			rest = remainder

		case tag == "endif":
			return result, rest, nil

		default:
			return "", "", fmt.Errorf("unexpected tag %q inside conditional", tag)
		}
	}
}

// evalCondition evaluates a single condition expression against vars.
func evalCondition(cond string, vars map[string]string) (bool, error) {
	if cond == "" {
		return false, fmt.Errorf("empty condition")
	}

	for _, op := range []string{"==", "!="} {
		if idx := strings.Index(cond, op); idx >= 0 {
			name := strings.TrimSpace(cond[:idx])
			lit := strings.TrimSpace(cond[idx+len(op):])
			lit = strings.Trim(lit, `"'`)
			eq := vars[name] == lit
			if op == "!=" {
				return !eq, nil
			}
			return eq, nil
		}
	}

	if strings.HasPrefix(cond, "!") {
		return !truthy(vars[strings.TrimSpace(cond[1:])]), nil
	}
	return truthy(vars[cond]), nil
}

// truthy reports whether a variable value counts as set.
func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "false", "0":
		return false
	}
	return true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
