// Package expr implements variable interpolation and a closed predicate
// grammar for workflow conditions. Expressions are recognized, never
// evaluated by a host language: anything outside the grammar is false.
package expr

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_.]*)\}`)

// Interpolate replaces ${name} placeholders with the string form of the
// named variable. Unknown names are left intact.
func Interpolate(s string, vars map[string]interface{}) string {
	if !strings.Contains(s, "${") {
		return s
	}

	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		value, ok := vars[name]
		if !ok {
			return match
		}
		return Stringify(value)
	})
}

// InterpolateValue applies Interpolate recursively to strings inside maps
// and slices, returning a new value with the same shape.
func InterpolateValue(v interface{}, vars map[string]interface{}) interface{} {
	switch val := v.(type) {
	case string:
		return Interpolate(val, vars)
	case map[string]interface{}:
		result := make(map[string]interface{}, len(val))
		for k, item := range val {
			result[k] = InterpolateValue(item, vars)
		}
		return result
	case []interface{}:
		result := make([]interface{}, len(val))
		for i, item := range val {
			result[i] = InterpolateValue(item, vars)
		}
		return result
	default:
		return v
	}
}

// Stringify renders a variable value for interpolation. Composite values
// are rendered as JSON.
func Stringify(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case map[string]interface{}, []interface{}:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// EvalPredicate evaluates a condition expression against the variable map.
// The grammar after interpolation is closed:
//
//	A == B
//	A != B
//	A contains B   (case-insensitive substring)
//	atom           (boolean literal or identifier lookup)
//
// Comparison operands resolve through the scope: a quoted token is a
// literal, an identifier bound in the scope reads its value, anything else
// is taken verbatim. A bare atom outside the boolean literals looks up the
// scope and coerces the value; unknown identifiers resolve to null.
// Out-of-grammar input evaluates to false, never to an error.
func EvalPredicate(expression string, vars map[string]interface{}) bool {
	resolved := strings.TrimSpace(Interpolate(expression, vars))
	if resolved == "" {
		return false
	}

	if left, right, ok := splitOperator(resolved, "=="); ok {
		return operand(left, vars) == operand(right, vars)
	}
	if left, right, ok := splitOperator(resolved, "!="); ok {
		return operand(left, vars) != operand(right, vars)
	}
	if left, right, ok := splitOperator(resolved, " contains "); ok {
		return strings.Contains(
			strings.ToLower(operand(left, vars)),
			strings.ToLower(operand(right, vars)),
		)
	}

	return truthyAtom(resolved, vars)
}

func splitOperator(expression, op string) (string, string, bool) {
	idx := strings.Index(expression, op)
	if idx < 0 {
		return "", "", false
	}
	return strings.TrimSpace(expression[:idx]), strings.TrimSpace(expression[idx+len(op):]), true
}

// operand resolves one comparison side to its string form.
func operand(token string, vars map[string]interface{}) string {
	if unquoted, ok := stripQuotes(token); ok {
		return unquoted
	}
	if value, bound := vars[token]; bound {
		return Stringify(value)
	}
	return token
}

func stripQuotes(s string) (string, bool) {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1], true
		}
	}
	return s, false
}

// truthyAtom coerces a bare atom: boolean literals first, then identifier
// lookup against the scope. Unknown identifiers and out-of-grammar syntax
// are false.
func truthyAtom(atom string, vars map[string]interface{}) bool {
	if unquoted, ok := stripQuotes(atom); ok {
		atom = unquoted
	}
	switch strings.ToLower(atom) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no", "", "null", "none":
		return false
	}
	if value, bound := vars[atom]; bound {
		return truthyValue(value)
	}
	return false
}

func truthyValue(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "", "false", "0", "no":
			return false
		}
		return true
	case int:
		return val != 0
	case int64:
		return val != 0
	case float64:
		return val != 0
	case []interface{}:
		return len(val) > 0
	case map[string]interface{}:
		return len(val) > 0
	default:
		return true
	}
}
