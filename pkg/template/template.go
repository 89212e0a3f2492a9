// Package template provides {dotted.path} token substitution for action
// configuration strings.
package template

import (
	"fmt"
	"regexp"

	"github.com/rbarros/cascata/pkg/models"
)

var tokenPattern = regexp.MustCompile(`\{([A-Za-z0-9_][A-Za-z0-9_.-]*)\}`)

// Render replaces every {identifier} occurrence with the value resolved from
// the context via dotted-path lookup. A token that fails to resolve is left
// as its literal text so that a templating mistake never aborts a workflow.
func Render(input string, context map[string]any) string {
	return tokenPattern.ReplaceAllStringFunc(input, func(token string) string {
		path := token[1 : len(token)-1]

		value, ok := models.ResolvePath(context, path)
		if !ok {
			return token
		}

		return stringify(value)
	})
}

func stringify(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case nil:
		return ""
	case float64:
		// JSON decodes every number to float64; keep whole numbers clean.
		if typed == float64(int64(typed)) {
			return fmt.Sprintf("%d", int64(typed))
		}

		return fmt.Sprintf("%v", typed)
	default:
		return fmt.Sprintf("%v", typed)
	}
}
