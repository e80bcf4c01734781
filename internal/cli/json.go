package cli

import (
	"regexp"
	"strings"
)

// object keys, string values, literals and numbers
var jsonToken = regexp.MustCompile(`"(?:\\.|[^\\"])*"(?:\s*:)?|\b(?:true|false|null)\b|-?\d+(?:\.\d+)?(?:[eE][+-]?\d+)?`)

// HighlightJSON colors the tokens of a JSON document for terminal output.
// Malformed input is colored token by token and never rejected.
func HighlightJSON(doc string) string {
	if !Enabled() {
		return doc
	}
	return jsonToken.ReplaceAllStringFunc(doc, colorToken)
}

func colorToken(tok string) string {
	if key, isKey := strings.CutSuffix(tok, ":"); isKey {
		return Style(strings.TrimRight(key, " \t"), Blue) + ":"
	}
	switch tok {
	case "true", "false":
		return Style(tok, Yellow)
	case "null":
		return Style(tok, Dim)
	}
	if tok[0] == '"' {
		return Style(tok, Green)
	}
	return Style(tok, Purple)
}
