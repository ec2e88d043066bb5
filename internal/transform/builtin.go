package transform

import "strings"

func init() {
	Register("strip-sourcemaps", StripSourceMaps)
	Register("use-strict", UseStrict)
	Register("trim", TrimTrailingSpace)
}

// StripSourceMaps drops //# sourceMappingURL= comment lines. Artifacts carry
// no source, so the maps would point at nothing.
func StripSourceMaps(text string) string {
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "//# sourceMappingURL=") || strings.HasPrefix(trimmed, "//@ sourceMappingURL=") {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// UseStrict prepends a "use strict" directive unless the text already starts
// with one.
func UseStrict(text string) string {
	trimmed := strings.TrimLeft(text, " \t\r\n")
	if strings.HasPrefix(trimmed, `"use strict"`) || strings.HasPrefix(trimmed, `'use strict'`) {
		return text
	}
	return "\"use strict\";\n" + text
}

// TrimTrailingSpace removes trailing whitespace from every line.
func TrimTrailingSpace(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	return strings.Join(lines, "\n")
}
