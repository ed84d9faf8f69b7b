package runner

import "strings"

// MessageLines splits a server message into trimmed, non-empty lines.
// Status lines such as "Command list-applications executed successfully."
// and "Nothing to list." are dropped.
func MessageLines(msg string) []string {
	var out []string
	for _, line := range strings.Split(msg, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line == "" || isStatusLine(line) {
			continue
		}
		out = append(out, line)
	}
	return out
}

func isStatusLine(line string) bool {
	l := strings.ToLower(line)
	return strings.HasPrefix(l, "nothing to list") ||
		(strings.HasPrefix(l, "command ") && strings.Contains(l, "executed successfully"))
}

// KeyValues parses key=value lines. Lines without '=' are ignored and the
// last occurrence of a key wins.
func KeyValues(lines []string) map[string]string {
	out := make(map[string]string, len(lines))
	for _, line := range lines {
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		out[k] = strings.TrimSpace(v)
	}
	return out
}

// FirstFields returns the first whitespace-separated field of each line,
// e.g. the application name of "hello <web>".
func FirstFields(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if f := strings.Fields(line); len(f) > 0 {
			out = append(out, f[0])
		}
	}
	return out
}
