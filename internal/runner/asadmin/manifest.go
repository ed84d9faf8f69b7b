package asadmin

import (
	"bufio"
	"bytes"
	"strings"
)

// Manifest attribute names used by the __asadmin interface.
const (
	AttrExitCode = "exit-code"
	AttrMessage  = "message"
	AttrChildren = "children"
	AttrName     = "Name"

	// eol is the encoded line separator inside attribute values.
	eol = "%%%EOL%%%"
)

// Exit codes reported in the exit-code attribute.
const (
	ExitSuccess = "SUCCESS"
	ExitWarning = "WARNING"
	ExitFailure = "FAILURE"
)

// Section is a named group of attributes following the main section.
type Section struct {
	Name  string
	Attrs map[string]string
}

// Message returns the decoded message attribute of the section.
func (s Section) Message() string {
	return decodeValue(s.Attrs[AttrMessage])
}

// Manifest is a parsed __asadmin response: main attributes, a blank line,
// then sections starting with "Name:".
type Manifest struct {
	Main     map[string]string
	Sections []Section
}

// ParseManifest parses a manifest body. Lines starting with a single space
// continue the previous value.
func ParseManifest(data []byte) (*Manifest, error) {
	m := &Manifest{Main: make(map[string]string)}
	attrs := m.Main
	var lastKey string

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			lastKey = ""
			continue
		}
		if strings.HasPrefix(line, " ") {
			if lastKey == "" {
				return nil, &ParseError{Line: line, Reason: "continuation without attribute"}
			}
			attrs[lastKey] += line[1:]
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, &ParseError{Line: line, Reason: "missing ':'"}
		}
		value = strings.TrimPrefix(value, " ")
		if key == AttrName {
			m.Sections = append(m.Sections, Section{Name: value, Attrs: make(map[string]string)})
			attrs = m.Sections[len(m.Sections)-1].Attrs
			lastKey = ""
			continue
		}
		attrs[key] = value
		lastKey = key
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if _, ok := m.Main[AttrExitCode]; !ok {
		return nil, &ParseError{Reason: "no exit-code attribute"}
	}
	return m, nil
}

// ExitCode returns the exit-code attribute.
func (m *Manifest) ExitCode() string {
	return strings.ToUpper(strings.TrimSpace(m.Main[AttrExitCode]))
}

// Message returns the main message with encoded newlines restored.
func (m *Manifest) Message() string {
	return decodeValue(m.Main[AttrMessage])
}

// Children returns the child sections in the order listed by the children
// attribute, or in document order when that attribute is absent.
func (m *Manifest) Children() []Section {
	list := m.Main[AttrChildren]
	if list == "" {
		return m.Sections
	}
	byName := make(map[string]Section, len(m.Sections))
	for _, s := range m.Sections {
		byName[s.Name] = s
	}
	var out []Section
	for _, name := range strings.Split(list, ";") {
		if s, ok := byName[name]; ok {
			out = append(out, s)
		}
	}
	return out
}

// ParseError reports a malformed manifest.
type ParseError struct {
	Line   string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Line == "" {
		return "invalid manifest: " + e.Reason
	}
	return "invalid manifest line " + strings.TrimSpace(e.Line) + ": " + e.Reason
}

func decodeValue(v string) string {
	return strings.ReplaceAll(v, eol, "\n")
}
