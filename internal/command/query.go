package command

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/eugenetaranov/dasctl/internal/runner"
)

// Query string syntax shared by the HTTP and REST interfaces.
const (
	// ParamSeparator joins key=value pairs.
	ParamSeparator = "&"
	// ParamAssign separates a key from its value.
	ParamAssign = "="
	// ItemSeparator joins list items inside one value.
	ItemSeparator = ":"
	// DefaultParam carries the command's primary operand.
	DefaultParam = "DEFAULT"
	// PropertyParam carries key=value properties.
	PropertyParam = "property"
)

// localOnly lists parameters consumed by the local runner, never sent to a DAS.
var localOnly = map[string]bool{
	"java-home":  true,
	"vm-options": true,
	"env":        true,
	"workdir":    true,
	"upload":     true,
}

// Pair is one encoded query parameter.
type Pair struct {
	Key   string
	Value string
}

// Encode joins pairs into a query string, percent-encoding keys and values.
func Encode(pairs []Pair) string {
	var b strings.Builder
	for i, p := range pairs {
		if i > 0 {
			b.WriteString(ParamSeparator)
		}
		b.WriteString(url.QueryEscape(p.Key))
		b.WriteString(ParamAssign)
		b.WriteString(url.QueryEscape(p.Value))
	}
	return b.String()
}

// ParseQuery splits a query string into key/value pairs, decoding each once.
// Repeated keys keep the last value.
func ParseQuery(q string) (map[string]string, error) {
	pairs, err := parsePairs(q)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		out[p.Key] = p.Value
	}
	return out, nil
}

func parsePairs(q string) ([]Pair, error) {
	var pairs []Pair
	for _, part := range strings.Split(q, ParamSeparator) {
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, ParamAssign)
		k, err := url.QueryUnescape(key)
		if err != nil {
			return nil, fmt.Errorf("invalid query key %q: %w", key, err)
		}
		v, err := url.QueryUnescape(value)
		if err != nil {
			return nil, fmt.Errorf("invalid query value for %q: %w", k, err)
		}
		pairs = append(pairs, Pair{Key: k, Value: v})
	}
	return pairs, nil
}

// QueryPairs returns the decoded pairs of the command's query string in
// wire order. Form-based transports send these as fields.
func QueryPairs(c *Command) ([]Pair, error) {
	q, err := c.Query()
	if err != nil {
		return nil, err
	}
	return parsePairs(q)
}

// EncodeProperties renders properties as k1=v1:k2=v2, sorted by key.
// Item separators inside values are escaped with a backslash.
func EncodeProperties(props map[string]string) string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	items := make([]string, 0, len(keys))
	for _, k := range keys {
		items = append(items, k+ParamAssign+escapeItem(props[k]))
	}
	return strings.Join(items, ItemSeparator)
}

// ParseProperties is the inverse of EncodeProperties.
func ParseProperties(s string) (map[string]string, error) {
	out := make(map[string]string)
	if s == "" {
		return out, nil
	}
	for _, item := range splitItems(s) {
		k, v, ok := strings.Cut(item, ParamAssign)
		if !ok || k == "" {
			return nil, runner.Errorf(runner.CodeInvalidComponentItem, nil, item, PropertyParam, "properties")
		}
		out[k] = v
	}
	return out, nil
}

func escapeItem(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, ItemSeparator, `\`+ItemSeparator)
}

// splitItems splits on unescaped item separators and removes the escapes.
func splitItems(s string) []string {
	var items []string
	var cur strings.Builder
	escaped := false
	for _, r := range s {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case string(r) == ItemSeparator:
			items = append(items, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	return append(items, cur.String())
}

// Pairs converts the command parameters to query pairs, sorted by key, with
// DEFAULT last. Local-only and underscore-prefixed parameters are skipped.
func Pairs(c *Command) ([]Pair, error) {
	keys := sortedKeys(c.Params)
	pairs := make([]Pair, 0, len(keys))
	var operand *Pair
	for _, k := range keys {
		if localOnly[k] || strings.HasPrefix(k, "_") {
			continue
		}
		v, err := encodeValue(c, k, c.Params[k])
		if err != nil {
			return nil, err
		}
		if k == DefaultParam {
			operand = &Pair{Key: k, Value: v}
			continue
		}
		pairs = append(pairs, Pair{Key: k, Value: v})
	}
	if operand != nil {
		pairs = append(pairs, *operand)
	}
	return pairs, nil
}

func encodeValue(c *Command, key string, v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case bool:
		return strconv.FormatBool(val), nil
	case int:
		return strconv.Itoa(val), nil
	case []string:
		return joinItems(val), nil
	case []any:
		items := make([]string, 0, len(val))
		for _, item := range val {
			switch item.(type) {
			case string, bool, int, int64, float64:
				items = append(items, fmt.Sprint(item))
			default:
				return "", runner.Errorf(runner.CodeInvalidComponentItem, nil, fmt.Sprint(item), key, c.Name)
			}
		}
		return joinItems(items), nil
	case map[string]string:
		return EncodeProperties(val), nil
	case map[string]any:
		return EncodeProperties(c.StringMap(key)), nil
	default:
		return fmt.Sprint(val), nil
	}
}

func joinItems(items []string) string {
	escaped := make([]string, len(items))
	for i, item := range items {
		escaped[i] = escapeItem(item)
	}
	return strings.Join(escaped, ItemSeparator)
}

// WirePairs returns the parameters of c as they go on the wire: the operand
// parameter moved to DEFAULT and renamed parameters under their wire names.
func WirePairs(c *Command) ([]Pair, error) {
	if c.operand == "" && len(c.renames) == 0 {
		return Pairs(c)
	}
	params := make(Params, len(c.Params))
	for k, v := range c.Params {
		switch {
		case k == c.operand:
			params[DefaultParam] = v
		case c.renames[k] != "":
			params[c.renames[k]] = v
		default:
			params[k] = v
		}
	}
	return Pairs(&Command{Kind: c.Kind, Name: c.Name, Params: params})
}

// GenericQuery encodes every parameter as key=value.
func GenericQuery(c *Command) (string, error) {
	pairs, err := WirePairs(c)
	if err != nil {
		return "", err
	}
	return Encode(pairs), nil
}
