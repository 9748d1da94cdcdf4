package env

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// Pair is a single KEY=VALUE environment entry.
type Pair struct {
	Key   string
	Value string
}

// List is an ordered sequence of pairs with unique keys.
// It preserves the order entries were written in the configuration.
type List []Pair

// ParseList parses a comma-separated list of KEY=VALUE entries, the format of
// the controller's `environment` option. Values may be wrapped in single or
// double quotes to protect commas. Duplicate keys within the same list are an
// error; empty entries (trailing commas) are skipped.
func ParseList(s string) (List, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out List
	seen := make(map[string]struct{})
	for _, item := range splitQuoted(s, ',') {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		p, err := ParsePair(item)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[p.Key]; dup {
			return nil, fmt.Errorf("duplicate environment key %q", p.Key)
		}
		seen[p.Key] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}

// ParsePair parses one KEY=VALUE entry. A value may be wrapped in single or
// double quotes; the wrapping quote must not appear inside it. Unquoted values
// must not contain quote characters, so every accepted value re-serializes
// losslessly through String.
func ParsePair(s string) (Pair, error) {
	i := strings.IndexByte(s, '=')
	if i < 0 {
		return Pair{}, fmt.Errorf("environment entry %q is not KEY=VALUE", s)
	}
	k := strings.TrimSpace(s[:i])
	if k == "" {
		return Pair{}, fmt.Errorf("environment entry %q has an empty key", s)
	}
	if strings.ContainsAny(k, " \t\"'") {
		return Pair{}, fmt.Errorf("environment key %q contains invalid characters", k)
	}
	v := strings.TrimSpace(s[i+1:])
	if len(v) > 0 && (v[0] == '\'' || v[0] == '"') {
		q := v[0]
		if len(v) < 2 || v[len(v)-1] != q {
			return Pair{}, fmt.Errorf("environment value for %q has an unterminated quote", k)
		}
		inner := v[1 : len(v)-1]
		if strings.IndexByte(inner, q) >= 0 {
			return Pair{}, fmt.Errorf("environment value for %q contains its own quote character", k)
		}
		return Pair{Key: k, Value: inner}, nil
	}
	if strings.ContainsAny(v, "\"'") {
		return Pair{}, fmt.Errorf("environment value for %q contains a bare quote; quote the whole value", k)
	}
	return Pair{Key: k, Value: v}, nil
}

// String serializes the list back to the comma-separated option format.
// Values containing commas, quotes or surrounding whitespace are wrapped in
// whichever quote they do not contain, so ParseList(l.String()) yields the
// same pairs. ParsePair never accepts a value holding both quote characters.
func (l List) String() string {
	parts := make([]string, 0, len(l))
	for _, p := range l {
		v := p.Value
		if strings.ContainsAny(v, ",'\"") || v != strings.TrimSpace(v) {
			q := `"`
			if strings.Contains(v, `"`) {
				q = `'`
			}
			v = q + v + q
		}
		parts = append(parts, p.Key+"="+v)
	}
	return strings.Join(parts, ",")
}

// Lookup returns the value for key and whether it is present.
func (l List) Lookup(key string) (string, bool) {
	for _, p := range l {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Strings returns the list as KEY=VALUE items.
func (l List) Strings() []string {
	out := make([]string, 0, len(l))
	for _, p := range l {
		out = append(out, p.Key+"="+p.Value)
	}
	return out
}

// Env composes the final process environment from a cached OS base plus
// override layers.
type Env struct {
	base map[string]string
}

func New() *Env { return &Env{} }

// FromOS caches the current process environment as the base.
func (e *Env) FromOS() {
	base := make(map[string]string)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i > 0 {
			base[kv[:i]] = kv[i+1:]
		}
	}
	e.base = base
}

// Merge composes the environment: the OS base first, then each layer in order,
// later layers winning for identical keys. ${VAR} references are expanded from
// the composed map (simple expansion, no recursion). The result is sorted so
// identical inputs always produce identical slices.
func (e *Env) Merge(layers ...List) []string {
	if e.base == nil {
		e.FromOS()
	}
	m := make(map[string]string, len(e.base))
	for k, v := range e.base {
		m[k] = v
	}
	for _, layer := range layers {
		for _, p := range layer {
			if p.Key == "" {
				continue
			}
			m[p.Key] = p.Value
		}
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+expand(v, m))
	}
	sort.Strings(out)
	return out
}

func expand(s string, m map[string]string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	res := s
	for k, v := range m {
		res = strings.ReplaceAll(res, "${"+k+"}", v)
	}
	return res
}

// splitQuoted splits s on sep, ignoring separators inside single or double
// quotes.
func splitQuoted(s string, sep byte) []string {
	var out []string
	var quote byte
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == sep:
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
