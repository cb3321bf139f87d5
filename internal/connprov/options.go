package connprov

import (
	"strconv"
	"strings"
)

// Option values for Secure.
const (
	Yes = "Yes"
	No  = "No"
)

// OptionSet is the validated, case-folded view of a provider's options.
type OptionSet struct {
	values map[string]string
	set    map[string]bool
}

// ParseOptions validates every option name against known (matched
// case-insensitively). An unknown name fails with InvalidValue naming it.
// Later duplicates win.
func ParseOptions(opts []Option, known ...string) (OptionSet, error) {
	canon := make(map[string]string, len(known))
	for _, k := range known {
		canon[strings.ToLower(k)] = k
	}
	out := OptionSet{
		values: make(map[string]string, len(opts)),
		set:    make(map[string]bool, len(opts)),
	}
	for _, opt := range opts {
		name, ok := canon[strings.ToLower(strings.TrimSpace(opt.Name))]
		if !ok {
			return OptionSet{}, InvalidValue("Invalid option: %s", opt.Name)
		}
		out.values[name] = opt.Value
		out.set[name] = true
	}
	return out, nil
}

// Get returns the raw value of name and whether it was given.
func (s OptionSet) Get(name string) (string, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Uint parses name as an unsigned integer in [0, max].
func (s OptionSet) Uint(name string, max uint64) (uint64, bool, error) {
	raw, ok := s.values[name]
	if !ok {
		return 0, false, nil
	}
	v, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || v > max {
		return 0, true, InvalidValue("%s must be a number from 0 to %d: %q", name, max, raw)
	}
	return v, true, nil
}

// YesNo parses name as Yes|No (case-insensitive).
func (s OptionSet) YesNo(name string) (bool, bool, error) {
	raw, ok := s.values[name]
	if !ok {
		return false, false, nil
	}
	switch {
	case strings.EqualFold(strings.TrimSpace(raw), Yes):
		return true, true, nil
	case strings.EqualFold(strings.TrimSpace(raw), No):
		return false, true, nil
	default:
		return false, true, InvalidValue("%s must be set to %s or %s", strings.ToUpper(name), Yes, No)
	}
}

// FormatBool renders a flag as the Yes|No option text.
func FormatBool(v bool) string {
	if v {
		return Yes
	}
	return No
}

// CloneOptions returns a copy of opts.
func CloneOptions(opts []Option) []Option {
	out := make([]Option, len(opts))
	copy(out, opts)
	return out
}
