// Package inputs rewrites plain-text simulation input files made of
// "Namespace.field = value" lines, the non-JSON target kind of a parameter
// space. Rewrites happen in place per run directory and annotate the lines
// they touch, so a run's effective configuration stays auditable.
package inputs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// alteredMark annotates lines whose value was replaced; addedMark annotates
// fields appended because they were missing from the template.
const (
	alteredMark = "# [script-altered]"
	addedMark   = "#[script-added]"
)

// ErrFieldNotFound reports a field read from a file that does not define it.
var ErrFieldNotFound = fmt.Errorf("input field not found")

// SetField replaces the value of the first "field = value" line matching
// field in the file at path, preserving the value's leading whitespace and
// re-attaching any trailing comment after an altered-mark. A missing field
// is appended at the end with an added-mark instead.
func SetField(path, field string, value any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading input file: %w", err)
	}

	lines := strings.Split(string(data), "\n")
	found := false
	for i, line := range lines {
		if found || !strings.HasPrefix(line, field) {
			continue
		}

		content, comment := line, ""
		commentPos := strings.IndexByte(line, '#')
		if commentPos >= 0 {
			comment = strings.TrimRight(line[commentPos+1:], " \t")
			content = line[:commentPos]
		}

		address, rawValue, ok := strings.Cut(content, "=")
		if !ok {
			continue
		}
		if strings.TrimSpace(address) != field {
			continue
		}
		found = true

		newLine := address + "=" + leadingWhitespace(rawValue) + FormatValue(value)
		// Push the mark out to the original comment column when it fits, so
		// aligned input files stay aligned.
		if commentPos >= 0 && len(newLine)+1 <= commentPos {
			newLine += strings.Repeat(" ", commentPos-len(newLine)-1)
		}
		newLine += " " + alteredMark + comment
		lines[i] = newLine
	}

	if !found {
		appended := fmt.Sprintf("%s = %s %s", field, FormatValue(value), addedMark)
		if len(lines) > 0 && lines[len(lines)-1] == "" {
			lines[len(lines)-1] = appended
			lines = append(lines, "")
		} else {
			lines = append(lines, appended)
		}
	}

	out := strings.Join(lines, "\n")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(out), 0644); err != nil {
		return fmt.Errorf("writing input file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming input file: %w", err)
	}
	return nil
}

// ReadFloatField returns the numeric value of the first matching
// "field = value" line. Jobscripts use this to re-read fields they may then
// raise and rewrite.
func ReadFloatField(path, field string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading input file: %w", err)
	}

	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, field) {
			continue
		}
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		address, rawValue, ok := strings.Cut(line, "=")
		if !ok || strings.TrimSpace(address) != field {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rawValue), 64)
		if err != nil {
			return 0, fmt.Errorf("field %q in %s: %w", field, path, err)
		}
		return v, nil
	}
	return 0, fmt.Errorf("%w: %q in %s", ErrFieldNotFound, field, path)
}

// FormatValue renders a parameter value for an input file. Lists become
// space-separated; numeric values use the shortest round-trip notation, so
// 1e-06 stays readable instead of expanding to a digit string.
func FormatValue(value any) string {
	if seq, ok := value.([]any); ok {
		parts := make([]string, len(seq))
		for i, v := range seq {
			parts[i] = FormatValue(v)
		}
		return strings.Join(parts, " ")
	}
	switch v := value.(type) {
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

func leadingWhitespace(s string) string {
	trimmed := strings.TrimLeft(s, " \t")
	return s[:len(s)-len(trimmed)]
}
