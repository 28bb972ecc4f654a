package codec

import (
	"bufio"
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/quartzdb/jobstore/internal/types"
)

// encodeProperties serialises the map to a key=value text stream (spec §4.2
// properties mode). Any non-string value, or an explicit nil value, fails
// the encode with ErrCodecConstraint before any row is touched (spec §9's
// Open Question is resolved here: nulls are rejected, not silently coerced
// to the empty string).
func encodeProperties(m *types.JobDataMap) ([]byte, error) {
	flat := m.WithoutTransient()
	var buf bytes.Buffer
	for _, k := range sortedKeys(flat) {
		v := flat[k]
		if v == nil {
			return nil, fmt.Errorf("%w: key %q has a nil value", types.ErrCodecConstraint, k)
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: key %q has non-string value type %T", types.ErrCodecConstraint, k, v)
		}
		buf.WriteString(escapeProperty(k))
		buf.WriteByte('=')
		buf.WriteString(escapeProperty(s))
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// decodeProperties reconstructs a JobDataMap from a key=value text stream.
func decodeProperties(data []byte) (*types.JobDataMap, error) {
	m := types.NewJobDataMap()
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		idx := unescapedIndex(line)
		if idx < 0 {
			return nil, fmt.Errorf("%w: malformed properties line %q", types.ErrCodecConstraint, line)
		}
		key := unescapeProperty(line[:idx])
		value := unescapeProperty(line[idx+1:])
		m.Put(key, value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("decode properties job data: %w", err)
	}
	return m, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Deterministic on-disk order keeps byte-for-byte output stable across
	// encodes of the same logical map, which simplifies diffing fixtures.
	sort.Strings(keys)
	return keys
}

func escapeProperty(s string) string {
	r := strings.NewReplacer("\\", "\\\\", "\n", "\\n", "=", "\\=")
	return r.Replace(s)
}

func unescapeProperty(s string) string {
	var out strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
			switch s[i] {
			case 'n':
				out.WriteByte('\n')
			default:
				out.WriteByte(s[i])
			}
			continue
		}
		out.WriteByte(s[i])
	}
	return out.String()
}

// unescapedIndex finds the first '=' not preceded by an odd run of
// backslashes (i.e. not escaped).
func unescapedIndex(line string) int {
	backslashes := 0
	for i := 0; i < len(line); i++ {
		if line[i] == '\\' {
			backslashes++
			continue
		}
		if line[i] == '=' && backslashes%2 == 0 {
			return i
		}
		backslashes = 0
	}
	return -1
}
