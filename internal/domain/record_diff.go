package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// CanonicalValue renders an attribute value as the text used for change detection.
// Nil and NaN become the empty string so that a missing value equals an empty cell,
// and integral numbers drop their fraction so 5, 5.0 and "5" compare equal.
func CanonicalValue(value any) (string, error) {
	switch typed := value.(type) {
	case nil:
		return "", nil
	case string:
		return CanonicalNumber(typed), nil
	case *string:
		if typed == nil {
			return "", nil
		}
		return CanonicalNumber(*typed), nil
	case time.Time:
		if typed.IsZero() {
			return "", nil
		}
		return typed.Format(DateLayout), nil
	case *time.Time:
		if typed == nil || typed.IsZero() {
			return "", nil
		}
		return typed.Format(DateLayout), nil
	case bool:
		return strconv.FormatBool(typed), nil
	case int:
		return strconv.FormatInt(int64(typed), 10), nil
	case int8:
		return strconv.FormatInt(int64(typed), 10), nil
	case int16:
		return strconv.FormatInt(int64(typed), 10), nil
	case int32:
		return strconv.FormatInt(int64(typed), 10), nil
	case int64:
		return strconv.FormatInt(typed, 10), nil
	case uint:
		return strconv.FormatUint(uint64(typed), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(typed), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(typed), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(typed), 10), nil
	case uint64:
		return strconv.FormatUint(typed, 10), nil
	case float32:
		return canonicalFloat(float64(typed)), nil
	case float64:
		return canonicalFloat(typed), nil
	case json.Number:
		if f, err := typed.Float64(); err == nil {
			return canonicalFloat(f), nil
		}
		return typed.String(), nil
	case fmt.Stringer:
		return strings.TrimSpace(typed.String()), nil
	default:
		return "", fmt.Errorf("%w: %T", ErrUncomparableValue, value)
	}
}

// CanonicalNumber rewrites integral numeric text ("1234.0") to its integer form.
// Non-numeric text is returned trimmed and unchanged.
func CanonicalNumber(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	if _, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return raw
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return raw
	}
	if math.Mod(f, 1) == 0 && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return raw
}

func canonicalFloat(f float64) string {
	if math.IsNaN(f) {
		return ""
	}
	if math.Mod(f, 1) == 0 && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// RecordSnapshot flattens a record into deterministic lines suitable for diffing.
func RecordSnapshot(record EntityRecord) ([]string, error) {
	lines := []string{
		fmt.Sprintf("EntityID: %s", record.EntityID),
		fmt.Sprintf("StartDate: %s", record.StartDate.Format(DateLayout)),
		fmt.Sprintf("EndDate: %s", FormatDate(record.EndDate)),
		"Attributes:",
	}

	if len(record.Attributes) == 0 {
		return append(lines, "  (empty)"), nil
	}

	keys := make([]string, 0, len(record.Attributes))
	for key := range record.Attributes {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value, err := CanonicalValue(record.Attributes[key])
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", key, err)
		}
		lines = append(lines, fmt.Sprintf("  %s: %q", key, value))
	}
	return lines, nil
}

// DiffRecords produces a unified diff between two record versions using the provided labels.
func DiffRecords(baseLabel string, base *EntityRecord, targetLabel string, target *EntityRecord) (string, error) {
	baseString, err := snapshotString(base)
	if err != nil {
		return "", err
	}

	targetString, err := snapshotString(target)
	if err != nil {
		return "", err
	}

	return buildUnifiedDiff(baseLabel, targetLabel, baseString, targetString), nil
}

func snapshotString(record *EntityRecord) (string, error) {
	if record == nil {
		return "", nil
	}

	lines, err := RecordSnapshot(*record)
	if err != nil {
		return "", err
	}

	return strings.Join(lines, "\n") + "\n", nil
}

type diffOp struct {
	prefix string
	line   string
}

func buildUnifiedDiff(baseLabel, targetLabel, baseContent, targetContent string) string {
	baseLines := splitLines(baseContent)
	targetLines := splitLines(targetContent)

	ops := diffLines(baseLines, targetLines)

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("--- %s\n", baseLabel))
	builder.WriteString(fmt.Sprintf("+++ %s\n", targetLabel))
	builder.WriteString("@@ -0,0 +0,0 @@\n")
	for _, operation := range ops {
		builder.WriteString(operation.prefix)
		builder.WriteString(operation.line)
		builder.WriteString("\n")
	}

	return builder.String()
}

func splitLines(input string) []string {
	if input == "" {
		return nil
	}
	lines := strings.Split(input, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// diffLines computes an LCS-based line diff.
func diffLines(base, target []string) []diffOp {
	m := len(base)
	n := len(target)
	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
	}

	for i := m - 1; i >= 0; i-- {
		for j := n - 1; j >= 0; j-- {
			if base[i] == target[j] {
				dp[i][j] = dp[i+1][j+1] + 1
			} else if dp[i+1][j] >= dp[i][j+1] {
				dp[i][j] = dp[i+1][j]
			} else {
				dp[i][j] = dp[i][j+1]
			}
		}
	}

	ops := make([]diffOp, 0, m+n)
	i, j := 0, 0
	for i < m && j < n {
		if base[i] == target[j] {
			ops = append(ops, diffOp{prefix: " ", line: base[i]})
			i++
			j++
			continue
		}

		if dp[i+1][j] >= dp[i][j+1] {
			ops = append(ops, diffOp{prefix: "-", line: base[i]})
			i++
		} else {
			ops = append(ops, diffOp{prefix: "+", line: target[j]})
			j++
		}
	}

	for i < m {
		ops = append(ops, diffOp{prefix: "-", line: base[i]})
		i++
	}

	for j < n {
		ops = append(ops, diffOp{prefix: "+", line: target[j]})
		j++
	}

	return ops
}
