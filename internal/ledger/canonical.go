package ledger

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Canonical serializes args into a stable form: object keys are sorted
// recursively so two argument maps with the same contents always produce
// the same string. Non-object values pass through as their JSON form.
func Canonical(args any) string {
	// Normalize through JSON so json.RawMessage, structs and maps all land
	// in the same representation.
	var v any
	switch a := args.(type) {
	case json.RawMessage:
		if err := json.Unmarshal(a, &v); err != nil {
			return string(a)
		}
	case []byte:
		if err := json.Unmarshal(a, &v); err != nil {
			return string(a)
		}
	case string:
		return a
	default:
		raw, err := json.Marshal(args)
		if err != nil {
			return fmt.Sprintf("%v", args)
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return string(raw)
		}
	}

	var sb strings.Builder
	writeCanonical(&sb, v)
	return sb.String()
}

// Key builds the ledger key for a tool invocation.
func Key(toolName string, args any) string {
	return toolName + ":" + Canonical(args)
}

func writeCanonical(sb *strings.Builder, v any) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			kj, _ := json.Marshal(k)
			sb.Write(kj)
			sb.WriteByte(':')
			writeCanonical(sb, t[k])
		}
		sb.WriteByte('}')
	case []any:
		sb.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeCanonical(sb, e)
		}
		sb.WriteByte(']')
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			fmt.Fprintf(sb, "%v", t)
			return
		}
		sb.Write(raw)
	}
}
