// Package masking redacts settlement evidence before it lands in audit
// metadata.
package masking

import "strings"

const maskToken = "****"

// visibleSuffix is how many trailing characters of a reference stay readable
// so operators can match an audit row against a bank statement.
const visibleSuffix = 4

// SensitiveKeys are masked on every audit entry.
var SensitiveKeys = []string{
	"transaction_reference",
	"account_number",
	"iban",
}

// MaskReference keeps a rail prefix such as "MPESA_" or "TXN-" and the last
// four characters. Masking an already masked value returns it unchanged.
func MaskReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}

	prefix, body := railPrefix(trimmed)
	if len(body) <= visibleSuffix {
		return prefix + maskToken
	}
	return prefix + maskToken + body[len(body)-visibleSuffix:]
}

// MaskFields returns a copy of metadata with the named keys masked. Keys match
// case-insensitively. Other keys pass through untouched.
func MaskFields(metadata map[string]any, keys ...string) map[string]any {
	if len(metadata) == 0 {
		return metadata
	}
	sensitive := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		sensitive[strings.ToLower(strings.TrimSpace(key))] = struct{}{}
	}

	out := make(map[string]any, len(metadata))
	for key, value := range metadata {
		if _, ok := sensitive[strings.ToLower(key)]; ok {
			out[key] = mask(value)
			continue
		}
		out[key] = value
	}
	return out
}

func mask(value any) any {
	switch v := value.(type) {
	case string:
		return MaskReference(v)
	case *string:
		if v == nil {
			return nil
		}
		return MaskReference(*v)
	case []string:
		out := make([]string, len(v))
		for i, s := range v {
			out[i] = MaskReference(s)
		}
		return out
	default:
		return value
	}
}

func railPrefix(value string) (string, string) {
	idx := strings.LastIndexAny(value, "_-:")
	if idx <= 0 || idx == len(value)-1 {
		return "", value
	}
	return value[:idx+1], value[idx+1:]
}
