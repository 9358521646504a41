package masking

import "strings"

const maskToken = "****"

var sensitiveKeys = map[string]struct{}{
	"access_token":  {},
	"authorization": {},
	"token":         {},
	"secret":        {},
	"password":      {},
}

// Chat text is never copied into the audit trail.
var droppedKeys = map[string]struct{}{
	"content": {},
	"body":    {},
}

// MaskSecret redacts a secret while keeping a minimal suffix for auditing.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) <= 4 {
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-4:]
}

// MaskMetadata returns a copy of metadata with sensitive keys redacted and
// message text removed. Keys are matched case-insensitively, nested maps are walked.
func MaskMetadata(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}

	out := make(map[string]any, len(input))
	for key, value := range input {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		lower := strings.ToLower(trimmedKey)
		if _, ok := droppedKeys[lower]; ok {
			continue
		}
		if _, ok := sensitiveKeys[lower]; ok {
			out[trimmedKey] = maskValue(value)
			continue
		}
		if nested, ok := value.(map[string]any); ok {
			out[trimmedKey] = MaskMetadata(nested)
			continue
		}
		out[trimmedKey] = value
	}
	return out
}

func maskValue(value any) any {
	switch cast := value.(type) {
	case string:
		return MaskSecret(cast)
	case nil:
		return nil
	default:
		return maskToken
	}
}
