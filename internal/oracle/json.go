package oracle

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CleanJSON strips markdown code fences the oracle often wraps around JSON
// payloads despite being asked not to.
func CleanJSON(text string) string {
	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.ReplaceAll(cleaned, "```json", "")
		cleaned = strings.ReplaceAll(cleaned, "```", "")
	}
	return strings.TrimSpace(cleaned)
}

// DecodeJSON cleans and decodes oracle output into v. Decode failures are
// reported as ErrMalformed so call sites can branch to their fallbacks.
func DecodeJSON(text string, v any) error {
	if err := json.Unmarshal([]byte(CleanJSON(text)), v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
