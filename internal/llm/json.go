package llm

import (
	"fmt"
	"strings"
)

// ExtractJSON returns the JSON body of an LLM response, stripping markdown
// code fences that some models wrap around JSON-mode output.
func ExtractJSON(text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty response")
	}

	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		endIdx := len(lines) - 1
		for i := len(lines) - 1; i > 0; i-- {
			if strings.TrimSpace(lines[i]) == "```" {
				endIdx = i
				break
			}
		}
		text = strings.Join(lines[1:endIdx], "\n")
		text = strings.TrimSpace(text)
	}

	if !strings.HasPrefix(text, "{") && !strings.HasPrefix(text, "[") {
		return nil, fmt.Errorf("response is not JSON")
	}
	return []byte(text), nil
}
