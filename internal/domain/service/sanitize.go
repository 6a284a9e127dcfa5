package service

import (
	"fmt"
	"strings"
)

// sanitizeMessages fixes orphan tool_use blocks in the chat history. An
// "orphan" is an assistant message with ToolCalls but no subsequent tool
// result — this can happen after context reset or error recovery.
func sanitizeMessages(messages []ChatMessage) []ChatMessage {
	if len(messages) == 0 {
		return messages
	}

	resultIDs := make(map[string]bool)
	for _, msg := range messages {
		if msg.Role == RoleTool && msg.ToolCallID != "" {
			resultIDs[msg.ToolCallID] = true
		}
	}

	result := make([]ChatMessage, len(messages))
	copy(result, messages)

	for i := len(result) - 1; i >= 0; i-- {
		if result[i].Role == RoleAssistant && len(result[i].ToolCalls) > 0 {
			allHaveResults := true
			for _, tc := range result[i].ToolCalls {
				if !resultIDs[tc.ID] {
					allHaveResults = false
					break
				}
			}
			if !allHaveResults {
				result[i].ToolCalls = nil
			}
			break
		}
	}

	return result
}

// truncateOutput trims tool output to maxChars, appending a notice if
// truncated, breaking at the nearest newline when one falls close to the
// limit so output isn't cut mid-line.
func truncateOutput(output string, maxChars int) string {
	if maxChars <= 0 || len(output) <= maxChars {
		return output
	}

	breakAt := maxChars
	lastNewline := strings.LastIndex(output[:maxChars], "\n")
	if lastNewline > maxChars*3/4 {
		breakAt = lastNewline
	}

	truncated := output[:breakAt]
	remaining := len(output) - breakAt
	return fmt.Sprintf("%s\n\n[... truncated %d characters]", truncated, remaining)
}
