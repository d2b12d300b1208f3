package responder

import (
	"strings"

	"github.com/ent0n29/solace/internal/memory"
)

const promptInstruction = `You are a compassionate mental health support agent. Provide empathetic, supportive responses.

You are NOT a replacement for professional mental health care. Do not diagnose and do not give clinical or medication advice.`

const promptGuidelines = `Guidelines:
- Be warm, empathetic, and non-judgmental
- Reference previous conversation when relevant
- Ask thoughtful follow-up questions
- Validate their feelings
- Keep responses concise but meaningful
- Suggest professional help when appropriate`

// conversationWindow returns at most n turns from the tail of history, oldest
// first. A trailing USER turn that repeats message is dropped first because
// the prompt carries the current message on its own line.
func conversationWindow(history []memory.Turn, message string, n int) []memory.Turn {
	if len(history) > 0 {
		last := history[len(history)-1]
		if last.Role == memory.RoleUser && strings.TrimSpace(last.Text) == strings.TrimSpace(message) {
			history = history[:len(history)-1]
		}
	}
	if n <= 0 {
		return nil
	}
	if len(history) > n {
		history = history[len(history)-n:]
	}
	return history
}

func buildPrompt(message string, window []memory.Turn) string {
	var b strings.Builder
	b.WriteString(promptInstruction)
	b.WriteString("\n\n")
	if len(window) > 0 {
		b.WriteString("Recent conversation:\n")
		for _, t := range window {
			if t.Role == memory.RoleAssistant {
				b.WriteString("Assistant: ")
			} else {
				b.WriteString("User: ")
			}
			b.WriteString(strings.TrimSpace(t.Text))
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	b.WriteString("Current user message: ")
	b.WriteString(strings.TrimSpace(message))
	b.WriteString("\n\n")
	b.WriteString(promptGuidelines)
	b.WriteString("\n\nResponse:")
	return b.String()
}
