package prompt

import "github.com/upb/smart-retail-assistant/models"

// DefaultHistoryWindow is the number of trailing turns forwarded to the model
const DefaultHistoryWindow = 5

const contextPrefix = "Context:\n"

// Assembler builds the ordered message list sent to the language model
type Assembler struct {
	historyWindow int
}

// NewAssembler creates an assembler that keeps the last historyWindow turns
func NewAssembler(historyWindow int) *Assembler {
	if historyWindow <= 0 {
		historyWindow = DefaultHistoryWindow
	}
	return &Assembler{historyWindow: historyWindow}
}

// Assemble returns the system prompt, the grounding block as a second system
// message, then the trailing history window in its original order and roles.
// The result always has 2 + min(window, len(history)) messages.
func (a *Assembler) Assemble(systemPrompt, groundingBlock string, history []models.ConversationMessage) []models.ConversationMessage {
	start := len(history) - a.historyWindow
	if start < 0 {
		start = 0
	}
	window := history[start:]

	out := make([]models.ConversationMessage, 0, 2+len(window))
	out = append(out,
		models.NewSystemMessage(systemPrompt),
		models.NewSystemMessage(contextPrefix+groundingBlock),
	)
	return append(out, window...)
}

// HistoryWindow returns the configured window size
func (a *Assembler) HistoryWindow() int {
	return a.historyWindow
}
