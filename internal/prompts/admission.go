package prompts

import "fmt"

// groundedTemplate constrains the model to the retrieved brochure passage.
// Format verbs: brochure context, then the student's question.
const groundedTemplate = `You are Admit-Assist, a responsible AI onboarding assistant.
Answer ONLY using the official admission brochure context below.
If the context does not contain the answer, say that the brochure does not cover it.

Context:
%s

User Question:
%s
`

// Grounded returns the prompt for a question with a retrieved passage.
func Grounded(context, question string) string {
	return fmt.Sprintf(groundedTemplate, context, question)
}

// Ungrounded returns the prompt used when nothing was retrieved: the
// student's message, unchanged.
func Ungrounded(message string) string {
	return message
}
