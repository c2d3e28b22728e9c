// Package prompts contains the prompt templates Admit-Assist sends to the
// answer generator.
//
// Prompt text is Go code rather than config because it is program logic:
// templates use fmt.Sprintf interpolation and are checked by tests. Each
// exported function takes the dynamic parts and returns the finished
// prompt string.
package prompts
