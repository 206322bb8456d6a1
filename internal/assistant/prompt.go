package assistant

import (
	"strings"
)

const basePrompt = "You are a helpful math homework assistant."

const unreadablePrompt = basePrompt + " Note: There was an error accessing the uploaded file."

const filePromptHead = basePrompt + ` The user has uploaded a LaTeX file with the following content:

<latex_file>
`

const filePromptTail = `
</latex_file>

Please help the user with their math homework based on this file. You can reference specific problems, equations, or sections from the file when providing assistance.`

const truncatedNote = "\n% [remainder of the file omitted]"

// Documents is the part of the Document Store the assistant reads.
type Documents interface {
	ReadWorkingCopy(id string) ([]byte, error)
}

// SystemPrompt builds the system message for a conversation. With no file
// it is the bare assistant prompt. The working copy is embedded in
// <latex_file> tags, cut to budget tokens; a read failure gives a prompt
// that says the file could not be accessed.
func SystemPrompt(docs Documents, fileID string, budget int) (prompt string, err error) {
	if fileID == "" {
		return basePrompt, nil
	}
	data, err := docs.ReadWorkingCopy(fileID)
	if err != nil {
		return unreadablePrompt, err
	}
	content, cut := TruncateToTokens(string(data), budget)
	var sb strings.Builder
	sb.WriteString(filePromptHead)
	sb.WriteString(content)
	if cut {
		sb.WriteString(truncatedNote)
	}
	sb.WriteString(filePromptTail)
	return sb.String(), nil
}
