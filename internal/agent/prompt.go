// Package agent implements the question-answering SQL agent.
package agent

import (
	"fmt"
	"strings"
)

// systemInstruction primes the model for the observe/query/answer loop.
const systemInstruction = `You are an expert SQL analyst connected to a relational database.
To inspect the data, reply with exactly one SQL query inside a fenced block:

` + "```sql\nSELECT ...\n```" + `

You will receive the query result as the next message. Repeat until you can
answer. When you have the answer, reply with a line starting with
"Final Answer:" followed by a detailed, human-readable answer that includes
the relevant data. Only read data; never modify it.`

// FormatPrompt concatenates the schema hint with the user's question. Pure;
// no escaping of either input.
func FormatPrompt(question string, tables []string) string {
	hint := fmt.Sprintf("Database schema includes tables: %s. "+
		"Please provide a detailed, formatted answer, including the relevant data in a human-readable way.",
		strings.Join(tables, ", "))
	return fmt.Sprintf("%s\nAnswer the question: %s", hint, question)
}
