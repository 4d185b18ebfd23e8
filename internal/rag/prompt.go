package rag

import (
	"fmt"
	"strings"

	"github.com/danghoangsqtt-sys/dhsystem-mcp-knowledge/internal/knowledge"
)

// systemPrompt instructs the model to answer strictly from the
// retrieved material and to cite sources by name.
const systemPrompt = `You are a knowledgeable assistant answering questions about a specific document collection.

Rules:
- Answer ONLY from the provided context. If the context does not contain the answer, say you do not know.
- Cite the source file name when you use material from it, e.g. (per setup.md).
- Do not invent facts, file names, or citations.
- Be concise and direct.`

// contextSeparator divides retrieved chunks in the prompt so the model
// sees clear boundaries between sources.
const contextSeparator = "\n\n---\n\n"

// NoMaterialAnswer is the fallback answer text used when the model
// produces no output for a question the knowledge base cannot ground.
const NoMaterialAnswer = "I could not find relevant information in this knowledge base to answer your question."

// noMaterialContext stands in for the retrieved chunks when nothing
// cleared the similarity threshold. The model is still invoked so it
// can tell the user, in its own words, that the collection has nothing
// relevant.
const noMaterialContext = "No relevant material was found in this knowledge base for this question. Tell the user you could not find relevant information; do not answer from general knowledge."

// buildUserPrompt assembles the grounded prompt: each retrieved chunk
// tagged with its source filename, then the user's question. With no
// retrieved chunks the context section carries the no-material
// instruction instead.
func buildUserPrompt(query string, results []knowledge.SearchResult) string {
	var b strings.Builder
	b.WriteString("Context from the knowledge base:\n\n")

	if len(results) == 0 {
		b.WriteString(noMaterialContext)
	}
	for i, r := range results {
		if i > 0 {
			b.WriteString(contextSeparator)
		}
		fmt.Fprintf(&b, "[Source: %s]\n%s", r.Chunk.Source, r.Chunk.Content)
	}

	b.WriteString("\n\nQuestion: ")
	b.WriteString(query)
	return b.String()
}
