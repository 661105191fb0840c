package usecase

import (
	"fmt"
	"strings"

	"github.com/avolkov/climate-rag/internal/core/domain"
)

const abstractStoreDesc = "Abstract_Store is a database of climate & environmental research abstracts"

const contentStoreDesc = "Content_Store is a database of climate & environmental research full-texts"

const routerSystemPrompt = "You are an expert at routing a user question to the appropriate data source. " +
	"You also faithfully return the conversation history with the user without modifications."

func buildRouterPrompt(history []domain.Message) string {
	return fmt.Sprintf(`Given the following conversation history, determine the appropriate data source to route the query to. The query is the last message in the conversation history.

%s
%s
Return 'Abstract_Store' for summaries and general queries.
Return 'Content_Store' for specific content/concept details.
Return 'OTHER' for unrelated or invalid queries.

Respond with a JSON object: {"datasource": "..."}

Conversation History:
%s
`, abstractStoreDesc, contentStoreDesc, serializeHistory(history))
}

const selfQuerySystemPrompt = "You extract structured metadata constraints from search queries over a corpus of climate change theses. " +
	"Never invent a constraint the query does not state."

func buildSelfQueryPrompt(query string) string {
	return fmt.Sprintf(`The corpus documents carry two filterable attributes:
- title (string): the title of the thesis
- year (integer): the year the thesis was published

If the query explicitly constrains one of these attributes, extract the constraint. Otherwise leave it unset.

Respond with a JSON object: {"title": "...", "year": 0}
Use "" for an unconstrained title and 0 for an unconstrained year.

Query: %s`, query)
}

func buildMultiQueryPrompt(question string) string {
	return fmt.Sprintf(`Generate 4 progressive search queries for the question below, one per line:
1. Basic concept/overview
2. Key components/factors
3. Detailed analysis/process
4. Advanced implications/applications

Question: %s`, question)
}

func buildAnswerPrompt(contextBlock string, history []domain.Message, evaluation bool) string {
	requirements := `Requirements:
 Use numbered citations [1]
 Include references in APA style with a clickable source link, example: [1] Author. (Year). _Source Title._ [https://www.example.com](https://www.example.com)
 Format in markdown
 Focus on relevant information only`
	if evaluation {
		requirements += `
 For each citation, include a short verbatim ground-truth snippet from the context that supports it`
	}

	return fmt.Sprintf(`Answer the last message using only the provided context.
Context:
%s
Chat History:
%s
The last message in the history is the current question.
%s`, contextBlock, serializeHistory(history), requirements)
}

func buildWebAnswerPrompt(question string, results []domain.WebResult) string {
	var sources strings.Builder
	for idx, result := range results {
		sources.WriteString(fmt.Sprintf("[%d] %s\n%s\n%s\n\n", idx+1, result.Title, result.Link, result.Snippet))
	}

	return fmt.Sprintf(`Answer the question using only the web search results below.
Question:
%s

Search results:
%s
Requirements:
 Use numbered citations [1]
 End with a reference list in APA style, one entry per cited source, with a clickable link
 Format in markdown`, question, sources.String())
}

func formatContext(docs []domain.RetrievedDocument) string {
	var b strings.Builder
	for idx, doc := range docs {
		b.WriteString(fmt.Sprintf("[%d] title=%s year=%d", idx+1, doc.Metadata.Title, doc.Metadata.Year))
		if doc.Metadata.SourceURL != "" {
			b.WriteString(" url=" + doc.Metadata.SourceURL)
		}
		b.WriteString("\n")
		b.WriteString(doc.Content)
		b.WriteString("\n\n")
	}
	return b.String()
}

func serializeHistory(history []domain.Message) string {
	lines := make([]string, 0, len(history))
	for _, msg := range history {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", msg.Role, content))
	}
	if len(lines) == 0 {
		return "(empty)"
	}
	return strings.Join(lines, "\n")
}
