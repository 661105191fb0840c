package domain

// DocumentMetadata carries the filterable attributes of an indexed thesis
// chunk. Two chunks with identical text but different metadata are distinct
// documents.
type DocumentMetadata struct {
	Title     string `json:"title"`
	Year      int    `json:"year"`
	SourceURL string `json:"source_url,omitempty"`
}

type RetrievedDocument struct {
	Content  string           `json:"content"`
	Metadata DocumentMetadata `json:"metadata"`
}

// ScoredDocument pairs a retrieved document with its fused relevance score.
type ScoredDocument struct {
	Document RetrievedDocument `json:"document"`
	Score    float64           `json:"score"`
}

// SearchFilter narrows retrieval by document metadata. Zero values mean no
// constraint on that field.
type SearchFilter struct {
	Title string
	Year  int
}

func (f SearchFilter) IsZero() bool {
	return f.Title == "" && f.Year == 0
}

type Citation struct {
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
}

// Answer is the terminal artifact of one conversation turn.
type Answer struct {
	Text      string     `json:"text"`
	Citations []Citation `json:"citations,omitempty"`
}

type WebResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet,omitempty"`
}

// WebNoResultTitle marks the sentinel entry returned when every search hit
// was filtered out. Callers receive it instead of an empty slice.
const WebNoResultTitle = "No good web search result was found"

func IsWebNoResult(results []WebResult) bool {
	return len(results) == 1 && results[0].Title == WebNoResultTitle
}
