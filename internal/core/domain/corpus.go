package domain

// Thesis is one corpus entry as stored in the ingest JSON file.
type Thesis struct {
	Title    string `json:"title"`
	Year     int    `json:"year"`
	Abstract string `json:"abstract"`
	Content  string `json:"content"`
}

type IngestStats struct {
	Theses         int `json:"theses"`
	AbstractDocs   int `json:"abstract_docs"`
	ContentChunks  int `json:"content_chunks"`
	SkippedEntries int `json:"skipped_entries"`
}
