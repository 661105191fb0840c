package chunking

import "strings"

// Splitter cuts full-text documents into overlapping chunks. Cuts prefer a
// paragraph break, then a sentence end, then whitespace inside the tail of
// the window so chunks keep readable boundaries.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 1500
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

func (s *Splitter) Split(text string) []string {
	runes := []rune(text)
	if len(strings.TrimSpace(text)) == 0 {
		return nil
	}

	out := make([]string, 0, len(runes)/s.ChunkSize+1)
	start := 0
	for start < len(runes) {
		end := start + s.ChunkSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = s.cutPoint(runes, start, end)
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			out = append(out, chunk)
		}
		if end == len(runes) {
			break
		}

		next := end - s.Overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

// cutPoint searches the last quarter of the window for the best boundary.
func (s *Splitter) cutPoint(runes []rune, start, end int) int {
	searchFrom := end - s.ChunkSize/4
	if searchFrom < start+1 {
		searchFrom = start + 1
	}

	window := string(runes[searchFrom:end])
	if idx := strings.LastIndex(window, "\n\n"); idx >= 0 {
		return searchFrom + len([]rune(window[:idx+2]))
	}
	for _, boundary := range []string{". ", "? ", "! ", "\n"} {
		if idx := strings.LastIndex(window, boundary); idx >= 0 {
			return searchFrom + len([]rune(window[:idx+len(boundary)]))
		}
	}
	if idx := strings.LastIndexFunc(window, func(r rune) bool { return r == ' ' || r == '\t' }); idx >= 0 {
		return searchFrom + len([]rune(window[:idx+1]))
	}
	return end
}
