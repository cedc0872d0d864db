package model

// ReadingLocation is the most recent position reached in a book.
type ReadingLocation struct {
	BookID       string `json:"bookId"`
	ChapterID    int    `json:"chapterId"`
	SentenceID   int    `json:"sentenceId"`
	LastModified int64  `json:"lastModified"`
}

// ReadingLocationInput is one item of a batch upsert. Pointer fields let the
// server tell a missing chapter/sentence apart from position zero.
type ReadingLocationInput struct {
	BookID       string `json:"bookId"`
	ChapterID    *int   `json:"chapterId"`
	SentenceID   *int   `json:"sentenceId"`
	LastModified int64  `json:"lastModified"`
}

// ReadingLocationsRequest is the body of POST /reading-locations.
type ReadingLocationsRequest struct {
	ReadingLocations []ReadingLocationInput `json:"readingLocations"`
}

// ReadingLocationsResponse is returned by both GET and POST /reading-locations.
type ReadingLocationsResponse struct {
	ReadingLocations []ReadingLocation `json:"readingLocations"`
	SkippedLocations []SkippedLocation `json:"skippedLocations,omitempty"`
}

// SkippedLocation reports a batch item the server refused.
type SkippedLocation struct {
	BookID string `json:"bookId"`
	Reason string `json:"reason"`
}

// Input converts a location into its batch item form.
func (l ReadingLocation) Input() ReadingLocationInput {
	chapter, sentence := l.ChapterID, l.SentenceID
	return ReadingLocationInput{
		BookID:       l.BookID,
		ChapterID:    &chapter,
		SentenceID:   &sentence,
		LastModified: l.LastModified,
	}
}
