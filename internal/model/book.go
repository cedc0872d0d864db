package model

import "strconv"

// Sentence is one aligned source/translation pair.
type Sentence struct {
	Source      string `json:"source"`
	Translation string `json:"translation"`
}

// Chapter is an ordered run of sentences.
type Chapter struct {
	Title   string     `json:"title"`
	Content []Sentence `json:"content"`
}

// Book is a dual-language document. LastModified is in Unix milliseconds and is
// the only signal used to resolve conflicts between devices.
type Book struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Author         string    `json:"author"`
	Cover          string    `json:"cover"`
	Notes          string    `json:"notes"`
	SourceLanguage string    `json:"sourceLanguage"`
	TargetLanguage string    `json:"targetLanguage"`
	Chapters       []Chapter `json:"chapters"`
	LastModified   int64     `json:"lastModified"`
}

// Summary returns the bandwidth-light view of the book used by GET /books.
func (b Book) Summary() BookSummary {
	return BookSummary{
		ID:           b.ID,
		Title:        b.Title,
		Author:       b.Author,
		LastModified: b.LastModified,
	}
}

// BookSummary is a book without its chapters.
type BookSummary struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Author       string `json:"author"`
	LastModified int64  `json:"lastModified"`
}

// BookListResponse is returned by GET /books.
type BookListResponse struct {
	Books []BookSummary `json:"books"`
}

// UpsertBookRequest is the body of POST /books/{bookID}.
// Chapters must be present; an empty array is allowed.
type UpsertBookRequest struct {
	Title          string    `json:"title" validate:"required"`
	Author         string    `json:"author"`
	Cover          string    `json:"cover"`
	Notes          string    `json:"notes"`
	SourceLanguage string    `json:"sourceLanguage"`
	TargetLanguage string    `json:"targetLanguage"`
	Chapters       []Chapter `json:"chapters" validate:"required"`
	LastModified   int64     `json:"lastModified"`
}

// UpsertRequest converts a book into the body the server expects.
func (b Book) UpsertRequest() UpsertBookRequest {
	chapters := b.Chapters
	if chapters == nil {
		chapters = []Chapter{}
	}
	return UpsertBookRequest{
		Title:          b.Title,
		Author:         b.Author,
		Cover:          b.Cover,
		Notes:          b.Notes,
		SourceLanguage: b.SourceLanguage,
		TargetLanguage: b.TargetLanguage,
		Chapters:       chapters,
		LastModified:   b.LastModified,
	}
}

// FormatUID renders a numeric account id as the string uid used on the wire.
func FormatUID(id int64) string {
	return strconv.FormatInt(id, 10)
}
