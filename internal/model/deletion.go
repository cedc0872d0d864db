package model

// Tombstone marks a book id as permanently deleted for an account.
//
// On the client, Pending is true until the server has acknowledged the
// deletion. The record itself is never removed.
type Tombstone struct {
	BookID    string `json:"bookId"`
	OwnerID   string `json:"ownerId,omitempty"`
	DeletedAt int64  `json:"deletedAt"`
	Pending   bool   `json:"pending,omitempty"`
}

// DeletedBooksResponse is returned by GET /deleted-books.
type DeletedBooksResponse struct {
	DeletedBookIDs []string `json:"deletedBookIds"`
}

// MarkDeletedRequest is the body of POST /deleted-books.
type MarkDeletedRequest struct {
	BookID string `json:"bookId" validate:"required,max=64"`
}

// MarkDeletedResponse is returned by POST /deleted-books.
type MarkDeletedResponse struct {
	BookID string `json:"bookId"`
	Status string `json:"status"`
}
