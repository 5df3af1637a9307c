package models

import "time"

// Image is an image file inside a vertex's asset directory.
// Src is a self-contained data URI of the file bytes.
type Image struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Alt         string `json:"alt,omitempty"`
	Description string `json:"description,omitempty"`
	Src         string `json:"src,omitempty"`
}

// ImageMetadata is the per-file entry of the image metadata sidecar.
type ImageMetadata struct {
	Alt         string `json:"alt,omitempty"`
	Description string `json:"description,omitempty"`
}

// Note is a plain-text note file. Title and Tags are read from the text;
// Checksum guards updates against stale writes.
type Note struct {
	Name      string    `json:"name"`
	Text      string    `json:"text"`
	Title     string    `json:"title,omitempty"`
	Tags      []string  `json:"tags"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Link is an entry of a vertex's ordered link list.
type Link struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}
