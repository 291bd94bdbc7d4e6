package entities

import (
	"time"

	"github.com/google/uuid"
)

// ImageKind decides the bounding box an ingested image is resized into.
type ImageKind string

const (
	KindAvatar ImageKind = "avatar"
	KindBanner ImageKind = "banner"
)

func (k ImageKind) Valid() bool {
	return k == KindAvatar || k == KindBanner
}

// ImageRecord is one row of the images table. The ID is the hex sha256 of the
// encoded bytes, so two sources that encode identically collapse into one row.
// The Original* and UploadedBy* fields are provenance: they are all set when
// the image was pulled from a source URL, and all nil for direct uploads.
type ImageRecord struct {
	ID         string     `json:"id"`
	Kind       ImageKind  `json:"kind"`
	URL        string     `json:"url"`
	FileSize   int32      `json:"file_size"`
	Width      int32      `json:"width"`
	Height     int32      `json:"height"`
	UploadedAt *time.Time `json:"uploaded_at,omitempty"`

	OriginalURL          *string    `json:"original_url,omitempty"`
	OriginalAttachmentID *int64     `json:"original_attachment_id,omitempty"`
	OriginalFileSize     *int32     `json:"original_file_size,omitempty"`
	OriginalType         *string    `json:"original_type,omitempty"`
	UploadedByAccount    *int64     `json:"uploaded_by_account,omitempty"`
	UploadedBySystem     *uuid.UUID `json:"uploaded_by_system,omitempty"`
}

// QueueItem is one pending row of the image_queue backlog. Rows are inserted
// by an external backfill process and deleted the moment a worker claims them.
type QueueItem struct {
	ItemID int64     `json:"itemid"`
	URL    string    `json:"url"`
	Kind   ImageKind `json:"kind"`
}

type Stats struct {
	TotalImages   int64 `json:"total_images"`
	TotalFileSize int64 `json:"total_file_size"`
}
