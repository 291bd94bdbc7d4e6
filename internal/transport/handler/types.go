package handler

import (
	"github.com/google/uuid"

	"github.com/PluralKit/avatars/internal/entities"
)

type PullRequest struct {
	URL        string             `json:"url" validate:"required,url"`
	Kind       entities.ImageKind `json:"kind" validate:"required,oneof=avatar banner"`
	UploadedBy *int64             `json:"uploaded_by"`
	SystemID   *uuid.UUID         `json:"system_id"`
	Force      bool               `json:"force"`
}

type PullResponse struct {
	URL string `json:"url"`
	New bool   `json:"new"`
}
