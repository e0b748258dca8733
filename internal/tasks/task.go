package tasks

import "strings"

// Task is the client-side copy of a backend task. The backend owns it; a
// local copy is read-only and eventually consistent.
type Task struct {
	TaskID       string   `json:"task_id"`
	UserID       string   `json:"user_id,omitempty"`
	Action       string   `json:"action,omitempty"`
	Status       string   `json:"status"`
	Images       []string `json:"images,omitempty"`
	ResultURL    string   `json:"result_url,omitempty"`
	ThumbnailURL string   `json:"thumbnail_url,omitempty"`
	Progress     int      `json:"progress,omitempty"`
	ErrorMessage string   `json:"error_message,omitempty"`
	CreatedAt    int64    `json:"created_at,omitempty"`
	UpdatedAt    int64    `json:"updated_at,omitempty"`
}

// BestImageURL picks the most useful output reference: full result first,
// then the first image, then the thumbnail.
func (t Task) BestImageURL() string {
	if url := strings.TrimSpace(t.ResultURL); url != "" {
		return url
	}
	for _, img := range t.Images {
		if url := strings.TrimSpace(img); url != "" {
			return url
		}
	}
	return strings.TrimSpace(t.ThumbnailURL)
}

func (t Task) NormalizedStatus() Status {
	return NormalizeStatus(t.Status)
}
