package models

import "time"

// DraftFileName is the name offered for every finalized PDF.
const DraftFileName = "draft_1040.pdf"

// DownloadInfo describes a materialized finalize response.
type DownloadInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	Pages     int       `json:"pages,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
