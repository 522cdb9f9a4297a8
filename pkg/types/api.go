package types

// StartServerRequest is the payload for POST /server/start. Empty fields fall
// back to the persisted settings.
type StartServerRequest struct {
	Config ServerConfig `json:"config"`
}

// ServerStatusResponse is returned by GET /server/status.
type ServerStatusResponse struct {
	// Current lifecycle state of the inference server process.
	// example: running
	State ServerState `json:"state" example:"running"`
	// Process ID of the server, when running.
	// example: 12345
	PID int `json:"pid,omitempty" example:"12345"`
	// Base URL of the inference endpoint, when running.
	// example: http://127.0.0.1:11434/v1
	BaseURL string `json:"base_url,omitempty" example:"http://127.0.0.1:11434/v1"`
}

// EnqueueRequest is the payload for POST /queue.
type EnqueueRequest struct {
	// Folder to append to the queue. Duplicates are allowed.
	// example: /data/sets/portraits
	FolderPath string `json:"folder_path" example:"/data/sets/portraits"`
	// Initial prompt for the folder; empty uses the last-used prompt.
	Prompt string `json:"prompt,omitempty"`
}

// SetPromptRequest is the payload for PUT /queue/{id}/prompt.
type SetPromptRequest struct {
	Prompt string `json:"prompt"`
}

// QueueResponse wraps the ordered queue for GET /queue.
type QueueResponse struct {
	Items []WorkItem `json:"items"`
}

// StartBatchRequest is the payload for POST /batch/start.
type StartBatchRequest struct {
	// When true, existing caption files are regenerated and overwritten.
	// example: false
	Overwrite bool `json:"overwrite" example:"false"`
}

// BatchProgressResponse is returned by GET /batch/progress.
type BatchProgressResponse struct {
	// Whether a run is currently active.
	Running bool `json:"running"`
	// Overall completion percentage, 0-100.
	// example: 62.5
	Percent float64 `json:"percent" example:"62.5"`
	// Human-readable progress line, e.g. the current folder's done/total.
	Label string `json:"label,omitempty"`
}

// StatusLine is one append-only status log entry.
type StatusLine struct {
	// Monotonic sequence number, usable as a ?since= cursor.
	// example: 17
	Seq int64 `json:"seq" example:"17"`
	// Unix milliseconds timestamp.
	TimestampMS int64 `json:"ts_ms"`
	// example: ✓ 0001.png
	Message string `json:"message" example:"✓ 0001.png"`
}

// StatusResponse wraps incremental status log reads for GET /events.
type StatusResponse struct {
	Lines []StatusLine `json:"lines"`
}

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	Models []Model `json:"models"`
}

// CaptionResponse carries one image's caption text.
type CaptionResponse struct {
	// example: /data/sets/portraits/0001.png
	ImagePath string `json:"image_path" example:"/data/sets/portraits/0001.png"`
	// Sibling caption file path.
	CaptionPath string `json:"caption_path"`
	// Whether the caption file exists on disk.
	Exists bool `json:"exists"`
	Text   string `json:"text"`
}

// SaveCaptionRequest is the payload for PUT /captions.
type SaveCaptionRequest struct {
	ImagePath string `json:"image_path"`
	Text      string `json:"text"`
}

// MoveRequest is the payload for POST /filter/move.
type MoveRequest struct {
	// Source folder holding image/caption pairs.
	SourceDir string `json:"source_dir"`
	// Case-insensitive keyword matched against caption contents.
	// example: red dress
	Keyword string `json:"keyword" example:"red dress"`
	// Target folder matched pairs are moved into.
	TargetDir string `json:"target_dir"`
}

// MoveResponse summarizes a filter-and-move sweep.
type MoveResponse struct {
	// Number of image/caption pairs moved.
	// example: 12
	Moved int `json:"moved" example:"12"`
	// Per-file log lines from the sweep.
	Log []string `json:"log,omitempty"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}
