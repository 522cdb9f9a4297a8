package types

// ServerState is the lifecycle state of the supervised inference server.
type ServerState string

const (
	ServerStopped  ServerState = "stopped"
	ServerStarting ServerState = "starting"
	ServerRunning  ServerState = "running"
	ServerStopping ServerState = "stopping"
)

// ItemStatus is the lifecycle state of a queued folder.
type ItemStatus string

const (
	ItemPending    ItemStatus = "pending"
	ItemProcessing ItemStatus = "processing"
	ItemDone       ItemStatus = "done"
	ItemError      ItemStatus = "error"
	ItemStopped    ItemStatus = "stopped"
)

// ServerConfig describes how to launch the inference server binary.
// It is immutable once a process has been started from it.
type ServerConfig struct {
	// Path to the llama-server binary.
	// example: ./build/bin/llama-server
	BinaryPath string `json:"binary_path" example:"./build/bin/llama-server"`
	// Path to the GGUF model file.
	// example: /home/user/models/qwen2-vl-7b-q4.gguf
	ModelPath string `json:"model_path" example:"/home/user/models/qwen2-vl-7b-q4.gguf"`
	// Optional multimodal projector file (--mmproj).
	ProjectorPath string `json:"projector_path,omitempty"`
	// TCP port for the server to listen on.
	// example: 11434
	Port int `json:"port" example:"11434"`
	// Context size (--ctx-size).
	// example: 8192
	ContextSize int `json:"context_size" example:"8192"`
	// Number of layers to offload to the GPU (-ngl).
	// example: 99
	GPULayers int `json:"gpu_layers" example:"99"`
	// Batch size (-b).
	// example: 512
	BatchSize int `json:"batch_size" example:"512"`
}

// WorkItem is one queued folder with its own prompt and progress.
type WorkItem struct {
	// Queue-assigned identifier, stable for the item's lifetime.
	// example: 3
	ID int `json:"id" example:"3"`
	// Absolute path of the folder to caption.
	// example: /data/sets/portraits
	FolderPath string `json:"folder_path" example:"/data/sets/portraits"`
	// Prompt used for this folder; empty means the built-in default.
	Prompt string `json:"prompt,omitempty"`
	// Lifecycle status of the item.
	// example: pending
	Status ItemStatus `json:"status" example:"pending"`
	// Images completed (captioned or skipped) in the current/last run.
	Done int `json:"done"`
	// Total images discovered in the current/last run.
	Total int `json:"total"`
}

// Model represents a discoverable GGUF file on disk.
type Model struct {
	// Stable identifier for the model (the file name).
	// example: qwen2-vl-7b-q4.gguf
	ID string `json:"id" example:"qwen2-vl-7b-q4.gguf"`
	// Absolute path to the model file on disk.
	// example: /home/user/models/qwen2-vl-7b-q4.gguf
	Path string `json:"path" example:"/home/user/models/qwen2-vl-7b-q4.gguf"`
	// File size in bytes.
	SizeBytes int64 `json:"size_bytes,omitempty"`
}

// Settings is the persisted key-value configuration, saved on every change.
type Settings struct {
	ServerBinary  string `json:"server_binary"`
	ModelFile     string `json:"model_file"`
	ProjectorFile string `json:"projector_file"`
	Port          string `json:"port"`
	Context       string `json:"context"`
	GPULayers     string `json:"gpu_layers"`
	LastPrompt    string `json:"last_prompt"`
}

// VRAMInfo is a point-in-time GPU memory reading from nvidia-smi.
type VRAMInfo struct {
	// example: 4096
	UsedMB int `json:"used_mb" example:"4096"`
	// example: 12288
	FreeMB int `json:"free_mb" example:"12288"`
	// example: 16384
	TotalMB int `json:"total_mb" example:"16384"`
}
