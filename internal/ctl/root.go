package ctl

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"captiond/pkg/types"
)

// BuildRootCmd constructs the capctl command tree.
func BuildRootCmd() *cobra.Command {
	var client *Client
	root := &cobra.Command{
		Use:           "capctl",
		Short:         "Control a running captiond daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultAddr := "http://127.0.0.1:8090"
	if v := os.Getenv("CAPCTL_ADDR"); v != "" {
		defaultAddr = v
	}
	root.PersistentFlags().String("addr", defaultAddr, "captiond base URL (defaults CAPCTL_ADDR or http://127.0.0.1:8090)")
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		addr, _ := cmd.Flags().GetString("addr")
		client = NewClient(addr)
	}

	// server group
	serverCmd := &cobra.Command{Use: "server", Short: "Manage the inference server process", RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("server requires a subcommand: start|stop|status|logs")
	}}
	var startCfg types.ServerConfig
	serverStart := &cobra.Command{Use: "start", Short: "Launch llama-server (empty fields use saved settings)", RunE: func(cmd *cobra.Command, args []string) error {
		var resp types.ServerStatusResponse
		if err := client.post("/server/start", types.StartServerRequest{Config: startCfg}, &resp); err != nil {
			return err
		}
		fmt.Printf("state=%s pid=%d url=%s\n", resp.State, resp.PID, resp.BaseURL)
		return nil
	}}
	serverStart.Flags().StringVar(&startCfg.BinaryPath, "binary", "", "llama-server binary path")
	serverStart.Flags().StringVar(&startCfg.ModelPath, "model", "", "GGUF model path")
	serverStart.Flags().StringVar(&startCfg.ProjectorPath, "mmproj", "", "multimodal projector path")
	serverStart.Flags().IntVar(&startCfg.Port, "port", 0, "server port")
	serverStart.Flags().IntVar(&startCfg.ContextSize, "ctx", 0, "context size")
	serverStart.Flags().IntVar(&startCfg.GPULayers, "ngl", 0, "GPU layers")
	serverStart.Flags().IntVar(&startCfg.BatchSize, "batch", 0, "batch size")
	serverStop := &cobra.Command{Use: "stop", Short: "Signal the server process group to stop", RunE: func(cmd *cobra.Command, args []string) error {
		var resp types.ServerStatusResponse
		if err := client.post("/server/stop", nil, &resp); err != nil {
			return err
		}
		fmt.Printf("state=%s\n", resp.State)
		return nil
	}}
	serverStatus := &cobra.Command{Use: "status", Short: "Show the server state", RunE: func(cmd *cobra.Command, args []string) error {
		var resp types.ServerStatusResponse
		if err := client.get("/server/status", &resp); err != nil {
			return err
		}
		fmt.Printf("state=%s pid=%d url=%s\n", resp.State, resp.PID, resp.BaseURL)
		return nil
	}}
	serverLogs := &cobra.Command{Use: "logs", Short: "Print the retained server output tail", RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Lines []string `json:"lines"`
		}
		if err := client.get("/server/logs", &resp); err != nil {
			return err
		}
		for _, l := range resp.Lines {
			fmt.Println(l)
		}
		return nil
	}}
	serverCmd.AddCommand(serverStart, serverStop, serverStatus, serverLogs)
	root.AddCommand(serverCmd)

	// queue group
	queueCmd := &cobra.Command{Use: "queue", Short: "Manage the folder queue", RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("queue requires a subcommand: ls|add|rm|prompt")
	}}
	queueLs := &cobra.Command{Use: "ls", Short: "List queued folders", RunE: func(cmd *cobra.Command, args []string) error {
		var resp types.QueueResponse
		if err := client.get("/queue/", &resp); err != nil {
			return err
		}
		for _, it := range resp.Items {
			fmt.Printf("%3d  %-10s  %d/%d  %s\n", it.ID, it.Status, it.Done, it.Total, it.FolderPath)
		}
		return nil
	}}
	var addPrompt string
	queueAdd := &cobra.Command{Use: "add <folder>", Short: "Append a folder to the queue", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		var item types.WorkItem
		if err := client.post("/queue/", types.EnqueueRequest{FolderPath: args[0], Prompt: addPrompt}, &item); err != nil {
			return err
		}
		fmt.Printf("queued #%d %s\n", item.ID, item.FolderPath)
		return nil
	}}
	queueAdd.Flags().StringVar(&addPrompt, "prompt", "", "prompt for this folder (empty uses the last-used prompt)")
	queueRm := &cobra.Command{Use: "rm <id>", Short: "Remove a queued folder", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid id: %s", args[0])
		}
		return client.delete("/queue/" + strconv.Itoa(id))
	}}
	queuePrompt := &cobra.Command{Use: "prompt <id> <text>", Short: "Set a queued folder's prompt", Args: cobra.MinimumNArgs(2), RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid id: %s", args[0])
		}
		text := strings.Join(args[1:], " ")
		return client.put("/queue/"+strconv.Itoa(id)+"/prompt", types.SetPromptRequest{Prompt: text}, nil)
	}}
	queueCmd.AddCommand(queueLs, queueAdd, queueRm, queuePrompt)
	root.AddCommand(queueCmd)

	// batch group
	batchCmd := &cobra.Command{Use: "batch", Short: "Control batch captioning runs", RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("batch requires a subcommand: start|stop|progress|watch")
	}}
	var overwrite bool
	batchStart := &cobra.Command{Use: "start", Short: "Start a run over the queue", RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Started bool `json:"started"`
		}
		if err := client.post("/batch/start", types.StartBatchRequest{Overwrite: overwrite}, &resp); err != nil {
			return err
		}
		if !resp.Started {
			fmt.Println("nothing to do")
			return nil
		}
		fmt.Println("run started")
		return nil
	}}
	batchStart.Flags().BoolVar(&overwrite, "overwrite", false, "regenerate existing captions")
	batchStop := &cobra.Command{Use: "stop", Short: "Request a cooperative stop", RunE: func(cmd *cobra.Command, args []string) error {
		return client.post("/batch/stop", nil, nil)
	}}
	batchProgress := &cobra.Command{Use: "progress", Short: "Show run progress", RunE: func(cmd *cobra.Command, args []string) error {
		var p types.BatchProgressResponse
		if err := client.get("/batch/progress", &p); err != nil {
			return err
		}
		fmt.Printf("running=%v %.1f%% %s\n", p.Running, p.Percent, p.Label)
		return nil
	}}
	batchWatch := &cobra.Command{Use: "watch", Short: "Follow status lines until the run ends", RunE: func(cmd *cobra.Command, args []string) error {
		return watchRun(client, time.Second)
	}}
	batchCmd.AddCommand(batchStart, batchStop, batchProgress, batchWatch)
	root.AddCommand(batchCmd)

	statusCmd := &cobra.Command{Use: "status", Short: "Print the status log", RunE: func(cmd *cobra.Command, args []string) error {
		var resp types.StatusResponse
		if err := client.get("/status", &resp); err != nil {
			return err
		}
		for _, l := range resp.Lines {
			fmt.Println(l.Message)
		}
		return nil
	}}
	root.AddCommand(statusCmd)

	modelsCmd := &cobra.Command{Use: "models", Short: "List GGUF models in the daemon's models dir", RunE: func(cmd *cobra.Command, args []string) error {
		var resp types.ModelsResponse
		if err := client.get("/models", &resp); err != nil {
			return err
		}
		for _, m := range resp.Models {
			fmt.Printf("%-40s %8.1f MB\n", m.ID, float64(m.SizeBytes)/(1024*1024))
		}
		return nil
	}}
	root.AddCommand(modelsCmd)

	binaryCmd := &cobra.Command{Use: "binary", Short: "Show the auto-detected llama-server binary", RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Path string `json:"path"`
		}
		if err := client.get("/binary", &resp); err != nil {
			return err
		}
		if resp.Path == "" {
			fmt.Println("no llama-server build found")
			return nil
		}
		fmt.Println(resp.Path)
		return nil
	}}
	root.AddCommand(binaryCmd)

	// settings group
	settingsCmd := &cobra.Command{Use: "settings", Short: "Inspect or edit persisted settings", RunE: func(cmd *cobra.Command, args []string) error {
		var s types.Settings
		if err := client.get("/settings", &s); err != nil {
			return err
		}
		printSettings(s)
		return nil
	}}
	settingsSet := &cobra.Command{Use: "set", Short: "Update settings fields", RunE: func(cmd *cobra.Command, args []string) error {
		var s types.Settings
		if err := client.get("/settings", &s); err != nil {
			return err
		}
		applySettingsFlags(cmd, &s)
		var out types.Settings
		if err := client.put("/settings", s, &out); err != nil {
			return err
		}
		printSettings(out)
		return nil
	}}
	settingsSet.Flags().String("binary", "", "llama-server binary path")
	settingsSet.Flags().String("model", "", "GGUF model path")
	settingsSet.Flags().String("mmproj", "", "projector path")
	settingsSet.Flags().String("port", "", "server port")
	settingsSet.Flags().String("ctx", "", "context size")
	settingsSet.Flags().String("ngl", "", "GPU layers")
	settingsSet.Flags().String("prompt", "", "last-used prompt")
	settingsCmd.AddCommand(settingsSet)
	root.AddCommand(settingsCmd)

	// filter move
	filterCmd := &cobra.Command{Use: "filter", Short: "Caption keyword tools", RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("filter requires a subcommand: move")
	}}
	filterMove := &cobra.Command{Use: "move <source> <keyword> <target>", Short: "Move image/caption pairs whose caption contains keyword", Args: cobra.ExactArgs(3), RunE: func(cmd *cobra.Command, args []string) error {
		var resp types.MoveResponse
		req := types.MoveRequest{SourceDir: args[0], Keyword: args[1], TargetDir: args[2]}
		if err := client.post("/filter/move", req, &resp); err != nil {
			return err
		}
		for _, l := range resp.Log {
			fmt.Println(l)
		}
		fmt.Printf("moved %d pairs\n", resp.Moved)
		return nil
	}}
	filterCmd.AddCommand(filterMove)
	root.AddCommand(filterCmd)

	// gpu group
	gpuCmd := &cobra.Command{Use: "gpu", Short: "GPU utilities via nvidia-smi", RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("gpu requires a subcommand: vram|kill")
	}}
	gpuVRAM := &cobra.Command{Use: "vram", Short: "Show used/free/total VRAM", RunE: func(cmd *cobra.Command, args []string) error {
		var v types.VRAMInfo
		if err := client.get("/gpu/vram", &v); err != nil {
			return err
		}
		fmt.Printf("used=%dMB free=%dMB total=%dMB\n", v.UsedMB, v.FreeMB, v.TotalMB)
		return nil
	}}
	gpuKill := &cobra.Command{Use: "kill", Short: "Terminate GPU compute processes", RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Killed int `json:"killed"`
		}
		if err := client.post("/gpu/kill", nil, &resp); err != nil {
			return err
		}
		fmt.Printf("signaled %d processes\n", resp.Killed)
		return nil
	}}
	gpuCmd.AddCommand(gpuVRAM, gpuKill)
	root.AddCommand(gpuCmd)

	return root
}

// Execute runs the command tree, printing errors to stderr.
func Execute() error {
	root := BuildRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return err
	}
	return nil
}

// watchRun polls the status log and progress until the run ends.
func watchRun(client *Client, interval time.Duration) error {
	var cursor int64
	for {
		var s types.StatusResponse
		if err := client.get("/status?since="+strconv.FormatInt(cursor, 10), &s); err != nil {
			return err
		}
		for _, l := range s.Lines {
			fmt.Println(l.Message)
			cursor = l.Seq
		}
		var p types.BatchProgressResponse
		if err := client.get("/batch/progress", &p); err != nil {
			return err
		}
		if !p.Running {
			fmt.Printf("done: %.1f%%\n", p.Percent)
			return nil
		}
		time.Sleep(interval)
	}
}

func printSettings(s types.Settings) {
	fmt.Printf("binary:  %s\n", s.ServerBinary)
	fmt.Printf("model:   %s\n", s.ModelFile)
	fmt.Printf("mmproj:  %s\n", s.ProjectorFile)
	fmt.Printf("port:    %s\n", s.Port)
	fmt.Printf("ctx:     %s\n", s.Context)
	fmt.Printf("ngl:     %s\n", s.GPULayers)
	fmt.Printf("prompt:  %s\n", s.LastPrompt)
}

func applySettingsFlags(cmd *cobra.Command, s *types.Settings) {
	if v, _ := cmd.Flags().GetString("binary"); v != "" {
		s.ServerBinary = v
	}
	if v, _ := cmd.Flags().GetString("model"); v != "" {
		s.ModelFile = v
	}
	if v, _ := cmd.Flags().GetString("mmproj"); v != "" {
		s.ProjectorFile = v
	}
	if v, _ := cmd.Flags().GetString("port"); v != "" {
		s.Port = v
	}
	if v, _ := cmd.Flags().GetString("ctx"); v != "" {
		s.Context = v
	}
	if v, _ := cmd.Flags().GetString("ngl"); v != "" {
		s.GPULayers = v
	}
	if v, _ := cmd.Flags().GetString("prompt"); v != "" {
		s.LastPrompt = v
	}
}
