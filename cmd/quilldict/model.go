package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quillpad/quilldict/internal/models/whisper"
	"github.com/quillpad/quilldict/internal/tui"
)

func modelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Manage whisper models",
	}

	cmd.AddCommand(modelListCmd())
	cmd.AddCommand(modelDownloadCmd())
	cmd.AddCommand(modelRemoveCmd())

	return cmd
}

func modelListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available whisper models",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(renderModels(whisper.ListModels(), whisper.IsInstalled))
			installed := whisper.ListInstalled()
			if len(installed) == 0 {
				fmt.Println(tui.StyleMuted.Render("\nno models installed, try: quilldict model download base.en"))
				return nil
			}
			fmt.Println(tui.StyleMuted.Render(fmt.Sprintf("\n%d installed: %s", len(installed), strings.Join(installed, ", "))))
			return nil
		},
	}
}

func renderModels(models []whisper.ModelInfo, installed func(string) bool) string {
	var b strings.Builder
	for _, m := range models {
		mark := "[ ]"
		if installed(m.ID) {
			mark = tui.StyleSuccess.Render("[x]")
		}
		var tags []string
		tags = append(tags, m.Size)
		if !m.Multilingual {
			tags = append(tags, "english")
		}
		fmt.Fprintf(&b, "  %s %-16s %s %s\n", mark, m.ID, m.Name, tui.StyleMuted.Render("["+strings.Join(tags, ", ")+"]"))
	}
	return strings.TrimRight(b.String(), "\n")
}

func modelDownloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "download <model-name>",
		Short: "Download a whisper model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModelDownload(cmd.Context(), args[0])
		},
	}
}

func runModelDownload(ctx context.Context, modelName string) error {
	model := whisper.GetModel(modelName)
	if model == nil {
		return fmt.Errorf("unknown model: %s (see quilldict model list)", modelName)
	}

	if whisper.IsInstalled(modelName) {
		fmt.Printf("model '%s' is already installed at %s\n", modelName, whisper.GetModelPath(modelName))
		return nil
	}

	fmt.Printf("downloading %s (%s)...\n", modelName, model.Size)

	var lastPercent int
	err := whisper.Download(ctx, modelName, func(downloaded, total int64) {
		if total > 0 {
			percent := int(downloaded * 100 / total)
			if percent >= lastPercent+10 {
				fmt.Printf("%d%% ", percent)
				lastPercent = percent
			}
		}
	})
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}

	fmt.Printf("\n%s %s\n", tui.StyleSuccess.Render("download complete:"), whisper.GetModelPath(modelName))
	return nil
}

func modelRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <model-name>",
		Short: "Remove a downloaded whisper model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			modelName := args[0]
			if whisper.GetModel(modelName) == nil {
				return fmt.Errorf("unknown model: %s", modelName)
			}
			if !whisper.IsInstalled(modelName) {
				return fmt.Errorf("model '%s' is not installed", modelName)
			}
			if err := whisper.Remove(modelName); err != nil {
				return fmt.Errorf("failed to remove model: %w", err)
			}
			fmt.Printf("model '%s' removed successfully\n", modelName)
			return nil
		},
	}
}
