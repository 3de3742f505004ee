package main

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/visivo/backend/pkg/client"
	"github.com/zhouzirui/visivo/backend/pkg/upload"
)

func chatCmd() *cobra.Command {
	var filePath string

	cmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Send a message and stream the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			conv, kv, err := openConversation(ctx)
			if err != nil {
				return err
			}
			defer kv.Close()

			var attachment *client.Attachment
			if filePath != "" {
				data, err := os.ReadFile(filePath)
				if err != nil {
					return err
				}
				attachment = &client.Attachment{
					Name:     filepath.Base(filePath),
					MimeType: detectMimeType(filePath, data),
					Data:     data,
				}
			}

			out := cmd.OutOrStdout()
			_, err = conv.Send(ctx, newClient(), strings.Join(args, " "), attachment,
				client.WithFragmentHandler(func(fragment string) {
					fmt.Fprint(out, fragment)
				}))
			fmt.Fprintln(out)

			if errors.Is(err, client.ErrStreamInterrupted) {
				logger.Warn("reply interrupted; partial text kept", "error", err)
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&filePath, "file", "f", "", "attach a file to the message")
	return cmd
}

func analyzeCmd() *cobra.Command {
	var (
		speak  bool
		outDir string
	)

	cmd := &cobra.Command{
		Use:   "analyze <image>...",
		Short: "Describe up to three images",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			set := upload.NewSet(upload.DefaultLimits())
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				errs := set.Add(upload.Candidate{
					Name:     filepath.Base(path),
					MimeType: detectMimeType(path, data),
					Size:     int64(len(data)),
					Data:     data,
				})
				for _, err := range errs {
					logger.Warn("image rejected", "file", path, "reason", err)
				}
			}
			if set.Len() == 0 {
				return errors.New("no valid images to analyze")
			}

			cl := newClient()
			cands := set.Items()
			results := cl.AnalyzeAll(ctx, cands)

			cache := client.NewSynthesisCache()
			out := cmd.OutOrStdout()
			for _, res := range results {
				if res.Err != nil {
					logger.Error("analysis failed", "file", res.Name, "error", res.Err)
					continue
				}
				fmt.Fprintf(out, "%s:\n%s\n\n", res.Name, res.Description)

				if !speak {
					continue
				}
				cand := cands[res.Index]
				handle, err := cache.GetOrSynthesize(ctx, res.Description, func(ctx context.Context, text string) ([]byte, error) {
					return cl.Synthesize(ctx, cand, text)
				})
				if err != nil {
					logger.Error("speech synthesis failed", "file", res.Name, "error", err)
					continue
				}
				wavPath := filepath.Join(outDir, strings.TrimSuffix(res.Name, filepath.Ext(res.Name))+".wav")
				if err := os.WriteFile(wavPath, handle.Data, 0o644); err != nil {
					return err
				}
				logger.Info("audio written", "file", wavPath, "handle", handle.URL)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&speak, "speak", false, "synthesize each description to a .wav file")
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "directory for synthesized audio")
	return cmd
}

func historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Print the stored conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			conv, kv, err := openConversation(cmd.Context())
			if err != nil {
				return err
			}
			defer kv.Close()

			out := cmd.OutOrStdout()
			for _, m := range conv.Messages() {
				switch v := m.(type) {
				case *client.UserMessage:
					fmt.Fprintf(out, "[%s] you: %s", v.CreatedAt.Local().Format("15:04"), v.Text)
					if v.Attachment != nil {
						fmt.Fprintf(out, " (%s, %d bytes)", v.Attachment.Name, v.Attachment.Size)
					}
					fmt.Fprintln(out)
				case *client.AssistantMessage:
					marker := ""
					if v.Interrupted {
						marker = " [interrupted]"
					}
					fmt.Fprintf(out, "[%s] visivo%s:\n%s\n", v.CreatedAt.Local().Format("15:04"), marker, v.HTML)
				}
			}
			return nil
		},
	}
}

func clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the stored conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			conv, kv, err := openConversation(cmd.Context())
			if err != nil {
				return err
			}
			defer kv.Close()

			if err := conv.Clear(cmd.Context()); err != nil {
				return err
			}
			logger.Info("conversation cleared", "db", dbPath)
			return nil
		},
	}
}

// Some mime tables lack HEIC/HEIF.
var extraImageTypes = map[string]string{
	".heic": "image/heic",
	".heif": "image/heif",
}

// detectMimeType prefers the extension and falls back to sniffing.
func detectMimeType(path string, data []byte) string {
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := extraImageTypes[ext]; ok {
		return t
	}
	if byExt := mime.TypeByExtension(ext); byExt != "" {
		if i := strings.IndexByte(byExt, ';'); i >= 0 {
			byExt = byExt[:i]
		}
		return byExt
	}
	return http.DetectContentType(data)
}
