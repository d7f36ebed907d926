// Package main provides the fileforgectl CLI entrypoint.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"github.com/fileforge/fileforge/internal/observability"
	"github.com/fileforge/fileforge/internal/sweeper"
)

var (
	serverURL  string
	outputJSON bool
)

var rootCmd = &cobra.Command{
	Use:   "fileforgectl",
	Short: "FileForge CLI for submitting and tracking file conversions",
	Long: `fileforgectl talks to a running FileForge API server.

Use this tool to:
- Submit a file for conversion
- Poll conversion status
- Download the converted result
- Sweep expired files from local server directories

All commands support --json for automation.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", envOr("FILEFORGE_SERVER", "http://localhost:8090"), "FileForge API base URL")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")

	rootCmd.AddCommand(newConvertCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newDownloadCmd())
	rootCmd.AddCommand(newSweepCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// conversionView mirrors the API's status projection.
type conversionView struct {
	ConversionID     string   `json:"conversionId"`
	Status           string   `json:"status"`
	OriginalFileName string   `json:"originalFileName"`
	TargetFormat     string   `json:"targetFormat"`
	Warnings         []string `json:"warnings,omitempty"`
	Error            string   `json:"error,omitempty"`
	DownloadURL      string   `json:"downloadUrl,omitempty"`
	FileName         string   `json:"fileName,omitempty"`
}

func newConvertCmd() *cobra.Command {
	var (
		target   string
		quality  string
		compress bool
		ocr      bool
		tables   bool
		wait     bool
	)

	cmd := &cobra.Command{
		Use:   "convert <file>",
		Short: "Submit a file for conversion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" {
				return fmt.Errorf("--to is required")
			}

			accepted, err := submitConversion(args[0], target, quality, compress, ocr, tables)
			if err != nil {
				return err
			}

			if !wait {
				return printResult(accepted)
			}

			final, err := pollUntilTerminal(accepted.ConversionID)
			if err != nil {
				return err
			}
			if final.Status == "failed" {
				printResult(final)
				return fmt.Errorf("conversion failed: %s", final.Error)
			}
			return printResult(final)
		},
	}

	cmd.Flags().StringVarP(&target, "to", "t", "", "target format (required)")
	cmd.Flags().StringVarP(&quality, "quality", "q", "medium", "quality tier: low, medium or high")
	cmd.Flags().BoolVar(&compress, "compress", false, "prefer smaller output over fidelity")
	cmd.Flags().BoolVar(&ocr, "ocr", false, "force OCR for document sources")
	cmd.Flags().BoolVar(&tables, "tables", false, "extract tables for spreadsheet targets")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "poll until the conversion finishes")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <conversion-id>",
		Short: "Show the status of a conversion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := fetchStatus(args[0])
			if err != nil {
				return err
			}
			return printResult(view)
		},
	}
}

func newDownloadCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "download <conversion-id>",
		Short: "Download a completed conversion result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return downloadResult(args[0], output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output path (default: server-provided file name)")
	return cmd
}

// newSweepCmd reaps expired files from local upload and artifact
// directories. The API server runs the same sweep on a timer; this
// command covers servers running with the sweeper disabled and cleanup
// after a crash.
func newSweepCmd() *cobra.Command {
	var (
		dirs   []string
		window time.Duration
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove files older than the retention window from local directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(dirs) == 0 {
				return fmt.Errorf("at least one --dir is required")
			}

			logger := observability.NewLogger(observability.LogConfig{
				Level:       "info",
				Format:      "console",
				Output:      os.Stderr,
				ServiceName: "fileforgectl",
			})
			removed := sweeper.New(dirs, window, 0, logger).SweepOnce()
			fmt.Printf("Removed %d expired file(s)\n", removed)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&dirs, "dir", nil, "directory to sweep (repeatable)")
	cmd.Flags().DurationVar(&window, "window", 24*time.Hour, "age past which files are removed")
	return cmd
}

func submitConversion(path, target, quality string, compress, ocr, tables bool) (*conversionView, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		fw, err := mw.CreateFormFile("file", filepath.Base(path))
		if err == nil {
			_, err = io.Copy(fw, file)
		}
		if err == nil {
			fields := map[string]string{
				"targetFormat":    target,
				"quality":         quality,
				"compress":        fmt.Sprintf("%t", compress),
				"ocrEnabled":      fmt.Sprintf("%t", ocr),
				"tableExtraction": fmt.Sprintf("%t", tables),
			}
			for k, v := range fields {
				if err = mw.WriteField(k, v); err != nil {
					break
				}
			}
		}
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	resp, err := http.Post(serverURL+"/api/convert", mw.FormDataContentType(), pr)
	if err != nil {
		return nil, fmt.Errorf("submit conversion: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var view conversionView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &view, nil
}

func fetchStatus(id string) (*conversionView, error) {
	resp, err := http.Get(serverURL + "/api/conversion/" + id)
	if err != nil {
		return nil, fmt.Errorf("fetch status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var view conversionView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &view, nil
}

func pollUntilTerminal(id string) (*conversionView, error) {
	if !outputJSON {
		sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		sp.Suffix = " converting " + id + "..."
		sp.Writer = os.Stderr
		sp.Start()
		defer sp.Stop()
	}

	for {
		view, err := fetchStatus(id)
		if err != nil {
			return nil, err
		}
		if view.Status != "processing" {
			return view, nil
		}
		time.Sleep(time.Second)
	}
}

func downloadResult(id, output string) error {
	view, err := fetchStatus(id)
	if err != nil {
		return err
	}
	if view.DownloadURL == "" {
		return fmt.Errorf("conversion %s has no downloadable result (status: %s)", id, view.Status)
	}

	resp, err := http.Get(serverURL + view.DownloadURL)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}

	if output == "" {
		output = view.FileName
	}
	out, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer out.Close()

	n, err := io.Copy(out, resp.Body)
	if err != nil {
		return fmt.Errorf("write output file: %w", err)
	}

	fmt.Printf("Saved %s (%d bytes)\n", output, n)
	return nil
}

func apiError(resp *http.Response) error {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Message != "" {
		return fmt.Errorf("server returned %s: %s", resp.Status, body.Message)
	}
	return fmt.Errorf("server returned %s", resp.Status)
}

func printResult(v *conversionView) error {
	if outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	fmt.Printf("Conversion: %s\n", v.ConversionID)
	fmt.Printf("Status:     %s\n", v.Status)
	if v.FileName != "" {
		fmt.Printf("File:       %s\n", v.FileName)
	}
	if v.DownloadURL != "" {
		fmt.Printf("Download:   %s%s\n", serverURL, v.DownloadURL)
	}
	for _, w := range v.Warnings {
		fmt.Printf("Warning:    %s\n", w)
	}
	if v.Error != "" {
		fmt.Printf("Error:      %s\n", v.Error)
	}
	return nil
}
