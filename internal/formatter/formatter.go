// package formatter exports a user's acquired library to JSON, CSV, Markdown and plain text
package formatter

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/desertthunder/stash/internal/models"
	"github.com/desertthunder/stash/internal/shared"
)

// Formats lists the supported export formats.
var Formats = []string{"json", "csv", "markdown", "txt"}

// LibraryTrack is one acquired track with its playable URL.
type LibraryTrack struct {
	*models.AcquisitionRecord
	URL string `json:"url,omitempty"`
}

// LibraryExport is a snapshot of a user's library.
type LibraryExport struct {
	UserID     string         `json:"user_id"`
	ExportedAt time.Time      `json:"exported_at"`
	Tracks     []LibraryTrack `json:"tracks"`
}

// NewLibraryExport builds an export from records. publicURL may be nil.
func NewLibraryExport(userID string, records []*models.AcquisitionRecord, publicURL func(key string) string) *LibraryExport {
	export := &LibraryExport{
		UserID:     userID,
		ExportedAt: time.Now().UTC(),
		Tracks:     make([]LibraryTrack, 0, len(records)),
	}
	for _, rec := range records {
		t := LibraryTrack{AcquisitionRecord: rec}
		if publicURL != nil {
			t.URL = publicURL(rec.StorageKey)
		}
		export.Tracks = append(export.Tracks, t)
	}
	return export
}

// TotalDurationMs sums known track durations.
func (e *LibraryExport) TotalDurationMs() int {
	total := 0
	for _, t := range e.Tracks {
		total += t.DurationMs
	}
	return total
}

// Export renders export in format. Unknown formats fail with [shared.ErrInvalidArgument].
func Export(export *LibraryExport, format string) ([]byte, error) {
	switch format {
	case "json", "":
		return shared.MarshalJSON(export, true)
	case "csv":
		return ExportToCSV(export)
	case "markdown", "md":
		return ExportToMarkdown(export, "")
	case "txt", "text":
		return ExportToText(export)
	default:
		return nil, fmt.Errorf("%w: format %q (want one of %v)", shared.ErrInvalidArgument, format, Formats)
	}
}

// ExportToCSV converts a LibraryExport to CSV with columns: Track, Title, Artist, Album, Duration (ms), Storage Key, URL
func ExportToCSV(export *LibraryExport) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Track", "Title", "Artist", "Album", "Duration", "Storage Key", "URL"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, track := range export.Tracks {
		record := []string{
			track.TrackRef,
			track.Title,
			track.Artist,
			track.Album,
			strconv.Itoa(track.DurationMs),
			track.StorageKey,
			track.URL,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts a LibraryExport to Markdown with an optional cover image
func ExportToMarkdown(export *LibraryExport, imageFilename string) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# Library: %s\n\n", export.UserID)

	if imageFilename != "" {
		fmt.Fprintf(&buf, "![Cover](%s)\n\n", imageFilename)
	}

	fmt.Fprintf(&buf, "**Tracks**: %d\n", len(export.Tracks))
	fmt.Fprintf(&buf, "**Total time**: %s\n\n", shared.FormatDuration(export.TotalDurationMs()))

	buf.WriteString("## Tracks\n\n")
	for i, track := range export.Tracks {
		albumPart := ""
		if track.Album != "" {
			albumPart = fmt.Sprintf(" (%s)", track.Album)
		}
		title := track.Title
		if track.URL != "" {
			title = fmt.Sprintf("[%s](%s)", track.Title, track.URL)
		}
		fmt.Fprintf(&buf, "%d. %s - %s%s [%s]\n", i+1, track.Artist, title, albumPart, shared.FormatDuration(track.DurationMs))
	}

	return buf.Bytes(), nil
}

// ExportToText converts a LibraryExport to plain text
func ExportToText(export *LibraryExport) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Library: %s\n", export.UserID)
	fmt.Fprintf(&buf, "Tracks: %d\n\n", len(export.Tracks))

	for i, track := range export.Tracks {
		fmt.Fprintf(&buf, "%d. %s - %s\n", i+1, track.Artist, track.Title)
	}

	return buf.Bytes(), nil
}

// DownloadImage downloads an image from the given URL and returns the raw bytes
func DownloadImage(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: empty URL provided", shared.ErrMissingArgument)
	}

	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: status %d", resp.StatusCode)
	}

	imageData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	return imageData, nil
}

// WriteExport renders export in format and writes it to path.
func WriteExport(export *LibraryExport, format, path string) error {
	data, err := Export(export, format)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	return nil
}

// MarkdownExportResult contains information about files created by WriteMarkdownExport
type MarkdownExportResult struct {
	Directory  string
	Files      []string
	CoverImage string
}

// WriteMarkdownExport exports the library to {outputDir}/README.md.
//
// When the first track has a cover, it is downloaded to {outputDir}/cover.jpg and embedded.
// A failed cover download is reported through warn and does not fail the export.
func WriteMarkdownExport(ctx context.Context, export *LibraryExport, outputDir string, warn func(error)) (*MarkdownExportResult, error) {
	if outputDir == "" {
		outputDir = fmt.Sprintf("%s_library", export.UserID)
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	result := &MarkdownExportResult{Directory: outputDir, Files: []string{}}

	var coverImageFilename string
	if len(export.Tracks) > 0 && export.Tracks[0].CoverURL != "" {
		imageData, err := DownloadImage(ctx, nil, export.Tracks[0].CoverURL)
		if err == nil {
			coverImagePath := filepath.Join(outputDir, "cover.jpg")
			err = os.WriteFile(coverImagePath, imageData, 0644)
			if err == nil {
				coverImageFilename = "cover.jpg"
				result.CoverImage = coverImagePath
				result.Files = append(result.Files, coverImagePath)
			}
		}
		if err != nil && warn != nil {
			warn(err)
		}
	}

	mdData, err := ExportToMarkdown(export, coverImageFilename)
	if err != nil {
		return nil, fmt.Errorf("failed to generate Markdown: %w", err)
	}

	mdFile := filepath.Join(outputDir, "README.md")
	if err := os.WriteFile(mdFile, mdData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write Markdown file: %w", err)
	}

	result.Files = append(result.Files, mdFile)
	return result, nil
}
