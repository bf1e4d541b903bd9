// Package refdata assembles a project's reference corpus into the single
// text block substituted for {{reference_data}}.
package refdata

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"lookupcore/internal/lookup"
	"lookupcore/internal/storage/blob"
	"lookupcore/internal/store"
)

// VersionLatest selects the is_latest corpus instead of a pinned version.
const VersionLatest = 0

// Reference is one loaded corpus snapshot.
type Reference struct {
	// Version is the corpus version the content was loaded from.
	Version int
	// Content is the concatenated file blocks, fed to the prompt as-is.
	Content string
	// Files lists the file names in concatenation order.
	Files []string
	// TotalSize is len(Content) in bytes.
	TotalSize int
}

// Loader reads extracted reference text through the blob store.
type Loader struct {
	sources store.DataSources
	blobs   blob.Store
}

func NewLoader(sources store.DataSources, blobs blob.Store) *Loader {
	return &Loader{sources: sources, blobs: blobs}
}

// Load assembles the reference content of a project. version == VersionLatest
// loads the is_latest corpus; any other value pins that exact version. Every
// source must have completed extraction or the load fails as a whole with
// ExtractionNotCompleteError naming the offenders.
func (l *Loader) Load(ctx context.Context, projectID string, version int) (Reference, error) {
	var (
		sources []lookup.DataSource
		err     error
	)
	if version == VersionLatest {
		sources, err = l.sources.LatestSources(ctx, projectID)
	} else {
		sources, err = l.sources.SourcesAtVersion(ctx, projectID, version)
	}
	if err != nil {
		return Reference{}, fmt.Errorf("load sources: %w", err)
	}
	if len(sources) == 0 {
		return Reference{Version: version}, nil
	}

	var pending []string
	for _, src := range sources {
		if src.ExtractionStatus != lookup.ExtractionCompleted {
			pending = append(pending, src.FileName)
		}
	}
	if len(pending) > 0 {
		return Reference{}, &lookup.ExtractionNotCompleteError{Files: pending}
	}

	ref := Reference{Version: sources[0].VersionNumber}
	var b strings.Builder
	for _, src := range sources {
		b.WriteString("=== File: ")
		b.WriteString(src.FileName)
		b.WriteString(" ===\n\n")
		b.WriteString(l.fileContent(ctx, src))
		b.WriteString("\n\n")
		ref.Files = append(ref.Files, src.FileName)
	}
	ref.Content = b.String()
	ref.TotalSize = len(ref.Content)
	return ref, nil
}

// fileContent reads the extracted text of one source. Extracted content wins;
// text-native formats fall back to the raw upload path. A read failure turns
// into an inline placeholder rather than failing the whole corpus.
func (l *Loader) fileContent(ctx context.Context, src lookup.DataSource) string {
	path := src.ExtractedContentPath
	if path == "" && src.FileType.TextNative() {
		path = src.FilePath
	}
	if path == "" {
		return placeholder("no extracted content")
	}
	data, err := l.blobs.Get(ctx, path)
	if err != nil {
		log.Warn().Err(err).
			Str("source_id", src.ID).
			Str("file_name", src.FileName).
			Str("path", path).
			Msg("reference file read failed")
		return placeholder(err.Error())
	}
	return string(data)
}

func placeholder(reason string) string {
	return fmt.Sprintf("[Error loading file: %s]", reason)
}
