package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/AradIT/voipprov/internal/provisioning/domain"
)

// RequestedSet holds the extensions the operator asked to activate.
// Membership-only semantics; duplicates in the input are harmless.
type RequestedSet map[string]struct{}

func NewRequestedSet(extensions []string) RequestedSet {
	set := make(RequestedSet, len(extensions))
	for _, ext := range extensions {
		set[ext] = struct{}{}
	}
	return set
}

func (s RequestedSet) Contains(extension string) bool {
	_, ok := s[extension]
	return ok
}

func (s RequestedSet) Len() int {
	return len(s)
}

// extensionHeaderPrefix is matched case-insensitively against file headers;
// exactly one header must carry it.
const extensionHeaderPrefix = "ext"

// ExtensionResolver normalizes the requested-extension input: either a
// literal list of tokens or a tabular file whose extension column is found by
// a loose header match.
type ExtensionResolver struct {
	reader domain.TableReader
	logger *slog.Logger
}

// NewExtensionResolver creates a new ExtensionResolver.
func NewExtensionResolver(reader domain.TableReader, logger *slog.Logger) *ExtensionResolver {
	return &ExtensionResolver{
		reader: reader,
		logger: logger.With("component", "extension_resolver"),
	}
}

// Resolve produces the requested set. A file path wins over a literal list.
// File-mode parameter violations (missing file, wrong extension) are fatal;
// an ambiguous or missing extension column only degrades to an empty set with
// a warning, so the run still reports every subscriber as inactive.
func (r *ExtensionResolver) Resolve(ctx context.Context, extensions []string, filePath string) (RequestedSet, error) {
	if filePath == "" {
		return NewRequestedSet(extensions), nil
	}

	if _, err := os.Stat(filePath); err != nil {
		return nil, fmt.Errorf("extension file %s: %w", filePath, err)
	}
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".csv", ".txt":
	default:
		return nil, fmt.Errorf("extension file %s: unsupported file type %q", filePath, filepath.Ext(filePath))
	}

	table, err := r.reader.ReadTable(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("reading extension file %s: %w", filePath, err)
	}

	column := -1
	matches := 0
	for i, header := range table.Headers {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(header)), extensionHeaderPrefix) {
			column = i
			matches++
		}
	}
	if matches != 1 {
		r.logger.WarnContext(ctx, "Extension file needs exactly one header starting with 'ext'",
			"path", filePath, "matching_headers", matches)
		return NewRequestedSet(nil), nil
	}

	var values []string
	for _, row := range table.Rows {
		if column >= len(row) {
			continue
		}
		value := strings.TrimSpace(row[column])
		if value == "" {
			continue
		}
		values = append(values, value)
	}

	r.logger.InfoContext(ctx, "Resolved requested extensions from file",
		"path", filePath, "count", len(values))
	return NewRequestedSet(values), nil
}
