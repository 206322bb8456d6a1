package preview

import (
	"context"
	"fmt"
	"os"

	"github.com/dgallion1/texdesk/internal/docstore"
)

// StoreFetcher reads a document's working copy from the Document Store.
type StoreFetcher struct {
	Store *docstore.Store
	ID    string
}

func (f StoreFetcher) Fetch(ctx context.Context) (Source, error) {
	if err := ctx.Err(); err != nil {
		return Source{}, err
	}
	// Metadata first: if the copy changes in between, the stale marker only
	// causes one extra render on the next poll.
	meta, err := f.Store.Metadata(f.ID, docstore.WorkingCopyName)
	if err != nil {
		return Source{}, err
	}
	data, err := f.Store.ReadWorkingCopy(f.ID)
	if err != nil {
		return Source{}, err
	}
	return Source{Text: string(data), Marker: meta.Marker()}, nil
}

// FileFetcher reads a local file. The marker is its modification time and
// size.
type FileFetcher struct {
	Path string
}

func (f FileFetcher) Fetch(ctx context.Context) (Source, error) {
	if err := ctx.Err(); err != nil {
		return Source{}, err
	}
	info, err := os.Stat(f.Path)
	if err != nil {
		return Source{}, fmt.Errorf("stat %s: %w", f.Path, err)
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return Source{}, fmt.Errorf("read %s: %w", f.Path, err)
	}
	return Source{
		Text:   string(data),
		Marker: fmt.Sprintf("%d-%d", info.ModTime().UnixNano(), info.Size()),
	}, nil
}
