// Package index maintains an in-memory full-text index over entity records
// for search. It is a read-only collaborator: it never takes the write path
// and tolerates records changing underneath it, reindexing on filesystem
// notification.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/smallfab/smallfab/core/entity"
)

// rebuildWorkers bounds concurrent record indexing during a full rebuild.
const rebuildWorkers = 4

// Hit is one search result.
type Hit struct {
	ID    string
	Score float64
}

// Index is a searchable view over one record store.
type Index struct {
	store  *entity.Store
	idx    bleve.Index
	logger *slog.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// New creates an empty in-memory index over the store.
func New(store *entity.Store, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.Default()
	}
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	return &Index{store: store, idx: idx, logger: logger}, nil
}

// Rebuild indexes every record, replacing prior documents. Records are
// indexed concurrently; bleve handles concurrent writers.
func (ix *Index) Rebuild(ctx context.Context) error {
	recs, err := ix.store.List("")
	if err != nil {
		return err
	}
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(rebuildWorkers)
	for _, rec := range recs {
		g.Go(func() error { return ix.indexRecord(rec) })
	}
	return g.Wait()
}

func (ix *Index) indexRecord(rec *entity.Record) error {
	doc := map[string]any{"sfid": rec.ID.String()}
	for k, v := range rec.Fields {
		switch val := v.(type) {
		case string:
			doc[k] = val
		case bool, int, int64, float64:
			doc[k] = fmt.Sprintf("%v", val)
		}
	}
	return ix.idx.Index(rec.ID.String(), doc)
}

// Search runs a query-string query and returns up to limit hits.
func (ix *Index) Search(query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 10
	}
	req := bleve.NewSearchRequestOptions(bleve.NewQueryStringQuery(query), limit, 0, false)
	res, err := ix.idx.Search(req)
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, Hit{ID: h.ID, Score: h.Score})
	}
	return hits, nil
}

// Watch starts a filesystem watcher over entities/ that reindexes records as
// their canonical files change. Returns immediately; stop with Close.
func (ix *Index) Watch() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.watcher != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	root := filepath.Join(ix.store.Git().Root(), entity.EntitiesDir)
	if err := watcher.Add(root); err != nil {
		watcher.Close()
		return err
	}
	// Watch existing record directories; new ones are added on create events.
	names, err := ix.store.Git().ListSubdirs(entity.EntitiesDir)
	if err != nil {
		watcher.Close()
		return err
	}
	for _, name := range names {
		if err := watcher.Add(filepath.Join(root, name)); err != nil {
			ix.logger.Warn("cannot watch entity directory", "sfid", name, "error", err)
		}
	}

	ix.watcher = watcher
	ix.done = make(chan struct{})
	go ix.watchLoop(watcher, root)
	return nil
}

func (ix *Index) watchLoop(watcher *fsnotify.Watcher, root string) {
	defer close(ix.done)
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			ix.handleEvent(watcher, root, ev)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			ix.logger.Warn("index watcher error", "error", err)
		}
	}
}

func (ix *Index) handleEvent(watcher *fsnotify.Watcher, root string, ev fsnotify.Event) {
	rel, err := filepath.Rel(root, ev.Name)
	if err != nil {
		return
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")

	// A new record directory appears directly under entities/.
	if len(parts) == 1 && ev.Op.Has(fsnotify.Create) {
		if err := watcher.Add(ev.Name); err == nil {
			ix.reindex(parts[0])
		}
		return
	}
	if len(parts) != 2 || parts[1] != entity.RecordFile {
		return
	}
	id := parts[0]
	if ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename) {
		if err := ix.idx.Delete(id); err != nil {
			ix.logger.Warn("index delete failed", "sfid", id, "error", err)
		}
		return
	}
	ix.reindex(id)
}

func (ix *Index) reindex(id string) {
	rec, err := ix.store.Get(id)
	if err != nil {
		return
	}
	if err := ix.indexRecord(rec); err != nil {
		ix.logger.Warn("reindex failed", "sfid", id, "error", err)
	}
}

// Close stops the watcher and releases the index.
func (ix *Index) Close() error {
	ix.mu.Lock()
	watcher, done := ix.watcher, ix.done
	ix.watcher, ix.done = nil, nil
	ix.mu.Unlock()

	if watcher != nil {
		watcher.Close()
		<-done
	}
	return ix.idx.Close()
}
