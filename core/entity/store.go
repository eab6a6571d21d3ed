package entity

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/gobwas/glob"

	"github.com/smallfab/smallfab/core/config"
	"github.com/smallfab/smallfab/core/gitstore"
	"github.com/smallfab/smallfab/core/sferr"
	"github.com/smallfab/smallfab/core/sfid"
)

// Store provides CRUD over canonical records in one working tree.
//
// Reads never lock and never mutate the tree. Mutating methods only touch
// working-tree files and return a ChangeSet; committing is the caller's
// responsibility, normally via a mutation transaction.
type Store struct {
	git    *gitstore.Store
	cfg    *config.RepoConfig
	logger *slog.Logger
}

// StoreConfig configures a Store.
type StoreConfig struct {
	// Repo is the repository-level configuration. Loaded from the tree
	// when nil.
	Repo *config.RepoConfig

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// NewStore creates a record store over the given working tree.
func NewStore(git *gitstore.Store, cfg StoreConfig) (*Store, error) {
	repoCfg := cfg.Repo
	if repoCfg == nil {
		loaded, err := config.LoadRepo(git.Root())
		if err != nil {
			return nil, err
		}
		repoCfg = loaded
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{git: git, cfg: repoCfg, logger: logger}, nil
}

// Git exposes the underlying tree for collaborating components.
func (s *Store) Git() *gitstore.Store {
	return s.git
}

// Create writes a new record. Fails when the identifier is taken, its syntax
// is invalid, or the fields violate the configured schema.
func (s *Store) Create(rawID string, fields map[string]any) (*Record, *gitstore.ChangeSet, error) {
	id, err := sfid.Parse(rawID)
	if err != nil {
		return nil, nil, err
	}
	if s.git.Exists(DirOf(id)) {
		return nil, nil, sferr.AlreadyExists("entity %s already exists", id)
	}

	clean := make(map[string]any, len(fields))
	for k, v := range fields {
		if k == "sfid" {
			continue
		}
		clean[k] = v
	}
	if err := s.cfg.ValidateRecord(id, clean); err != nil {
		return nil, nil, err
	}
	if err := s.writeRecord(id, clean); err != nil {
		return nil, nil, err
	}

	rec := &Record{ID: id, Fields: clean}
	change := &gitstore.ChangeSet{
		Paths:   []string{FileOf(id)},
		Summary: fmt.Sprintf("Created entity %s", id),
		SFIDs:   []string{id.String()},
	}
	return rec, change, nil
}

// Get reads one record.
func (s *Store) Get(rawID string) (*Record, error) {
	id, err := sfid.Parse(rawID)
	if err != nil {
		return nil, err
	}
	data, err := s.git.ReadFile(FileOf(id))
	if err != nil {
		if sferr.IsKind(err, sferr.KindNotFound) {
			return nil, sferr.NotFound("entity %s not found", id)
		}
		return nil, err
	}
	return decodeRecord(id, data)
}

// List returns all readable records, sorted by identifier. A non-empty
// pattern filters identifiers with glob syntax (e.g. "p_*"). Unreadable
// records are skipped with a log line rather than failing the listing.
func (s *Store) List(pattern string) ([]*Record, error) {
	var matcher glob.Glob
	if pattern != "" {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, sferr.Validation("invalid glob pattern %q", pattern)
		}
		matcher = g
	}

	names, err := s.git.ListSubdirs(EntitiesDir)
	if err != nil {
		return nil, err
	}
	var out []*Record
	for _, name := range names {
		id, err := sfid.Parse(name)
		if err != nil {
			continue
		}
		if matcher != nil && !matcher.Match(name) {
			continue
		}
		data, err := s.git.ReadFile(FileOf(id))
		if err != nil {
			continue
		}
		rec, err := decodeRecord(id, data)
		if err != nil {
			s.logger.Warn("skipping unreadable entity", "sfid", name, "error", err)
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateFields merges updates into the record and revalidates the whole
// merged result. The identifier field is immutable.
func (s *Store) UpdateFields(rawID string, updates map[string]any) (*Record, *gitstore.ChangeSet, error) {
	if len(updates) == 0 {
		return nil, nil, sferr.Validation("updates must be a non-empty map")
	}
	if _, ok := updates["sfid"]; ok {
		return nil, nil, sferr.Validation("field 'sfid' is immutable")
	}
	rec, err := s.Get(rawID)
	if err != nil {
		return nil, nil, err
	}
	for k, v := range updates {
		rec.Fields[k] = v
	}
	if err := s.cfg.ValidateRecord(rec.ID, rec.Fields); err != nil {
		return nil, nil, err
	}
	if err := s.writeRecord(rec.ID, rec.Fields); err != nil {
		return nil, nil, err
	}

	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	change := &gitstore.ChangeSet{
		Paths:   []string{FileOf(rec.ID)},
		Summary: fmt.Sprintf("Updated entity %s fields: %v", rec.ID, keys),
		SFIDs:   []string{rec.ID.String()},
	}
	return rec, change, nil
}

// Retire marks the record retired with a timestamp and optional reason.
// Records are never physically deleted; history must stay resolvable.
func (s *Store) Retire(rawID string, reason string) (*Record, *gitstore.ChangeSet, error) {
	rec, err := s.Get(rawID)
	if err != nil {
		return nil, nil, err
	}
	rec.Fields["retired"] = true
	rec.Fields["retired_at"] = time.Now().UTC().Format(time.RFC3339)
	if reason != "" {
		rec.Fields["retired_reason"] = reason
	}
	if err := s.writeRecord(rec.ID, rec.Fields); err != nil {
		return nil, nil, err
	}
	change := &gitstore.ChangeSet{
		Paths:   []string{FileOf(rec.ID)},
		Summary: fmt.Sprintf("Retired entity %s", rec.ID),
		SFIDs:   []string{rec.ID.String()},
	}
	return rec, change, nil
}

func (s *Store) writeRecord(id sfid.ID, fields map[string]any) error {
	data, err := encodeRecord(fields)
	if err != nil {
		return err
	}
	return s.git.WriteFile(FileOf(id), data)
}
