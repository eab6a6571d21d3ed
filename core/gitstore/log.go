package gitstore

import (
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// CommitInfo is a flattened view of one commit for auditing.
type CommitInfo struct {
	Hash        string
	Message     string
	AuthorName  string
	AuthorEmail string
	When        int64
	Files       []string
}

// Log walks the history from HEAD, newest first, returning up to limit
// commits (limit <= 0 means all). File lists come from each commit's stats.
func (s *Store) Log(limit int) ([]CommitInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref, err := s.repo.Head()
	if err != nil {
		return nil, nil
	}
	iter, err := s.repo.Log(&gogit.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []CommitInfo
	err = iter.ForEach(func(c *object.Commit) error {
		if limit > 0 && len(out) >= limit {
			return errStopIteration
		}
		info := CommitInfo{
			Hash:        c.Hash.String(),
			Message:     c.Message,
			AuthorName:  c.Author.Name,
			AuthorEmail: c.Author.Email,
			When:        c.Author.When.Unix(),
		}
		if stats, err := c.Stats(); err == nil {
			for _, st := range stats {
				info.Files = append(info.Files, st.Name)
			}
		}
		out = append(out, info)
		return nil
	})
	if err != nil && err != errStopIteration {
		return nil, err
	}
	return out, nil
}

var errStopIteration = stopIteration{}

type stopIteration struct{}

func (stopIteration) Error() string { return "stop iteration" }
