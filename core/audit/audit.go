// Package audit checks the store's history and layout. The commit audit
// enforces the contract that every commit touching record directories embeds
// a machine-parseable ::sfid:: token; the tree scan validates the on-disk
// layout the way an external reviewer would.
package audit

import (
	"regexp"
	"strings"

	"github.com/smallfab/smallfab/core/entity"
	"github.com/smallfab/smallfab/core/gitstore"
)

var tokenPattern = regexp.MustCompile(regexp.QuoteMeta(gitstore.SFIDToken) + `([a-z][a-z0-9_-]+)`)

// Tokens extracts the record identifiers embedded in a commit message.
func Tokens(message string) []string {
	matches := tokenPattern.FindAllStringSubmatch(message, -1)
	out := make([]string, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		out = append(out, m[1])
	}
	return out
}

// Violation is one commit that touched record directories without declaring
// the affected records.
type Violation struct {
	Commit  string
	Summary string
	Files   []string
}

// ScanLog walks up to limit commits (0 = all) and reports every commit that
// modified files under entities/ without a ::sfid:: token in its message.
func ScanLog(git *gitstore.Store, limit int) ([]Violation, error) {
	commits, err := git.Log(limit)
	if err != nil {
		return nil, err
	}
	var out []Violation
	for _, c := range commits {
		var touched []string
		for _, f := range c.Files {
			if strings.HasPrefix(f, entity.EntitiesDir+"/") {
				touched = append(touched, f)
			}
		}
		if len(touched) == 0 {
			continue
		}
		if len(Tokens(c.Message)) > 0 {
			continue
		}
		out = append(out, Violation{
			Commit:  c.Hash,
			Summary: firstLine(c.Message),
			Files:   touched,
		})
	}
	return out, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
