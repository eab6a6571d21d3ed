package gitstore

import "strings"

// SFIDToken prefixes the machine-parseable record token embedded in every
// mutating commit message. External audits treat a commit that touches
// record directories without such a token as a violation.
const SFIDToken = "::sfid::"

// MessagePrefix tags every commit this tool writes.
const MessagePrefix = "[smallfab]"

// ChangeSet describes the outcome of one mutation: the working-tree paths it
// touched, a human summary, and the record identifiers affected.
type ChangeSet struct {
	Paths   []string
	Summary string
	SFIDs   []string
}

// Message renders the commit message: prefixed summary followed by one
// ::sfid:: token line per affected record.
func (c *ChangeSet) Message() string {
	var b strings.Builder
	b.WriteString(MessagePrefix)
	b.WriteString(" ")
	b.WriteString(c.Summary)
	for _, id := range c.SFIDs {
		b.WriteString("\n")
		b.WriteString(SFIDToken)
		b.WriteString(id)
	}
	return b.String()
}

// Merge folds other into c, deduplicating paths and ids. Used when one
// logical mutation spans several store calls.
func (c *ChangeSet) Merge(other *ChangeSet) {
	if other == nil {
		return
	}
	c.Paths = appendUnique(c.Paths, other.Paths...)
	c.SFIDs = appendUnique(c.SFIDs, other.SFIDs...)
	if c.Summary == "" {
		c.Summary = other.Summary
	}
}

func appendUnique(dst []string, items ...string) []string {
	seen := make(map[string]struct{}, len(dst))
	for _, s := range dst {
		seen[s] = struct{}{}
	}
	for _, s := range items {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			dst = append(dst, s)
		}
	}
	return dst
}
