package webhook

import (
	"regexp"
	"sort"

	"github.com/okian/homework/internal/domain/model"
)

// PushEvent is the subset of a push notification the matcher reads.
type PushEvent struct {
	After   string   `json:"after"`
	Commits []Commit `json:"commits"`
	Pusher  struct {
		Name string `json:"name"`
	} `json:"pusher"`
}

// Commit lists the paths touched by one commit.
type Commit struct {
	ID       string   `json:"id"`
	Added    []string `json:"added"`
	Modified []string `json:"modified"`
}

// ChangedFiles returns the union of added and modified paths across commits, sorted.
func (e PushEvent) ChangedFiles() []string {
	seen := make(map[string]struct{})
	for _, c := range e.Commits {
		for _, f := range c.Added {
			seen[f] = struct{}{}
		}
		for _, f := range c.Modified {
			seen[f] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// CommitRef is the pushed head, falling back to the first commit id.
func (e PushEvent) CommitRef() string {
	if e.After != "" {
		return e.After
	}
	if len(e.Commits) > 0 {
		return e.Commits[0].ID
	}
	return ""
}

// Candidates returns lower-cased usernames taken from the participant path
// prefix of each file plus the pusher name, de-duplicated and sorted.
func (e PushEvent) Candidates(pathPattern *regexp.Regexp, files []string) []string {
	seen := make(map[string]struct{})
	for _, f := range files {
		if m := pathPattern.FindStringSubmatch(f); len(m) == 2 {
			if u := model.NormalizeUsername(m[1]); u != "" {
				seen[u] = struct{}{}
			}
		}
	}
	if u := model.NormalizeUsername(e.Pusher.Name); u != "" {
		seen[u] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for u := range seen {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// participantPattern matches "<prefix><username>/" at the start of a path.
func participantPattern(prefix string) *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `([^/]+)/`)
}
