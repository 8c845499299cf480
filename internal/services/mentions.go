package services

import (
	"context"
	"regexp"
	"strings"

	"github.com/anonto42/nano-midea/socialgraph/internal/models"
	"github.com/anonto42/nano-midea/socialgraph/internal/repositories"
)

var mentionPattern = regexp.MustCompile(`(?:^|[^A-Za-z0-9_.@])@([A-Za-z0-9_.]{3,30})`)

// ExtractMentions returns the distinct lowercased usernames mentioned in text, in order of
// first appearance. Email addresses are not mentions.
func ExtractMentions(text string) []string {
	matches := mentionPattern.FindAllStringSubmatch(text, -1)
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		name := strings.ToLower(strings.TrimRight(m[1], "."))
		if len(name) < 3 {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// resolveMentions keeps the mentioned usernames that belong to an existing user other
// than authorID.
func resolveMentions(ctx context.Context, users repositories.UserRepository, names []string, authorID uint) ([]models.User, error) {
	found, err := users.GetUsersByUsernames(ctx, names)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]models.User, len(found))
	for _, u := range found {
		byName[u.Username] = u
	}
	out := make([]models.User, 0, len(found))
	for _, name := range names {
		if u, ok := byName[name]; ok && u.ID != authorID {
			out = append(out, u)
		}
	}
	return out, nil
}

func usernamesOf(users []models.User) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		out = append(out, u.Username)
	}
	return out
}

// newMentions returns the names in next that are not in prev.
func newMentions(prev, next []string) []string {
	old := make(map[string]struct{}, len(prev))
	for _, name := range prev {
		old[name] = struct{}{}
	}
	var out []string
	for _, name := range next {
		if _, ok := old[name]; !ok {
			out = append(out, name)
		}
	}
	return out
}
