package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"schedbot/internal/schedule"
	"schedbot/pkg/logx"
)

var (
	// Innermost array literals only: no brackets inside.
	arrayLiteral  = regexp.MustCompile(`\[[^\[\]]*\]`)
	singleQuoted  = regexp.MustCompile(`'((?:[^'\\]|\\.)*)'`)
	trailingComma = regexp.MustCompile(`,\s*\]$`)
)

// SearchGroups returns directory entries whose identifier contains query
// (case-insensitive). An empty query returns the first DirectoryLimit entries.
//
// When the page has no usable identifier array the result is empty and the
// error wraps schedule.ErrDirectoryUnavailable, so callers can tell
// "directory broken" from "nothing matched".
func (c *Client) SearchGroups(ctx context.Context, query string) ([]schedule.GroupEntry, error) {
	if strings.TrimSpace(c.cfg.SearchURL) == "" {
		return nil, &schedule.TransportError{Op: "directory", Err: errNoSearchURL}
	}
	body, err := c.get(ctx, "directory", c.cfg.SearchURL)
	if err != nil {
		return nil, err
	}

	ids, perr := ParseDirectory(body)
	if perr != nil {
		c.log.Warn("group directory unparseable", logx.String("url", c.cfg.SearchURL), logx.Err(perr))
		return []schedule.GroupEntry{}, perr
	}
	return filterGroups(ids, query, c.cfg.DirectoryLimit), nil
}

// ParseDirectory scans every flat array literal in body, in document order,
// and returns the first one made only of non-empty strings. Duplicates are
// dropped, keeping the first occurrence.
func ParseDirectory(body []byte) ([]string, error) {
	candidates := 0
	for _, loc := range arrayLiteral.FindAllIndex(body, -1) {
		if !literalPosition(body[:loc[0]]) {
			continue
		}
		candidates++
		ids, ok := decodeIdentifiers(body[loc[0]:loc[1]])
		if !ok {
			continue
		}
		return dedupe(ids), nil
	}
	return nil, &schedule.DirectoryParseError{Candidates: candidates}
}

// literalPosition reports whether a '[' following prefix opens an array
// literal rather than an index expression like a["b"] or f()[0].
func literalPosition(prefix []byte) bool {
	p := bytes.TrimRight(prefix, " \t\r\n")
	if len(p) == 0 {
		return true
	}
	switch p[len(p)-1] {
	case '=', '(', ',', ':', '[', ';', '{', '>':
		return true
	}
	if bytes.HasSuffix(p, []byte("return")) {
		if len(p) == len("return") {
			return true
		}
		c := p[len(p)-len("return")-1]
		return !isIdentByte(c)
	}
	return false
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || c == '.' ||
		('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func decodeIdentifiers(raw []byte) ([]string, bool) {
	raw = trailingComma.ReplaceAll(raw, []byte("]"))
	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		if err := json.Unmarshal(requote(raw), &items); err != nil {
			return nil, false
		}
	}
	if len(items) == 0 {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		s, ok := it.(string)
		if !ok {
			return nil, false
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

// requote turns JS single-quoted string literals into JSON strings.
func requote(raw []byte) []byte {
	return singleQuoted.ReplaceAllFunc(raw, func(m []byte) []byte {
		inner := string(m[1 : len(m)-1])
		inner = strings.ReplaceAll(inner, `\'`, `'`)
		inner = strings.ReplaceAll(inner, `\\`, `\`)
		b, err := json.Marshal(inner)
		if err != nil {
			return m
		}
		return b
	})
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func filterGroups(ids []string, query string, limit int) []schedule.GroupEntry {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]schedule.GroupEntry, 0)
	for _, id := range ids {
		if q != "" && !strings.Contains(strings.ToLower(id), q) {
			continue
		}
		out = append(out, schedule.GroupEntry{ID: id, Name: id})
		if q == "" && limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
