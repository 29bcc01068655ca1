package service

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"growth-automation/domain/model"
	"growth-automation/domain/repository"
)

const ellipsis = "…"

// NormalizeHashtags strips '#', whitespace and punctuation, drops duplicates case-insensitively
// and keeps the first max tags. max <= 0 keeps everything.
func NormalizeHashtags(tags []string, max int) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimLeft(strings.TrimSpace(t), "#")
		t = strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
				return r
			}
			return -1
		}, t)
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, "#"+t)
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}

// FitCaption composes caption, link and hashtags into one post body within the platform's limit.
// Hashtags beyond MaxHashtags are dropped. Trailing hashtags are dropped only when that lets the whole
// caption fit; otherwise the caption is cut at a word boundary and the retained hashtags stay.
// The link is never cut; model.ErrContentTooLong is returned when it cannot fit.
func FitCaption(p model.ItemPayload, rules repository.ContentRules) (string, error) {
	tags := NormalizeHashtags(p.Hashtags, rules.MaxHashtags)
	caption := strings.TrimSpace(p.Caption)
	link := strings.TrimSpace(p.Link)

	limit := rules.MaxCaption
	if limit <= 0 {
		return compose(caption, link, tags), nil
	}
	if runeLen(link) > limit {
		return "", fmt.Errorf("%w: link is %d characters, limit %d", model.ErrContentTooLong, runeLen(link), limit)
	}

	for n := len(tags); n >= 0; n-- {
		if body := compose(caption, link, tags[:n]); runeLen(body) <= limit {
			return body, nil
		}
	}

	// the caption has to be cut; give up hashtags only while they leave it no text at all
	for n := len(tags); ; n-- {
		cut := cutAtWord(caption, captionRoom(limit, link, tags[:n]))
		if cut != "" || n == 0 {
			return compose(cut, link, tags[:n]), nil
		}
	}
}

// captionRoom is the number of runes left for the caption next to link and tags.
func captionRoom(limit int, link string, tags []string) int {
	rest := compose("", link, tags)
	if rest == "" {
		return limit
	}
	return limit - runeLen(rest) - runeLen(separator)
}

const separator = "\n\n"

func compose(caption, link string, tags []string) string {
	parts := make([]string, 0, 3)
	if caption != "" {
		parts = append(parts, caption)
	}
	if link != "" {
		parts = append(parts, link)
	}
	if len(tags) > 0 {
		parts = append(parts, strings.Join(tags, " "))
	}
	return strings.Join(parts, separator)
}

// cutAtWord shortens s to at most max runes including the ellipsis.
func cutAtWord(s string, max int) string {
	if runeLen(s) <= max {
		return s
	}
	budget := max - runeLen(ellipsis)
	if budget <= 0 {
		return ""
	}
	runes := []rune(s)
	cut := string(runes[:budget])
	if i := strings.LastIndexFunc(cut, unicode.IsSpace); i > 0 && !unicode.IsSpace(runes[budget]) {
		cut = cut[:i]
	}
	cut = strings.TrimRightFunc(cut, func(r rune) bool { return unicode.IsSpace(r) || unicode.IsPunct(r) })
	if cut == "" {
		return ""
	}
	return cut + ellipsis
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
