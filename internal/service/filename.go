package service

import (
	"path"
	"strings"
	"unicode"

	"github.com/raphaelgruber/docingest/internal/models"
)

// FilenameMetadata is the metadata guessed from a file name.
type FilenameMetadata struct {
	Subject string
	Grade   string
	Chapter string
	Title   string
}

// ParseFilenameMetadata reads names shaped like
// "subject-grade-chapter-title.ext", e.g. "math-7-3-linear_equations.pdf".
// Grade and chapter must contain a digit. Anything that doesn't fit only
// yields a title.
func ParseFilenameMetadata(name string) FilenameMetadata {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if i := strings.Index(base, "?"); i >= 0 {
		base = base[:i]
	}
	base = strings.TrimSuffix(base, path.Ext(base))
	if base == "" || base == "." || base == "/" {
		return FilenameMetadata{}
	}

	parts := strings.Split(base, "-")
	if len(parts) >= 4 && parts[0] != "" && hasDigit(parts[1]) && hasDigit(parts[2]) {
		return FilenameMetadata{
			Subject: parts[0],
			Grade:   parts[1],
			Chapter: parts[2],
			Title:   humanize(strings.Join(parts[3:], " ")),
		}
	}
	return FilenameMetadata{Title: humanize(base)}
}

func hasDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}

func humanize(s string) string {
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// resolveMetadata fills empty subject/grade/chapter/title fields on meta,
// preferring hints found in the document over the file name. Explicit
// values are never overwritten.
func resolveMetadata(meta models.IngestMetadata, hints map[string]string, fileName string) models.IngestMetadata {
	guess := ParseFilenameMetadata(fileName)
	pick := func(current *string, key, fallback string) {
		if *current != "" {
			return
		}
		if v := strings.TrimSpace(hints[key]); v != "" {
			*current = v
			return
		}
		*current = fallback
	}
	pick(&meta.Subject, "subject", guess.Subject)
	pick(&meta.Grade, "grade", guess.Grade)
	pick(&meta.Chapter, "chapter", guess.Chapter)
	pick(&meta.Title, "title", guess.Title)
	return meta
}
