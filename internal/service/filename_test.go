package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/raphaelgruber/docingest/internal/models"
)

func TestParseFilenameMetadata(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want FilenameMetadata
	}{
		{
			name: "full convention",
			in:   "math-7-3-linear_equations.pdf",
			want: FilenameMetadata{Subject: "math", Grade: "7", Chapter: "3", Title: "linear equations"},
		},
		{
			name: "title with dashes",
			in:   "uploads/physics-grade10-ch2-forces-and-motion.pdf",
			want: FilenameMetadata{Subject: "physics", Grade: "grade10", Chapter: "ch2", Title: "forces and motion"},
		},
		{
			name: "grade without digit",
			in:   "history-intro-to-rome.md",
			want: FilenameMetadata{Title: "history intro to rome"},
		},
		{
			name: "too few parts",
			in:   "notes_2024.txt",
			want: FilenameMetadata{Title: "notes 2024"},
		},
		{
			name: "url with query",
			in:   "https://example.com/files/bio-9-4-cells.pdf?sig=abc",
			want: FilenameMetadata{Subject: "bio", Grade: "9", Chapter: "4", Title: "cells"},
		},
		{
			name: "empty",
			in:   "",
			want: FilenameMetadata{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseFilenameMetadata(tt.in))
		})
	}
}

func TestResolveMetadata(t *testing.T) {
	meta := models.IngestMetadata{Subject: "science"}
	hints := map[string]string{"chapter": "12", "title": "From Frontmatter"}

	got := resolveMetadata(meta, hints, "math-7-3-fractions.pdf")

	assert.Equal(t, "science", got.Subject, "explicit value wins")
	assert.Equal(t, "7", got.Grade, "filename fills the gap")
	assert.Equal(t, "12", got.Chapter, "document hint beats filename")
	assert.Equal(t, "From Frontmatter", got.Title)
}
