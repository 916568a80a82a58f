package parser

import "testing"

func TestParseFrontmatter(t *testing.T) {
	tests := []struct {
		name        string
		in          string
		wantSubject string
		wantGrade   string
		wantBody    string
	}{
		{
			name:        "with frontmatter",
			in:          "---\nsubject: math\ngrade: 10\n---\n# Algebra\nBody",
			wantSubject: "math",
			wantGrade:   "10",
			wantBody:    "# Algebra\nBody",
		},
		{
			name:     "no frontmatter",
			in:       "# Algebra\nBody",
			wantBody: "# Algebra\nBody",
		},
		{
			name:     "unterminated",
			in:       "---\nsubject: math\n# Algebra",
			wantBody: "---\nsubject: math\n# Algebra",
		},
		{
			name:     "invalid yaml",
			in:       "---\n[unclosed\n---\nBody",
			wantBody: "---\n[unclosed\n---\nBody",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fm, body := ParseFrontmatter(tt.in)
			if got := fm.String("subject"); got != tt.wantSubject {
				t.Errorf("subject = %q, want %q", got, tt.wantSubject)
			}
			if got := fm.String("grade"); got != tt.wantGrade {
				t.Errorf("grade = %q, want %q", got, tt.wantGrade)
			}
			if body != tt.wantBody {
				t.Errorf("body = %q, want %q", body, tt.wantBody)
			}
		})
	}
}
