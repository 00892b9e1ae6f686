package validate

import (
	"errors"
	"regexp"
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		constraints StringConstraints
		wantErr     error
		wantOutput  string
	}{
		{
			name:  "valid string within length constraints",
			input: "Hello World",
			constraints: StringConstraints{
				MinLength: 5,
				MaxLength: 20,
				TrimSpace: true,
			},
			wantErr:    nil,
			wantOutput: "Hello World",
		},
		{
			name:  "string too short",
			input: "Hi",
			constraints: StringConstraints{
				MinLength: 5,
				MaxLength: 20,
			},
			wantErr: ErrStringTooShort,
		},
		{
			name:  "string too long",
			input: strings.Repeat("a", 101),
			constraints: StringConstraints{
				MinLength: 1,
				MaxLength: 100,
			},
			wantErr: ErrStringTooLong,
		},
		{
			name:  "empty string not allowed",
			input: "",
			constraints: StringConstraints{
				AllowEmpty: false,
			},
			wantErr: ErrEmpty,
		},
		{
			name:  "empty string allowed",
			input: "",
			constraints: StringConstraints{
				AllowEmpty: true,
			},
			wantErr:    nil,
			wantOutput: "",
		},
		{
			name:  "whitespace trimmed",
			input: "  Hello  ",
			constraints: StringConstraints{
				TrimSpace: true,
			},
			wantErr:    nil,
			wantOutput: "Hello",
		},
		{
			name:  "SQL keyword detected",
			input: "Hello SELECT World",
			constraints: StringConstraints{
				CheckSQLKeywords: true,
			},
			wantErr: ErrSQLKeyword,
		},
		{
			name:  "SQL keyword in lowercase",
			input: "select * from users",
			constraints: StringConstraints{
				CheckSQLKeywords: true,
			},
			wantErr: ErrSQLKeyword,
		},
		{
			name:  "no SQL keyword",
			input: "This is a normal sentence",
			constraints: StringConstraints{
				CheckSQLKeywords: true,
			},
			wantErr:    nil,
			wantOutput: "This is a normal sentence",
		},
		{
			name:  "disallowed word detected",
			input: "Hello spam world",
			constraints: StringConstraints{
				DisallowedWords: []string{"spam", "scam"},
			},
			wantErr: errors.New("disallowed word"),
		},
		{
			name:  "pattern validation success",
			input: "valid-name_123",
			constraints: StringConstraints{
				AllowedPattern: mustCompile(`^[a-zA-Z0-9_\-]+$`),
			},
			wantErr:    nil,
			wantOutput: "valid-name_123",
		},
		{
			name:  "pattern validation failure",
			input: "invalid name!",
			constraints: StringConstraints{
				AllowedPattern: mustCompile(`^[a-zA-Z0-9_\-]+$`),
			},
			wantErr: ErrInvalidCharacters,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := String(tt.input, tt.constraints)
			if tt.wantErr != nil {
				if err == nil {
					t.Errorf("String() error = nil, wantErr %v", tt.wantErr)
					return
				}
				if !errors.Is(err, tt.wantErr) && !strings.Contains(err.Error(), "disallowed word") {
					t.Errorf("String() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Errorf("String() unexpected error = %v", err)
				return
			}
			if got != tt.wantOutput {
				t.Errorf("String() = %q, want %q", got, tt.wantOutput)
			}
		})
	}
}

func TestSanitizeHTML(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain text unchanged",
			input: "Hello World",
			want:  "Hello World",
		},
		{
			name:  "script tag escaped",
			input: "<script>alert('xss')</script>",
			want:  "&lt;script&gt;alert(&#39;xss&#39;)&lt;/script&gt;",
		},
		{
			name:  "HTML entities escaped",
			input: `<div onclick="evil()">Click me</div>`,
			want:  "&lt;div onclick=&#34;evil()&#34;&gt;Click me&lt;/div&gt;",
		},
		{
			name:  "ampersand escaped",
			input: "Tom & Jerry",
			want:  "Tom &amp; Jerry",
		},
		{
			name:  "quotes escaped",
			input: `He said "hello"`,
			want:  "He said &#34;hello&#34;",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeHTML(tt.input)
			if got != tt.want {
				t.Errorf("SanitizeHTML() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEventTitle(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{
			name:    "valid event title",
			input:   "Tabără de vară 2026",
			wantErr: false,
		},
		{
			name:    "event title at max length",
			input:   strings.Repeat("a", 200),
			wantErr: false,
		},
		{
			name:    "event title too long",
			input:   strings.Repeat("a", 201),
			wantErr: true,
		},
		{
			name:    "empty event title",
			input:   "",
			wantErr: true,
		},
		{
			name:    "title with SQL words still allowed",
			input:   "Stories from Camp",
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EventTitle(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("EventTitle() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && got == "" {
				t.Errorf("EventTitle() returned empty string for valid input")
			}
		})
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{
			name:    "plain name",
			input:   "Andrei Pop",
			wantErr: false,
		},
		{
			name:    "diacritics allowed",
			input:   "Ștefan Ilieș",
			wantErr: false,
		},
		{
			name:    "apostrophe and dash allowed",
			input:   "Anne-Marie O'Neill",
			wantErr: false,
		},
		{
			name:    "initials with periods",
			input:   "M. Eliade",
			wantErr: false,
		},
		{
			name:    "empty name",
			input:   "",
			wantErr: true,
		},
		{
			name:    "name too long",
			input:   strings.Repeat("a", 81),
			wantErr: true,
		},
		{
			name:    "angle brackets rejected",
			input:   "<script>alert(1)</script>",
			wantErr: true,
		},
		{
			name:    "emoji rejected",
			input:   "Andrei 🎉",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DisplayName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("DisplayName() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && got == "" {
				t.Errorf("DisplayName() returned empty string for valid input")
			}
		})
	}
}

func TestDescription(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{
			name:    "valid description",
			input:   "This is a description.",
			wantErr: false,
		},
		{
			name:    "empty description allowed",
			input:   "",
			wantErr: false,
		},
		{
			name:    "description at max length",
			input:   strings.Repeat("a", 2000),
			wantErr: false,
		},
		{
			name:    "description too long",
			input:   strings.Repeat("a", 2001),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Description(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("Description() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestSQLKeywordWordBoundary verifies keyword detection uses word boundaries,
// so titles containing SQL keywords only as substrings still validate.
func TestSQLKeywordWordBoundary(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		// Substring matches must not trigger.
		{
			name:    "Executive contains EXEC",
			input:   "The Executive Meetup",
			wantErr: false,
		},
		{
			name:    "Selection contains SELECT",
			input:   "Worship Team Selection",
			wantErr: false,
		},
		{
			name:    "Dropping contains DROP",
			input:   "Dropping By After School",
			wantErr: false,
		},

		// Standalone keywords and injection markers must trigger.
		{
			name:    "standalone SELECT",
			input:   "SELECT something",
			wantErr: true,
		},
		{
			name:    "standalone DELETE",
			input:   "DELETE this",
			wantErr: true,
		},
		{
			name:    "standalone DROP",
			input:   "DROP it",
			wantErr: true,
		},
		{
			name:    "SQL comment pattern",
			input:   "test -- comment",
			wantErr: true,
		},
		{
			name:    "stored procedure prefix",
			input:   "xp_cmdshell test",
			wantErr: true,
		},
	}

	constraints := StringConstraints{
		MinLength:        1,
		MaxLength:        100,
		CheckSQLKeywords: true,
		TrimSpace:        true,
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := String(tt.input, constraints)
			hasErr := err != nil
			if hasErr != tt.wantErr {
				t.Errorf("String(%q) with SQL keyword check error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

// Helper function for tests
func mustCompile(pattern string) *regexp.Regexp {
	return regexp.MustCompile(pattern)
}
