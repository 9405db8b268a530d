package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateArtifact(t *testing.T) {
	tests := []struct {
		name     string
		artifact string
		wantErr  string
	}{
		{
			name:     "valid fenced script",
			artifact: "Here you go:\n```javascript\nfunction main() {\n  const data = [1, 2];\n  return data.map(x => x * 2);\n}\n```",
		},
		{
			name:     "valid bare code",
			artifact: "function main() { return 1; }",
		},
		{
			name:     "empty",
			artifact: "   \n  ",
			wantErr:  "empty",
		},
		{
			name:     "unterminated fence",
			artifact: "```javascript\nfunction main() {}\n",
			wantErr:  "unterminated code fence",
		},
		{
			name:     "unclosed brace",
			artifact: "```javascript\nfunction main() {\n  return 1;\n```",
			wantErr:  "unclosed delimiter",
		},
		{
			name:     "mismatched closer",
			artifact: "```javascript\nconst a = [1, 2);\n```",
			wantErr:  "unbalanced delimiter",
		},
		{
			name:     "eval rejected",
			artifact: "```javascript\nconst r = eval(input);\n```",
			wantErr:  "disallowed construct",
		},
		{
			name:     "infinite loop rejected",
			artifact: "```javascript\nwhile (true) { poll(); }\n```",
			wantErr:  "disallowed construct",
		},
		{
			name:     "braces inside strings ignored",
			artifact: "```javascript\nconst s = \"unbalanced { in text\";\nconst t = 'also ( here';\n```",
		},
		{
			name:     "braces inside comments ignored",
			artifact: "```javascript\n// note: { this is fine\nconst x = 1;\n```",
		},
		{
			name:     "prose punctuation not held to code rules",
			artifact: "Don't worry :) here it is\n```javascript\nconst x = 1;\n```",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateArtifact(tt.artifact)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}
