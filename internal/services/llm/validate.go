package llm

import (
	"fmt"
	"strings"
)

// disallowedConstructs are patterns that must not appear in a generated
// artifact. They either break the script host or signal runaway output.
var disallowedConstructs = []string{
	"eval(",
	"new Function(",
	"while (true)",
	"while(true)",
	"for (;;)",
	"for(;;)",
}

// ValidateArtifact checks a generated artifact before delivery: it must
// be non-empty, code fences must balance, and within the code regions
// bracket delimiters must pair up and no disallowed construct may
// appear. Prose around the fences is not held to code rules.
func ValidateArtifact(artifact string) error {
	if strings.TrimSpace(artifact) == "" {
		return fmt.Errorf("artifact is empty")
	}

	if strings.Count(artifact, "```")%2 != 0 {
		return fmt.Errorf("artifact has an unterminated code fence")
	}

	for _, code := range codeRegions(artifact) {
		if err := checkBalancedDelimiters(code); err != nil {
			return err
		}

		lower := strings.ToLower(code)
		for _, construct := range disallowedConstructs {
			if strings.Contains(lower, strings.ToLower(construct)) {
				return fmt.Errorf("artifact contains disallowed construct %q", construct)
			}
		}
	}

	return nil
}

// codeRegions extracts the bodies of fenced code blocks. Text without
// any fence is treated as one code region.
func codeRegions(artifact string) []string {
	if !strings.Contains(artifact, "```") {
		return []string{artifact}
	}

	var regions []string
	var body []string
	inFence := false
	for _, line := range strings.Split(artifact, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			if inFence {
				regions = append(regions, strings.Join(body, "\n"))
				body = nil
			}
			inFence = !inFence
			continue
		}
		if inFence {
			body = append(body, line)
		}
	}
	return regions
}

// checkBalancedDelimiters verifies braces, brackets, and parentheses
// pair up, skipping string literals and line comments so punctuation in
// prose or quoted text does not trip the check.
func checkBalancedDelimiters(artifact string) error {
	var stack []byte
	pairs := map[byte]byte{')': '(', ']': '[', '}': '{'}

	inString := byte(0)
	inLineComment := false
	escaped := false

	for i := 0; i < len(artifact); i++ {
		c := artifact[i]

		if inLineComment {
			if c == '\n' {
				inLineComment = false
			}
			continue
		}

		if inString != 0 {
			if escaped {
				escaped = false
				continue
			}
			switch c {
			case '\\':
				escaped = true
			case inString:
				inString = 0
			}
			continue
		}

		switch c {
		case '"', '\'', '`':
			inString = c
		case '/':
			if i+1 < len(artifact) && artifact[i+1] == '/' {
				inLineComment = true
			}
		case '(', '[', '{':
			stack = append(stack, c)
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != pairs[c] {
				return fmt.Errorf("artifact has unbalanced delimiter %q", string(c))
			}
			stack = stack[:len(stack)-1]
		}
	}

	if len(stack) > 0 {
		return fmt.Errorf("artifact has %d unclosed delimiter(s)", len(stack))
	}
	return nil
}
