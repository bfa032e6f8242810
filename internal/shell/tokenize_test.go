package shell

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenizeWhitespace(t *testing.T) {
	assert.Equal(t, []string{"ls", "-la", "/tmp"}, tokenize("ls  -la   /tmp"))
}

func TestTokenizeSingleQuotesAreLiteral(t *testing.T) {
	assert.Equal(t, []string{"echo", "hello world"}, tokenize(`echo 'hello world'`))
}

func TestTokenizeDoubleQuoteEscapes(t *testing.T) {
	assert.Equal(t, []string{"echo", `say "hi"`}, tokenize(`echo "say \"hi\""`))
}

func TestTokenizeBackslashOutsideQuotes(t *testing.T) {
	assert.Equal(t, []string{"echo", "a b"}, tokenize(`echo a\ b`))
}

// TestEchoRoundTripsWithoutExpansion pins the testable property that echo
// never expands variables or globs: the text cmdEcho hands back is exactly
// the words tokenize produced, joined by single spaces.
func TestEchoRoundTripsWithoutExpansion(t *testing.T) {
	out, exit := cmdEcho(nil, tokenize(`$HOME *.txt "literal $VAR"`))
	assert.False(t, exit)
	assert.Equal(t, `$HOME *.txt literal $VAR`, out)
}
