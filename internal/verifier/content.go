package verifier

// Token is one expectation of the output stream. A token is satisfied when
// every Success pattern has appeared, in any order and on any lines, and
// fails as soon as one Error pattern appears.
type Token struct {
	// Prompt is an interactive prompt that ends a line without CR or LF.
	// Empty disables prompt tracking while this token is current.
	Prompt string

	// Input is written to the process stdin when Prompt is seen.
	Input string

	// Success patterns must all be found to satisfy the token.
	Success []string

	// Error patterns fail the verification on the first occurrence.
	Error []string
}

// Content is the ordered list of tokens a process output must satisfy.
type Content struct {
	tokens []Token
}

// NewContent creates content from tokens.
func NewContent(tokens ...Token) *Content {
	c := &Content{}
	for _, t := range tokens {
		c.Add(t)
	}
	return c
}

// Add appends a token.
func (c *Content) Add(t Token) *Content {
	c.tokens = append(c.tokens, t)
	return c
}

// Tokens returns the tokens in order.
func (c *Content) Tokens() []Token {
	return c.tokens
}

// Len returns the number of tokens.
func (c *Content) Len() int {
	return len(c.tokens)
}
