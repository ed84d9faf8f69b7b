// Package verifier checks the output of an administration subprocess against
// expected success and error messages while the output streams in.
package verifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/eugenetaranov/dasctl/internal/runner"
)

// BufferSize is the read buffer used by Verify.
const BufferSize = 1024

// Verdict is the outcome of a verification.
type Verdict int

const (
	// Unknown means no token matched.
	Unknown Verdict = iota
	// Success means a token was satisfied and no error pattern appeared.
	Success
	// Error means an error pattern appeared.
	Error
)

// String returns the verdict name.
func (v Verdict) String() string {
	switch v {
	case Unknown:
		return "UNKNOWN"
	case Success:
		return "SUCCESS"
	case Error:
		return "ERROR"
	default:
		return fmt.Sprintf("Verdict(%d)", int(v))
	}
}

// state of the line tokenizer.
type state int

const (
	stateStart state = iota
	stateLine
	stateCR
	stateError
)

// input class of one byte.
type input int

const (
	inString input = iota
	inPrompt
	inCR
	inLF
)

// transitions[state][input] is the next state.
var transitions = [4][4]state{
	stateStart: {inString: stateLine, inPrompt: stateStart, inCR: stateCR, inLF: stateStart},
	stateLine:  {inString: stateLine, inPrompt: stateStart, inCR: stateCR, inLF: stateStart},
	stateCR:    {inString: stateLine, inPrompt: stateStart, inCR: stateCR, inLF: stateStart},
	stateError: {stateError, stateError, stateError, stateError},
}

// Verifier tokenizes a process output stream into lines and matches each
// completed line against the current token. Lines end at LF, CR, CRLF, or
// the current token's prompt. After an error pattern the verifier only
// records the transcript.
type Verifier struct {
	mu sync.Mutex

	tokens  []Token
	current int
	seen    map[string]bool

	state   state
	afterCR bool
	line    bytes.Buffer
	prompt  *ring
	lines   []string
	verdict Verdict
	errLine string
	closed  bool

	stdin io.Writer
}

// New creates a verifier for content. stdin receives token inputs when
// their prompt appears; it may be nil.
func New(content *Content, stdin io.Writer) *Verifier {
	v := &Verifier{stdin: stdin, seen: make(map[string]bool)}
	if content != nil {
		v.tokens = content.Tokens()
	}
	v.resetPrompt()
	return v
}

// Write consumes a chunk of output. It implements io.Writer.
func (v *Verifier) Write(p []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return 0, runner.Errorf(runner.CodeIllegalState, nil, "verifier is closed")
	}
	for i, b := range p {
		if err := v.step(b); err != nil {
			return i + 1, err
		}
	}
	return len(p), nil
}

// Close marks the end of the stream, completing any unterminated line.
func (v *Verifier) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil
	}
	if v.line.Len() > 0 {
		v.completeLine()
	}
	v.closed = true
	return nil
}

// Verify reads r to the end in BufferSize chunks, then closes the verifier.
// Cancelling ctx closes r when it is an io.Closer and returns a Cancelled
// error. The verdict is returned even when reading fails.
func (v *Verifier) Verify(ctx context.Context, r io.Reader) (Verdict, error) {
	if c, ok := r.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { _ = c.Close() })
		defer stop()
	}

	buf := make([]byte, BufferSize)
	var readErr error
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := v.Write(buf[:n]); werr != nil {
				readErr = werr
				break
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			readErr = err
			break
		}
		if ctx.Err() != nil {
			break
		}
	}
	_ = v.Close()

	switch {
	case ctx.Err() != nil:
		return v.Verdict(), runner.Errorf(runner.CodeCancelled, ctx.Err(), "verify", "process output")
	case readErr != nil && !errors.Is(readErr, io.ErrClosedPipe):
		return v.Verdict(), runner.Wrap(readErr, "failed to read process output")
	}
	return v.Verdict(), nil
}

// Verdict returns the current verdict.
func (v *Verifier) Verdict() Verdict {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.verdict
}

// ErrorLine returns the line that matched an error pattern, or "" when the
// verdict is not Error.
func (v *Verifier) ErrorLine() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.errLine
}

// Lines returns the completed lines. It fails with IllegalState until the
// stream has been closed.
func (v *Verifier) Lines() ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.closed {
		return nil, runner.Errorf(runner.CodeIllegalState, nil, "process output transcript requested before end of stream")
	}
	out := make([]string, len(v.lines))
	copy(out, v.lines)
	return out, nil
}

// Transcript returns the completed lines joined with newlines. It fails with
// IllegalState until the stream has been closed.
func (v *Verifier) Transcript() (string, error) {
	lines, err := v.Lines()
	if err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), nil
}

func (v *Verifier) step(b byte) error {
	in := v.classify(b)
	afterCR := v.afterCR
	v.afterCR = in == inCR

	if v.state == stateError {
		// Keep the transcript without matching. CRLF and repeated CRs end
		// one line, as before the error.
		switch in {
		case inLF, inCR:
			if !afterCR {
				v.lines = append(v.lines, v.line.String())
				v.line.Reset()
			}
		default:
			v.line.WriteByte(b)
		}
		return nil
	}

	prev := v.state
	v.state = transitions[v.state][in]

	switch in {
	case inString:
		v.line.WriteByte(b)
	case inPrompt:
		v.line.WriteByte(b)
		tok, ok := v.token()
		v.completeLine()
		if ok && tok.Input != "" && v.stdin != nil {
			if _, err := io.WriteString(v.stdin, tok.Input); err != nil {
				return runner.Wrap(err, "failed to answer prompt %q", tok.Prompt)
			}
		}
	case inCR:
		if prev != stateCR {
			v.completeLine()
		}
	case inLF:
		if prev != stateCR {
			v.completeLine()
		}
	}
	return nil
}

// classify returns the input class of b, updating the prompt buffer.
func (v *Verifier) classify(b byte) input {
	switch b {
	case '\r':
		v.prompt.reset()
		return inCR
	case '\n':
		v.prompt.reset()
		return inLF
	}
	if v.state != stateError && v.prompt.push(b) {
		return inPrompt
	}
	return inString
}

func (v *Verifier) token() (Token, bool) {
	if v.current >= len(v.tokens) {
		return Token{}, false
	}
	return v.tokens[v.current], true
}

// completeLine appends the pending line to the transcript and matches it.
func (v *Verifier) completeLine() {
	line := v.line.String()
	v.line.Reset()
	v.lines = append(v.lines, line)
	if v.state != stateError {
		v.match(line)
	}
}

// match scans line left to right for the patterns of the current token.
// The first error pattern found fails the verification. Success patterns
// are collected until all of them have been seen.
func (v *Verifier) match(line string) {
	tok, ok := v.token()
	if !ok {
		return
	}
	for i := 0; i < len(line); i++ {
		rest := line[i:]
		for _, p := range tok.Error {
			if p != "" && strings.HasPrefix(rest, p) {
				v.verdict = Error
				v.errLine = line
				v.state = stateError
				v.prompt.resize(0)
				return
			}
		}
		for _, p := range tok.Success {
			if p != "" && !v.seen[p] && strings.HasPrefix(rest, p) {
				v.seen[p] = true
			}
		}
		if v.satisfied(tok) {
			if v.verdict != Error {
				v.verdict = Success
			}
			v.advance()
			return
		}
	}
}

func (v *Verifier) satisfied(tok Token) bool {
	matched := 0
	for _, p := range tok.Success {
		if p == "" || v.seen[p] {
			matched++
		}
	}
	return len(tok.Success) > 0 && matched == len(tok.Success)
}

func (v *Verifier) advance() {
	v.current++
	v.seen = make(map[string]bool)
	v.resetPrompt()
}

func (v *Verifier) resetPrompt() {
	tok, _ := v.token()
	if v.prompt == nil {
		v.prompt = newRing(tok.Prompt)
		return
	}
	v.prompt.setPattern(tok.Prompt)
}

// ring holds the last len(pattern) bytes of the current line.
type ring struct {
	pattern []byte
	buf     []byte
	pos     int
	n       int
}

func newRing(pattern string) *ring {
	r := &ring{}
	r.setPattern(pattern)
	return r
}

func (r *ring) setPattern(pattern string) {
	r.pattern = []byte(pattern)
	r.resize(len(pattern))
}

func (r *ring) resize(size int) {
	if size == 0 {
		r.pattern = nil
	}
	r.buf = make([]byte, size)
	r.reset()
}

func (r *ring) reset() {
	r.pos = 0
	r.n = 0
}

// push adds b and reports whether the buffer now ends with the pattern.
// A match empties the buffer.
func (r *ring) push(b byte) bool {
	size := len(r.buf)
	if size == 0 {
		return false
	}
	r.buf[r.pos] = b
	r.pos = (r.pos + 1) % size
	if r.n < size {
		r.n++
	}
	if r.n < size {
		return false
	}
	for i := 0; i < size; i++ {
		if r.buf[(r.pos+i)%size] != r.pattern[i] {
			return false
		}
	}
	r.reset()
	return true
}
