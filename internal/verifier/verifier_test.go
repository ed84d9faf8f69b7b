package verifier

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eugenetaranov/dasctl/internal/runner"
)

func feed(t *testing.T, v *Verifier, chunks ...string) {
	t.Helper()
	for _, c := range chunks {
		_, err := v.Write([]byte(c))
		require.NoError(t, err)
	}
	require.NoError(t, v.Close())
}

func TestSuccessPatternsAcrossLines(t *testing.T) {
	v := New(NewContent(Token{Success: []string{"executed successfully", "Command"}}), nil)
	feed(t, v, "Command\n", "executed successfully\n")

	assert.Equal(t, Success, v.Verdict())
	lines, err := v.Lines()
	require.NoError(t, err)
	assert.Equal(t, []string{"Command", "executed successfully"}, lines)
}

func TestErrorIsSticky(t *testing.T) {
	content := NewContent(
		Token{Success: []string{"deployed"}, Error: []string{"failed"}},
		Token{Success: []string{"executed successfully"}},
	)
	v := New(content, nil)
	feed(t, v, "Command deploy failed: archive is corrupt\n", "Command deploy executed successfully\n", "deployed\n")

	assert.Equal(t, Error, v.Verdict())
	lines, err := v.Lines()
	require.NoError(t, err)
	assert.Len(t, lines, 3)
}

func TestLineTerminatorsAfterError(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"crlf", "deploy failed\r\nnext line\r\nlast\r\n", []string{"deploy failed", "next line", "last"}},
		{"lf", "deploy failed\nnext line\n", []string{"deploy failed", "next line"}},
		{"cr only", "deploy failed\rnext line\r", []string{"deploy failed", "next line"}},
		{"double cr", "deploy failed\r\r\nnext\r\r\n", []string{"deploy failed", "next"}},
		{"empty crlf line", "deploy failed\r\n\r\nlast\r\n", []string{"deploy failed", "", "last"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New(NewContent(Token{Success: []string{"deployed"}, Error: []string{"failed"}}), nil)
			feed(t, v, tt.input)

			assert.Equal(t, Error, v.Verdict())
			lines, err := v.Lines()
			require.NoError(t, err)
			assert.Equal(t, tt.want, lines)

			// Same line structure as a stream without an error match.
			plain := New(nil, nil)
			feed(t, plain, tt.input)
			plainLines, err := plain.Lines()
			require.NoError(t, err)
			assert.Equal(t, plainLines, lines)
		})
	}
}

func TestErrorLine(t *testing.T) {
	content := NewContent(Token{Success: []string{"Successfully started"}, Error: []string{"There is a process already using the admin port"}})

	v := New(content, nil)
	feed(t, v, "Waiting for domain1 to start\nThere is a process already using the admin port 4848\nCommand start-domain failed.\n")
	assert.Equal(t, Error, v.Verdict())
	assert.Equal(t, "There is a process already using the admin port 4848", v.ErrorLine())

	v = New(content, nil)
	feed(t, v, "Successfully started the domain\n")
	assert.Empty(t, v.ErrorLine())
}

func TestSuccessThenError(t *testing.T) {
	content := NewContent(
		Token{Success: []string{"Waiting for domain1 to start"}},
		Token{Success: []string{"Successfully started"}, Error: []string{"There is a process already using the admin port"}},
	)
	v := New(content, nil)
	feed(t, v, "Waiting for domain1 to start ......\n")
	assert.Equal(t, Success, v.Verdict())

	v = New(content, nil)
	feed(t, v, "Waiting for domain1 to start ......\nThere is a process already using the admin port 4848\n")
	assert.Equal(t, Error, v.Verdict())
}

func TestPromptEndsLine(t *testing.T) {
	v := New(NewContent(Token{Prompt: "password>", Success: []string{"Enter admin password"}}), nil)
	feed(t, v, "Enter admin pass", "word>")

	assert.Equal(t, Success, v.Verdict())
	lines, err := v.Lines()
	require.NoError(t, err)
	assert.Equal(t, []string{"Enter admin password>"}, lines)
}

func TestPromptAnswered(t *testing.T) {
	var stdin bytes.Buffer
	content := NewContent(
		Token{Prompt: "user name>", Input: "admin\n", Success: []string{"Enter admin user name"}},
		Token{Prompt: "password>", Input: "secret\n", Success: []string{"Enter the admin password"}},
		Token{Success: []string{"Command create-domain executed successfully"}, Error: []string{"Command create-domain failed"}},
	)
	v := New(content, &stdin)
	feed(t, v,
		"Enter admin user name> ",
		"Enter the admin password> ",
		"\nCommand create-domain executed successfully.\n",
	)

	assert.Equal(t, Success, v.Verdict())
	assert.Equal(t, "admin\nsecret\n", stdin.String())
}

func TestPromptOnlyForCurrentToken(t *testing.T) {
	var stdin bytes.Buffer
	content := NewContent(
		Token{Success: []string{"ready"}},
		Token{Prompt: "> ", Input: "y\n", Success: []string{"done"}},
	)
	v := New(content, &stdin)
	feed(t, v, "a> b\n", "ready\n", "continue> ", "done\n")

	assert.Equal(t, "y\n", stdin.String())
	lines, err := v.Lines()
	require.NoError(t, err)
	assert.Equal(t, []string{"a> b", "ready", "continue> ", "done"}, lines)
}

func TestUnterminatedLineFlushed(t *testing.T) {
	v := New(NewContent(Token{Success: []string{"started"}}), nil)
	feed(t, v, "booting\n", "domain started")

	assert.Equal(t, Success, v.Verdict())
	lines, err := v.Lines()
	require.NoError(t, err)
	assert.Equal(t, []string{"booting", "domain started"}, lines)
}

func TestLineTerminators(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"lf", "a\nb\n", []string{"a", "b"}},
		{"crlf", "a\r\nb\r\n", []string{"a", "b"}},
		{"cr only", "a\rb\r", []string{"a", "b"}},
		{"empty lines", "a\n\nb", []string{"a", "", "b"}},
		{"double cr", "a\r\r\nb", []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New(nil, nil)
			feed(t, v, tt.input)
			lines, err := v.Lines()
			require.NoError(t, err)
			assert.Equal(t, tt.want, lines)
			assert.Equal(t, Unknown, v.Verdict())
		})
	}
}

func TestTranscriptBeforeClose(t *testing.T) {
	v := New(nil, nil)
	_, err := v.Write([]byte("partial"))
	require.NoError(t, err)

	_, err = v.Transcript()
	assert.True(t, errors.Is(err, runner.ErrIllegalState))

	require.NoError(t, v.Close())
	transcript, err := v.Transcript()
	require.NoError(t, err)
	assert.Equal(t, "partial", transcript)

	_, err = v.Write([]byte("more"))
	assert.True(t, errors.Is(err, runner.ErrIllegalState))
}

func TestFirstMatchOffsetWins(t *testing.T) {
	v := New(NewContent(Token{Success: []string{"ok"}, Error: []string{"not ok"}}), nil)
	feed(t, v, "result: not ok\n")
	assert.Equal(t, Error, v.Verdict())

	v = New(NewContent(Token{Success: []string{"ok"}, Error: []string{"failed"}}), nil)
	feed(t, v, "ok, nothing failed\n")
	assert.Equal(t, Success, v.Verdict())
}

func TestVerifyStreamsSmallReads(t *testing.T) {
	out := strings.Repeat("x", 3*BufferSize) + "\nCommand start-domain executed successfully.\n"
	v := New(NewContent(Token{Success: []string{"executed successfully"}}), nil)

	verdict, err := v.Verify(context.Background(), iotest.OneByteReader(strings.NewReader(out)))
	require.NoError(t, err)
	assert.Equal(t, Success, verdict)

	lines, err := v.Lines()
	require.NoError(t, err)
	assert.Len(t, lines, 2)
	assert.Len(t, lines[0], 3*BufferSize)
}

func TestVerifyReadError(t *testing.T) {
	v := New(NewContent(Token{Success: []string{"never"}}), nil)
	r := io.MultiReader(strings.NewReader("line one\nhalf"), iotest.ErrReader(errors.New("broken pipe")))

	verdict, err := v.Verify(context.Background(), r)
	require.Error(t, err)
	assert.Equal(t, Unknown, verdict)

	lines, lerr := v.Lines()
	require.NoError(t, lerr)
	assert.Equal(t, []string{"line one", "half"}, lines)
}

func TestVerifyCancelled(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	v := New(nil, nil)

	done := make(chan error, 1)
	go func() {
		_, err := v.Verify(ctx, pr)
		done <- err
	}()

	_, err := pw.Write([]byte("starting\n"))
	require.NoError(t, err)
	cancel()

	err = <-done
	assert.True(t, errors.Is(err, runner.ErrCancelled))
	lines, lerr := v.Lines()
	require.NoError(t, lerr)
	assert.Equal(t, []string{"starting"}, lines)
}
