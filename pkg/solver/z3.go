package solver

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/capplan/pkg/engine"
	"github.com/openfroyo/capplan/pkg/smt"
)

// Z3 runs each check in a fresh z3 process speaking SMT-LIB2 over stdin.
type Z3 struct {
	path   string
	logger zerolog.Logger
}

// NewZ3 creates the z3 backend. An empty path means "z3" on PATH.
func NewZ3(logger zerolog.Logger, path string) *Z3 {
	if path == "" {
		path = "z3"
	}
	return &Z3{
		path:   path,
		logger: logger.With().Str("component", "z3").Logger(),
	}
}

// Name implements Solver.
func (z *Z3) Name() string { return BackendZ3 }

// Check implements Solver. The process is killed when ctx ends.
func (z *Z3) Check(ctx context.Context, p *smt.Problem, opts Options) (*Outcome, error) {
	ctx, cancel := withTimeout(ctx, opts.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, z.path, "-in", "-smt2")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, z.failed("failed to open z3 stdin", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, z.failed("failed to open z3 stdout", err)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, z.failed("failed to start z3", err)
	}
	defer func() {
		_ = stdin.Close()
		cancel()
		_ = cmd.Wait()
	}()

	// z3 may answer before it has read the whole script, so the script is
	// written while the answer is read.
	script := p.Script(smt.ScriptOptions{Named: opts.Core, Minimize: opts.Minimize, CheckSat: true})
	sent := make(chan error, 1)
	go func() {
		_, err := io.WriteString(stdin, script)
		sent <- err
	}()

	r := bufio.NewReader(stdout)
	answer, err := readTerm(r)
	if err != nil {
		return nil, z.ioError(ctx, "failed to read z3 answer", err)
	}
	if answer != "sat" && answer != "unsat" && answer != "unknown" {
		return nil, engine.NewPermanentError("z3 rejected the problem", nil).
			WithCode(engine.ErrCodeSolverFailed).
			WithDetail("output", answer).
			WithDetail("stderr", stderr.String())
	}
	if err := <-sent; err != nil {
		return nil, z.ioError(ctx, "failed to send problem to z3", err)
	}

	out := &Outcome{Backend: BackendZ3}
	switch answer {
	case "sat":
		out.Status = StatusSat
		text, err := z.ask(ctx, stdin, r, "(get-model)")
		if err != nil {
			return nil, err
		}
		if out.Model, err = smt.ParseModel(text); err != nil {
			return nil, engine.NewPermanentError("invalid z3 model", err).WithCode(engine.ErrCodeSolverFailed)
		}
	case "unsat":
		out.Status = StatusUnsat
		if opts.Core {
			text, err := z.ask(ctx, stdin, r, "(get-unsat-core)")
			if err != nil {
				return nil, err
			}
			if out.Core, err = smt.ParseCore(text); err != nil {
				return nil, engine.NewPermanentError("invalid z3 unsat core", err).WithCode(engine.ErrCodeSolverFailed)
			}
		}
	default:
		out.Status = StatusUnknown
	}
	_, _ = io.WriteString(stdin, "(exit)\n")

	out.Duration = time.Since(start)
	z.logger.Debug().
		Str("status", string(out.Status)).
		Int("assertions", len(p.Assertions())).
		Dur("duration", out.Duration).
		Msg("z3 check completed")
	return out, nil
}

func (z *Z3) ask(ctx context.Context, w io.Writer, r *bufio.Reader, command string) (string, error) {
	if _, err := io.WriteString(w, command+"\n"); err != nil {
		return "", z.ioError(ctx, "failed to send "+command, err)
	}
	text, err := readTerm(r)
	if err != nil {
		return "", z.ioError(ctx, "failed to read "+command, err)
	}
	if strings.HasPrefix(text, "(error") {
		return "", engine.NewPermanentError("z3 "+command+" failed", nil).
			WithCode(engine.ErrCodeSolverFailed).
			WithDetail("output", text)
	}
	return text, nil
}

func (z *Z3) failed(message string, err error) error {
	return engine.NewTransientError(message, err).
		WithCode(engine.ErrCodeSolverFailed).
		WithResource(z.path)
}

// ioError prefers the context's verdict: a killed process surfaces as a
// broken pipe or EOF.
func (z *Z3) ioError(ctx context.Context, message string, err error) error {
	if ctx.Err() != nil {
		return contextError(ctx, BackendZ3)
	}
	return z.failed(message, err)
}

// readTerm reads one SMT-LIB term from r: an atom or a balanced list.
// Quoted symbols, string literals and comments are honoured.
func readTerm(r *bufio.Reader) (string, error) {
	var b strings.Builder
	depth := 0
	started := false
	inBar, inString, inComment := false, false, false

	for {
		c, err := r.ReadByte()
		if err != nil {
			if err == io.EOF && started && depth == 0 {
				return b.String(), nil
			}
			if err == io.EOF {
				return "", fmt.Errorf("unexpected end of solver output after %q", b.String())
			}
			return "", err
		}

		switch {
		case inComment:
			if c == '\n' {
				inComment = false
			}
			continue
		case inBar:
			b.WriteByte(c)
			if c == '|' {
				inBar = false
			}
			continue
		case inString:
			b.WriteByte(c)
			if c == '"' {
				inString = false
			}
			continue
		}

		switch c {
		case ';':
			inComment = true
		case ' ', '\t', '\r', '\n':
			if started && depth == 0 {
				return b.String(), nil
			}
			if started {
				b.WriteByte(c)
			}
		case '(':
			started = true
			depth++
			b.WriteByte(c)
		case ')':
			depth--
			b.WriteByte(c)
			if depth == 0 {
				return b.String(), nil
			}
		case '|':
			started = true
			inBar = true
			b.WriteByte(c)
		case '"':
			started = true
			inString = true
			b.WriteByte(c)
		default:
			started = true
			b.WriteByte(c)
		}
	}
}
