package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/devadev/deva/internal/engine"
	"github.com/devadev/deva/internal/lifecycle"
	"github.com/devadev/deva/internal/log"
	"github.com/devadev/deva/internal/term"
	"github.com/devadev/deva/internal/ui"
)

// execInContainer runs the agent command inside a persistent container and
// propagates its exit code. When stdin and stdout are both terminals the
// exec gets a TTY, the local terminal goes raw, and stdin is wrapped in the
// escape proxy so Ctrl-/ d detaches and Ctrl-/ s stops the container.
func execInContainer(ctx context.Context, eng engine.Engine, launcher *lifecycle.Launcher, res *lifecycle.Result, argv []string, workdir string, env []string) error {
	interactive := term.IsTerminal(os.Stdin) && term.IsTerminal(os.Stdout)

	opts := engine.ExecOptions{
		Cmd:     argv,
		WorkDir: workdir,
		Env:     env,
		Stdin:   os.Stdin,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		TTY:     interactive,
	}

	execCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var resizeCh chan engine.Winsize
	if interactive {
		ui.Info(term.EscapeHelpText())

		rawState, err := term.EnableRawMode(os.Stdin)
		if err != nil {
			log.Debug("raw mode unavailable", "error", err)
		} else {
			defer func() {
				if err := term.RestoreTerminal(rawState); err != nil {
					log.Debug("restoring terminal", "error", err)
				}
			}()
		}

		opts.Stdin = term.NewEscapeProxy(os.Stdin)
		if w, h := term.GetSize(os.Stdout); w > 0 && h > 0 {
			opts.Width = uint(w)
			opts.Height = uint(h)
		}
		resizeCh = make(chan engine.Winsize, 1)
		opts.Resize = resizeCh
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGWINCH)
	defer signal.Stop(sigCh)

	type execResult struct {
		code int
		err  error
	}
	done := make(chan execResult, 1)
	go func() {
		code, err := eng.Exec(execCtx, res.Name, opts)
		done <- execResult{code, err}
	}()

	for {
		select {
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGWINCH:
				if resizeCh == nil {
					continue
				}
				w, h := term.GetSize(os.Stdout)
				if w <= 0 || h <= 0 {
					continue
				}
				select {
				case resizeCh <- engine.Winsize{Height: uint(h), Width: uint(w)}:
				default:
				}
			case syscall.SIGTERM:
				// Detach; the container keeps running.
				cancel()
				return nil
			case syscall.SIGINT:
				if interactive {
					// Raw mode delivers Ctrl+C to the container.
					continue
				}
				cancel()
				fmt.Printf("\nDetached from %s (still running)\n", res.Name)
				return nil
			}

		case r := <-done:
			if term.IsEscapeError(r.err) {
				return handleEscape(launcher, res.Name, term.GetEscapeAction(r.err), cancel)
			}
			if r.err != nil {
				if execCtx.Err() != nil {
					return nil
				}
				return lifecycle.Phase(lifecycle.PhaseAttach, r.err)
			}
			if r.code != 0 {
				return &exitError{code: r.code}
			}
			return nil
		}
	}
}

func handleEscape(launcher *lifecycle.Launcher, name string, action term.EscapeAction, cancel context.CancelFunc) error {
	// The launch context may be done; lifecycle calls get a fresh one.
	cancel()
	switch action {
	case term.EscapeDetach:
		fmt.Printf("\r\nDetached from %s (still running)\r\n", name)
		return nil
	case term.EscapeStop:
		fmt.Printf("\r\nStopping %s...\r\n", name)
		if err := launcher.Stop(context.Background(), name); err != nil {
			log.Error("stopping container", "container", name, "error", err)
			return err
		}
		fmt.Printf("Stopped %s\r\n", name)
	}
	return nil
}

// runEphemeral attaches to the single-use container's primary process and
// starts it, so the agent's first output is never lost, then reports its
// exit code. The engine removes the container itself (AutoRemove).
func runEphemeral(ctx context.Context, eng engine.Engine, res *lifecycle.Result) error {
	interactive := term.IsTerminal(os.Stdin) && term.IsTerminal(os.Stdout)

	opts := engine.AttachOptions{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		TTY:    interactive,
	}
	if interactive {
		rawState, err := term.EnableRawMode(os.Stdin)
		if err != nil {
			log.Debug("raw mode unavailable", "error", err)
		} else {
			defer func() {
				if err := term.RestoreTerminal(rawState); err != nil {
					log.Debug("restoring terminal", "error", err)
				}
			}()
		}
		if w, h := term.GetSize(os.Stdout); w > 0 && h > 0 {
			opts.Width = uint(w)
			opts.Height = uint(h)
		}
	}

	resizeDone := make(chan struct{})
	defer close(resizeDone)
	if interactive {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGWINCH)
		go func() {
			defer signal.Stop(sigCh)
			for {
				select {
				case <-resizeDone:
					return
				case <-sigCh:
					w, h := term.GetSize(os.Stdout)
					if w > 0 && h > 0 {
						_ = eng.ResizeTTY(ctx, res.Name, uint(h), uint(w))
					}
				}
			}
		}()
	}

	waitCh := make(chan int64, 1)
	go func() {
		code, err := eng.Wait(ctx, res.Name)
		if err != nil {
			log.Debug("waiting for container", "container", res.Name, "error", err)
			code = -1
		}
		waitCh <- code
	}()

	if err := eng.StartAttached(ctx, res.Name, opts); err != nil && !isBenignAttachErr(err) {
		return lifecycle.Phase(lifecycle.PhaseAttach, err)
	}

	code := <-waitCh
	if code > 0 {
		return &exitError{code: int(code)}
	}
	return nil
}

// isBenignAttachErr filters stream teardown noise when the container exits
// and AutoRemove tears the connection down under the copy loops.
func isBenignAttachErr(err error) bool {
	return err == io.EOF || err == io.ErrUnexpectedEOF
}
