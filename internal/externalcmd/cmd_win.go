//go:build windows

package externalcmd

import (
	"os"
	"os/exec"

	"github.com/kballard/go-shellquote"
)

func (e *Cmd) runOSSpecific() error {
	// on Windows the shell is not used and the command is started directly;
	// variable substitution already happened in NewCmd.
	parts, err := shellquote.Split(e.cmdstr)
	if err != nil {
		return err
	}

	cmd := exec.Command(parts[0], parts[1:]...)

	cmd.Env = os.Environ()
	for key, val := range e.env {
		cmd.Env = append(cmd.Env, key+"="+val)
	}

	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return err
	}

	cmdDone := make(chan struct{})
	go func() {
		defer close(cmdDone)
		cmd.Wait() //nolint:errcheck
	}()

	select {
	case <-e.terminate:
		// on Windows it's not possible to send os.Interrupt to a process;
		// Kill() is the only supported way.
		cmd.Process.Kill() //nolint:errcheck
		<-cmdDone
		return errTerminated

	case <-cmdDone:
		return nil
	}
}
