//go:build windows

package launcher

import (
	"os/exec"
	"syscall"
)

// setupProcessAttributes hides the console window of the game process.
func setupProcessAttributes(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: 0x08000000, // CREATE_NO_WINDOW
	}
}
