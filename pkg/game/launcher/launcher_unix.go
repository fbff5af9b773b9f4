//go:build !windows

package launcher

import "os/exec"

func setupProcessAttributes(cmd *exec.Cmd) {}
