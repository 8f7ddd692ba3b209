package daemon

import "syscall"

// syscallSig0 returns the null signal used to probe whether a pid is
// still alive without actually signalling it.
func syscallSig0() syscall.Signal {
	return syscall.Signal(0)
}
