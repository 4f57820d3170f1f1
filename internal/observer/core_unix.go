//go:build linux || darwin

package observer

import "syscall"

// raiseCoreLimit lifts the soft core size limit to the hard limit so child
// processes can dump core.
func raiseCoreLimit() error {
	var lim syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_CORE, &lim); err != nil {
		return err
	}
	lim.Cur = lim.Max
	return syscall.Setrlimit(syscall.RLIMIT_CORE, &lim)
}
