//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package core

import "syscall"

func controlSocket(reusePort bool) func(network, address string, rc syscall.RawConn) error {
	return nil
}
