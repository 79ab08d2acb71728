//go:build !linux

package source

import "syscall"

func setReceiveBuffer(network, address string, c syscall.RawConn) error {
	return nil
}
