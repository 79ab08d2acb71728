package source

import (
	"syscall"

	"golang.org/x/sys/unix"
)

func setReceiveBuffer(network, address string, c syscall.RawConn) error {
	var serr error
	err := c.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, receiveBufferSize)
	})
	if err != nil {
		return err
	}
	if serr != nil {
		// Capped by net.core.rmem_max; not fatal.
		log.Warn("Could not set SO_RCVBUF on %s: %v", address, serr)
	}
	return nil
}
