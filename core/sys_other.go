//go:build !unix

package core

import "syscall"

func reuseAddr(network, address string, c syscall.RawConn) error {
	return nil
}
