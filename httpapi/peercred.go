package httpapi

import (
	"errors"
	"net"

	"golang.org/x/sys/unix"
	"pkt.systems/pslog"
)

// peerCredListener wraps a unix listener and only admits connections whose
// peer uid matches the daemon's. The check runs at accept time, so a refused
// client never reaches a handler. The socket file mode already keeps
// strangers out; this guards against loose parent directory permissions.
type peerCredListener struct {
	net.Listener
	uid  int
	log  pslog.Logger
	peer func(net.Conn) (int, error)
}

func (l *peerCredListener) Accept() (net.Conn, error) {
	lookup := l.peer
	if lookup == nil {
		lookup = peerUID
	}
	for {
		conn, err := l.Listener.Accept()
		if err != nil {
			return nil, err
		}
		uid, err := lookup(conn)
		if err != nil {
			if l.log != nil {
				l.log.Warn("socket peer credential lookup failed", "err", err)
			}
			_ = conn.Close()
			continue
		}
		if uid != l.uid {
			if l.log != nil {
				l.log.Warn("socket peer refused", "peer_uid", uid, "want_uid", l.uid)
			}
			_ = conn.Close()
			continue
		}
		return conn, nil
	}
}

// peerUID reads the uid on the other end of a unix socket via SO_PEERCRED.
func peerUID(conn net.Conn) (int, error) {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return 0, errors.New("not a unix socket connection")
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return 0, err
	}
	var cred *unix.Ucred
	var credErr error
	if err := raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return 0, err
	}
	if credErr != nil {
		return 0, credErr
	}
	return int(cred.Uid), nil
}
