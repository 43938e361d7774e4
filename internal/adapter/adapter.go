// Package adapter is the net.Conn driver used by cmd/server,
// cmd/client, and cmd/benchmark to move bytes between a socket and an
// h2.Connection. The commands dial or accept their own sockets, and
// cmd/benchmark reads its socket directly, using only Flush from here.
// h2.Connection itself never touches a socket.
package adapter

import (
	"io"
	"net"

	"github.com/chronnie/h2"
)

// Drive pumps bytes between nc and conn until the peer closes, a
// protocol error kills the connection, or done is closed. done may be
// nil, meaning "run until the connection itself ends" (the server
// side's normal case).
func Drive(nc net.Conn, conn *h2.Connection, done <-chan struct{}) error {
	defer nc.Close()
	if err := Flush(nc, conn); err != nil {
		return err
	}

	readBuf := make([]byte, 16384)
	for {
		if done != nil {
			select {
			case <-done:
				return nil
			default:
			}
		}
		op := conn.NextReadOperation()
		want := op.WantBytes
		if want <= 0 {
			want = len(readBuf)
		}
		if want > len(readBuf) {
			readBuf = make([]byte, want)
		}
		n, err := nc.Read(readBuf[:want])
		if n > 0 {
			conn.Read(readBuf[:n])
			if perr := conn.Process(); perr != nil {
				Flush(nc, conn)
				return perr
			}
			if ferr := Flush(nc, conn); ferr != nil {
				return ferr
			}
		}
		if err != nil {
			conn.ReadEOF()
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

// Flush drains every currently-queued write onto nc.
func Flush(nc net.Conn, conn *h2.Connection) error {
	for {
		op := conn.NextWriteOperation()
		if op.Done {
			return nil
		}
		n, err := nc.Write(op.Data)
		conn.ReportWriteResult(n)
		if err != nil {
			return err
		}
	}
}
