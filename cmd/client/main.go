// Command client is a net.Conn adapter that drives the h2 client
// engine against a real server, demonstrating the core's
// I/O-agnosticism the way the teacher library's cmd/example did for
// its blocking client.
package main

import (
	"flag"
	"fmt"
	"net"
	"time"

	"github.com/chronnie/h2"
	"github.com/chronnie/h2/internal/adapter"
)

func main() {
	addr := flag.String("addr", "localhost:8443", "server address")
	path := flag.String("path", "/", "request path")
	flag.Parse()

	nc, err := net.Dial("tcp", *addr)
	if err != nil {
		h2.Logger.Fatal().Err(err).Msg("dial failed")
	}

	done := make(chan struct{})
	responses := make(chan *h2.ResponseContext, 1)

	cl := h2.NewClient(h2.DefaultConfig(), func(err error) {
		h2.LogError(&h2.Logger, err, "client")
	}, func(resp *h2.ResponseContext) {
		if _, complete := resp.ReadBody(); complete {
			responses <- resp
		}
	})
	cl.Start()

	// Queue the request before handing the connection to the adapter
	// goroutine: Connection is single-threaded (spec.md Section 5), so
	// nothing else may touch it once Drive starts pumping frames.
	streamID := cl.Request([]h2.HeaderField{
		{Name: ":method", Value: "GET"},
		{Name: ":path", Value: *path},
		{Name: ":scheme", Value: "http"},
		{Name: ":authority", Value: *addr},
	}, nil)

	go func() {
		if err := adapter.Drive(nc, cl.Connection(), done); err != nil {
			h2.LogError(&h2.Logger, err, "connection")
		}
	}()

	select {
	case resp := <-responses:
		body, _ := resp.ReadBody()
		fmt.Printf("stream %d: status=%s body=%q\n", streamID, resp.Status(), body)
	case <-time.After(5 * time.Second):
		fmt.Println("timed out waiting for response")
	}

	close(done)
}
