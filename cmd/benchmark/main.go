// Command benchmark fires a fixed number of GET requests over
// concurrently-dialed connections and reports throughput, the same
// shape as the teacher library's benchmark but driven by the
// cooperative client engine instead of a blocking one.
package main

import (
	"flag"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/chronnie/h2"
	"github.com/chronnie/h2/internal/adapter"
)

func main() {
	addr := flag.String("addr", "localhost:8443", "server address")
	requests := flag.Int("n", 10000, "number of requests")
	conns := flag.Int("conns", 50, "number of concurrent connections")
	flag.Parse()

	fmt.Printf("Sending %d requests over %d connections...\n", *requests, *conns)

	var wg sync.WaitGroup
	perConn := *requests / *conns
	start := time.Now()

	for i := 0; i < *conns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := runConn(*addr, perConn); err != nil {
				h2.LogError(&h2.Logger, err, "benchmark_connection")
			}
		}()
	}
	wg.Wait()

	elapsed := time.Since(start)
	fmt.Printf("Sent %d requests in %s (%.0f req/s)\n", *requests, elapsed, float64(*requests)/elapsed.Seconds())
}

// runConn keeps every touch of the client's Connection on a single
// goroutine (this one): a background goroutine only ever pushes raw
// bytes off the socket onto readCh, never calls into the engine
// itself. That lets requests keep overlapping in flight without
// racing the socket reader against Connection's single-threaded core.
func runConn(addr string, n int) error {
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}
	defer nc.Close()

	const inFlight = 8
	remaining := n
	outstanding := 0
	completed := 0

	cl := h2.NewClient(h2.DefaultConfig(), nil, func(resp *h2.ResponseContext) {
		if _, complete := resp.ReadBody(); complete {
			completed++
			outstanding--
		}
	})
	cl.Start()

	readCh := make(chan []byte, inFlight)
	errCh := make(chan error, 1)
	go func() {
		buf := make([]byte, 16384)
		for {
			m, rerr := nc.Read(buf)
			if m > 0 {
				chunk := append([]byte(nil), buf[:m]...)
				readCh <- chunk
			}
			if rerr != nil {
				close(readCh)
				errCh <- rerr
				return
			}
		}
	}()

	fillWindow := func() {
		for remaining > 0 && outstanding < inFlight {
			remaining--
			outstanding++
			cl.Request([]h2.HeaderField{
				{Name: ":method", Value: "GET"},
				{Name: ":path", Value: "/"},
				{Name: ":scheme", Value: "http"},
				{Name: ":authority", Value: addr},
			}, nil)
		}
	}

	fillWindow()
	if err := adapter.Flush(nc, cl.Connection()); err != nil {
		return err
	}

	for completed < n {
		chunk, ok := <-readCh
		if !ok {
			if err := <-errCh; err != io.EOF {
				return err
			}
			return nil
		}
		cl.Connection().Read(chunk)
		if err := cl.Connection().Process(); err != nil {
			return err
		}
		fillWindow()
		if err := adapter.Flush(nc, cl.Connection()); err != nil {
			return err
		}
	}
	return nil
}
