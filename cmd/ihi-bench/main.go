// Command ihi-bench measures request/response latency of the session layer.
//
// It starts an in-process server on a memory store, registers one player per
// client, logs every client in over WebSocket with a single sign-on ticket
// and then has each client request its credit balance at a fixed rate. The
// round trip from request to balance frame is recorded per request.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math"
	"net"
	"net/http"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ihi-server/ihi/internal/gameplay"
	"github.com/ihi-server/ihi/pkg/dispatch"
	"github.com/ihi-server/ihi/pkg/player"
	"github.com/ihi-server/ihi/pkg/protocol"
	"github.com/ihi-server/ihi/pkg/server"
	"github.com/ihi-server/ihi/pkg/store"
)

type profile struct {
	Name     string
	Clients  int
	Duration time.Duration
	RPS      float64
}

var profiles = map[string]profile{
	"fast":     {Name: "fast", Clients: 50, Duration: 10 * time.Second, RPS: 2},
	"standard": {Name: "standard", Clients: 200, Duration: 30 * time.Second, RPS: 5},
	"stress":   {Name: "stress", Clients: 500, Duration: 60 * time.Second, RPS: 10},
}

type benchConfig struct {
	Profile        string
	Clients        int
	Duration       time.Duration
	RPS            float64
	JSONOutput     string
	RequestTimeout time.Duration
}

type benchCounters struct {
	requestsSent     atomic.Uint64
	requestsComplete atomic.Uint64
	bytesSent        atomic.Uint64
	bytesReceived    atomic.Uint64
	framesReceived   atomic.Uint64
}

type benchErrors struct {
	dialFailures   atomic.Uint64
	loginFailures  atomic.Uint64
	writeFailures  atomic.Uint64
	decodeFailures atomic.Uint64
	timeouts       atomic.Uint64
}

func main() {
	log.SetFlags(0)

	cfg, err := parseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	st := store.NewMemoryStore()
	tickets, err := seedPlayers(ctx, st, cfg.Clients)
	if err != nil {
		log.Fatalf("seed players: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	chain := dispatch.NewChain(dispatch.WithLogger(logger))
	gameplay.New(player.Deps{Store: st, Logger: logger}).Register(chain)
	manager := server.NewManager(chain, server.WithManagerLogger(logger))

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	httpServer := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if _, err := manager.Open(server.NewWebSocketConn(ws, manager.SessionConfig())); err != nil {
			_ = ws.Close()
		}
	})}
	go func() {
		_ = httpServer.Serve(ln)
	}()
	defer func() {
		_ = httpServer.Shutdown(context.Background())
		_ = manager.Shutdown(context.Background())
	}()

	wsURL := "ws://" + ln.Addr().String() + "/"

	runCtx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	var (
		counters  benchCounters
		errCounts benchErrors
		samplesMu sync.Mutex
		samples   []time.Duration
	)

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < cfg.Clients; i++ {
		wg.Add(1)
		go func(ticket string) {
			defer wg.Done()
			local, err := runClient(runCtx, wsURL, ticket, cfg, &counters, &errCounts)
			if err != nil {
				log.Printf("client: %v", err)
			}
			samplesMu.Lock()
			samples = append(samples, local...)
			samplesMu.Unlock()
		}(tickets[i])
	}
	wg.Wait()
	elapsed := time.Since(start)

	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	report := buildReport(cfg, elapsed, samples, &counters, &errCounts)

	writeSummary(os.Stderr, report)
	if err := writeJSON(cfg.JSONOutput, report); err != nil {
		log.Fatalf("write json: %v", err)
	}
}

func parseConfig(fs *flag.FlagSet, args []string) (benchConfig, error) {
	profileFlag := fs.String("profile", "standard", "profile: fast|standard|stress")
	clientsFlag := fs.Int("clients", -1, "number of concurrent websocket clients")
	durationFlag := fs.String("duration", "", "benchmark duration, e.g. 30s")
	rpsFlag := fs.Float64("rps", -1, "target requests/sec per client")
	jsonFlag := fs.String("json", "-", "JSON output path ('-' for stdout, '' to skip)")
	if err := fs.Parse(args); err != nil {
		return benchConfig{}, err
	}

	name := strings.ToLower(strings.TrimSpace(*profileFlag))
	base, ok := profiles[name]
	if !ok {
		return benchConfig{}, fmt.Errorf("unknown profile %q", name)
	}

	cfg := benchConfig{
		Profile:    base.Name,
		Clients:    base.Clients,
		Duration:   base.Duration,
		RPS:        base.RPS,
		JSONOutput: strings.TrimSpace(*jsonFlag),
	}
	if *clientsFlag != -1 {
		cfg.Clients = *clientsFlag
	}
	if *durationFlag != "" {
		d, err := time.ParseDuration(*durationFlag)
		if err != nil {
			return benchConfig{}, fmt.Errorf("invalid -duration: %w", err)
		}
		cfg.Duration = d
	}
	if *rpsFlag != -1 {
		cfg.RPS = *rpsFlag
	}

	switch {
	case cfg.Clients <= 0:
		return benchConfig{}, errors.New("-clients must be > 0")
	case cfg.Duration <= 0:
		return benchConfig{}, errors.New("-duration must be > 0")
	case cfg.RPS <= 0:
		return benchConfig{}, errors.New("-rps must be > 0")
	}

	cfg.RequestTimeout = requestTimeout(cfg.RPS)
	return cfg, nil
}

func requestTimeout(rps float64) time.Duration {
	period := time.Duration(float64(time.Second) / rps)
	timeout := period * 10
	if timeout < 2*time.Second {
		timeout = 2 * time.Second
	}
	return timeout
}

// seedPlayers registers n players and returns one login ticket each.
func seedPlayers(ctx context.Context, st store.Store, n int) ([]string, error) {
	tickets := make([]string, n)
	for i := range tickets {
		id := uint32(i + 1)
		err := player.Register(ctx, st, player.Account{
			ID:      id,
			Name:    "bench" + strconv.Itoa(i+1),
			Credits: int32(i),
		})
		if err != nil {
			return nil, err
		}
		p, err := player.Load(ctx, id, player.Deps{Store: st})
		if err != nil {
			return nil, err
		}
		tickets[i] = "bench-" + strconv.Itoa(i+1)
		if err := p.SetSSOTicket(ctx, tickets[i]); err != nil {
			return nil, err
		}
	}
	return tickets, nil
}

// wireString encodes s in the client-to-server string form.
func wireString(s string) []byte {
	n, _ := protocol.EncodeB64(uint32(len(s)), protocol.HeaderLength)
	return append(n, s...)
}

func runClient(
	ctx context.Context,
	wsURL string,
	ticket string,
	cfg benchConfig,
	counters *benchCounters,
	errCounts *benchErrors,
) ([]time.Duration, error) {
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		errCounts.dialFailures.Add(1)
		return nil, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	login, err := protocol.EncodePacket(gameplay.MsgSSOTicket, wireString(ticket))
	if err != nil {
		return nil, err
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, login); err != nil {
		errCounts.loginFailures.Add(1)
		return nil, fmt.Errorf("login write: %w", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(cfg.RequestTimeout))
	if err := waitFor(conn, gameplay.MsgAuthenticationOK, counters, errCounts); err != nil {
		errCounts.loginFailures.Add(1)
		return nil, fmt.Errorf("login: %w", err)
	}

	request, err := protocol.EncodePacket(gameplay.MsgGetCredits, nil)
	if err != nil {
		return nil, err
	}

	period := time.Duration(float64(time.Second) / cfg.RPS)
	var samples []time.Duration

	for ctx.Err() == nil {
		start := time.Now()
		if err := conn.WriteMessage(websocket.BinaryMessage, request); err != nil {
			errCounts.writeFailures.Add(1)
			return samples, fmt.Errorf("request write: %w", err)
		}
		counters.requestsSent.Add(1)
		counters.bytesSent.Add(uint64(len(request)))

		_ = conn.SetReadDeadline(time.Now().Add(cfg.RequestTimeout))
		if err := waitFor(conn, gameplay.MsgCreditBalance, counters, errCounts); err != nil {
			if isTimeout(err) {
				errCounts.timeouts.Add(1)
			}
			return samples, fmt.Errorf("await balance: %w", err)
		}
		samples = append(samples, time.Since(start))
		counters.requestsComplete.Add(1)

		if sleep := period - time.Since(start); sleep > 0 {
			timer := time.NewTimer(sleep)
			select {
			case <-ctx.Done():
				timer.Stop()
			case <-timer.C:
			}
		}
	}
	return samples, nil
}

// waitFor reads frames until one with header id arrives.
func waitFor(conn *websocket.Conn, id uint32, counters *benchCounters, errCounts *benchErrors) error {
	want, err := protocol.EncodeB64(id, protocol.HeaderLength)
	if err != nil {
		return err
	}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		counters.framesReceived.Add(1)
		counters.bytesReceived.Add(uint64(len(data)))

		if len(data) < protocol.HeaderLength+1 || data[len(data)-1] != protocol.FrameTerminator {
			errCounts.decodeFailures.Add(1)
			return fmt.Errorf("malformed frame %q", data)
		}
		if string(data[:protocol.HeaderLength]) == string(want) {
			return nil
		}
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := int(math.Ceil(float64(len(sorted))*p)) - 1
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

type benchReport struct {
	Profile    string         `json:"profile"`
	Go         string         `json:"go"`
	Clients    int            `json:"clients"`
	RPS        float64        `json:"rps_per_client"`
	ElapsedS   float64        `json:"elapsed_s"`
	LatencyMS  latencyInfo    `json:"latency_ms"`
	Throughput throughputInfo `json:"throughput"`
	Errors     errorInfo      `json:"errors"`
}

type latencyInfo struct {
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
	Max float64 `json:"max"`
}

type throughputInfo struct {
	RequestsSent     uint64  `json:"requests_sent"`
	RequestsComplete uint64  `json:"requests_complete"`
	RequestsPerSec   float64 `json:"requests_per_sec"`
	BytesSent        uint64  `json:"bytes_sent"`
	BytesReceived    uint64  `json:"bytes_received"`
	FramesReceived   uint64  `json:"frames_received"`
}

type errorInfo struct {
	Dial    uint64 `json:"dial"`
	Login   uint64 `json:"login"`
	Write   uint64 `json:"write"`
	Decode  uint64 `json:"decode"`
	Timeout uint64 `json:"timeout"`
}

func buildReport(cfg benchConfig, elapsed time.Duration, latencies []time.Duration, c *benchCounters, e *benchErrors) benchReport {
	complete := c.requestsComplete.Load()
	return benchReport{
		Profile:  cfg.Profile,
		Go:       runtime.Version(),
		Clients:  cfg.Clients,
		RPS:      cfg.RPS,
		ElapsedS: elapsed.Seconds(),
		LatencyMS: latencyInfo{
			P50: ms(percentile(latencies, 0.50)),
			P95: ms(percentile(latencies, 0.95)),
			P99: ms(percentile(latencies, 0.99)),
			Max: ms(percentile(latencies, 1)),
		},
		Throughput: throughputInfo{
			RequestsSent:     c.requestsSent.Load(),
			RequestsComplete: complete,
			RequestsPerSec:   float64(complete) / elapsed.Seconds(),
			BytesSent:        c.bytesSent.Load(),
			BytesReceived:    c.bytesReceived.Load(),
			FramesReceived:   c.framesReceived.Load(),
		},
		Errors: errorInfo{
			Dial:    e.dialFailures.Load(),
			Login:   e.loginFailures.Load(),
			Write:   e.writeFailures.Load(),
			Decode:  e.decodeFailures.Load(),
			Timeout: e.timeouts.Load(),
		},
	}
}

func writeSummary(w io.Writer, r benchReport) {
	fmt.Fprintf(w, "profile=%s clients=%d rps=%.1f elapsed=%.1fs\n", r.Profile, r.Clients, r.RPS, r.ElapsedS)
	fmt.Fprintf(w, "latency p50=%.2fms p95=%.2fms p99=%.2fms max=%.2fms\n",
		r.LatencyMS.P50, r.LatencyMS.P95, r.LatencyMS.P99, r.LatencyMS.Max)
	fmt.Fprintf(w, "requests sent=%d complete=%d (%.1f/s)\n",
		r.Throughput.RequestsSent, r.Throughput.RequestsComplete, r.Throughput.RequestsPerSec)
	fmt.Fprintf(w, "errors dial=%d login=%d write=%d decode=%d timeout=%d\n",
		r.Errors.Dial, r.Errors.Login, r.Errors.Write, r.Errors.Decode, r.Errors.Timeout)
}

func writeJSON(path string, report benchReport) error {
	if path == "" {
		return nil
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if path == "-" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
