package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/aeolun/nanopubsub/pkg/client"
	"github.com/aeolun/nanopubsub/pkg/transport"
	"github.com/spf13/cobra"
)

const loremIpsum = "Lorem ipsum dolor sit amet, consectetur adipiscing elit, sed do eiusmod tempor incididunt ut labore et dolore magna aliqua. Ut enim ad minim veniam, quis nostrud exercitation ullamco laboris nisi ut aliquip ex ea commodo consequat."

var loremWords = strings.Fields(loremIpsum)

// benchStats is shared by every bench publisher
type benchStats struct {
	sent      atomic.Int64
	bytes     atomic.Int64
	failed    atomic.Int64
	sendTimeU atomic.Int64 // total time spent in Send, microseconds
}

func (s *benchStats) recordSuccess(n int, took time.Duration) {
	s.sent.Add(1)
	s.bytes.Add(int64(n))
	s.sendTimeU.Add(took.Microseconds())
}

func (s *benchStats) snapshot() (sent, bytes, failed int64, avgSendUs float64) {
	sent = s.sent.Load()
	bytes = s.bytes.Load()
	failed = s.failed.Load()
	if sent > 0 {
		avgSendUs = float64(s.sendTimeU.Load()) / float64(sent)
	}
	return
}

type benchFlags struct {
	dest     destFlags
	clients  int
	duration time.Duration
	minDelay time.Duration
	maxDelay time.Duration
	topic    string
}

func newBenchCmd(a *app) *cobra.Command {
	var f benchFlags

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Publish random messages from several clients and report throughput",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.clients < 1 {
				return fmt.Errorf("--clients must be at least 1")
			}
			if f.maxDelay < f.minDelay {
				return fmt.Errorf("--max-delay must not be below --min-delay")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, f.duration)
			defer cancel()
			return runBench(ctx, cmd, a, f)
		},
	}

	f.dest.register(cmd)
	cmd.Flags().IntVar(&f.clients, "clients", 4, "number of concurrent publishers")
	cmd.Flags().DurationVar(&f.duration, "duration", 10*time.Second, "how long to publish for")
	cmd.Flags().DurationVar(&f.minDelay, "min-delay", 10*time.Millisecond, "minimum delay between messages")
	cmd.Flags().DurationVar(&f.maxDelay, "max-delay", 100*time.Millisecond, "maximum delay between messages")
	cmd.Flags().StringVarP(&f.topic, "topic", "t", "bench", "topic to publish on")
	return cmd
}

func runBench(ctx context.Context, cmd *cobra.Command, a *app, f benchFlags) error {
	base := f.dest.clientID
	if base == "" {
		base = a.cfg.Client.ClientID
	}
	if base == "" {
		base = "bench"
	}

	clients, err := openBenchClients(f.clients, func(i int) (*client.Publisher, *transport.Conn, error) {
		dest := f.dest
		dest.clientID = fmt.Sprintf("%s-%d", base, i)
		return dest.publisher(a)
	})
	if err != nil {
		return err
	}

	stats := &benchStats{}
	start := time.Now()
	var wg sync.WaitGroup

	stopStats := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sent, _, failed, avgUs := stats.snapshot()
				a.logger.Info().
					Int64("sent", sent).
					Float64("rate", float64(sent)/time.Since(start).Seconds()).
					Int64("failed", failed).
					Float64("avg_send_ms", avgUs/1000).
					Msg("bench progress")
			case <-stopStats:
				return
			}
		}
	}()

	for i, bc := range clients {
		wg.Add(1)
		go func(bc benchClient, seed int64) {
			defer wg.Done()
			defer bc.conn.Close()
			benchPublisher(ctx, bc.pub, f, stats, rand.New(rand.NewSource(seed)))
		}(bc, start.UnixNano()+int64(i))
	}

	wg.Wait()
	close(stopStats)

	elapsed := time.Since(start)
	sent, bytes, failed, avgUs := stats.snapshot()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "=== Bench Results ===\n")
	fmt.Fprintf(out, "Clients: %d\n", f.clients)
	fmt.Fprintf(out, "Duration: %v\n", elapsed.Round(time.Millisecond))
	fmt.Fprintf(out, "Messages sent: %d (%.1f/s, %d bytes)\n", sent, float64(sent)/elapsed.Seconds(), bytes)
	fmt.Fprintf(out, "Messages failed: %d\n", failed)
	fmt.Fprintf(out, "Average send time: %.3fms\n", avgUs/1000)
	return nil
}

type benchClient struct {
	pub  *client.Publisher
	conn *transport.Conn
}

// openBenchClients opens every publisher before any of them sends. If one
// fails, the ones already open are closed.
func openBenchClients(n int, open func(i int) (*client.Publisher, *transport.Conn, error)) ([]benchClient, error) {
	clients := make([]benchClient, 0, n)
	for i := 0; i < n; i++ {
		pub, conn, err := open(i)
		if err != nil {
			for _, bc := range clients {
				bc.conn.Close()
			}
			return nil, fmt.Errorf("open bench client %d: %w", i, err)
		}
		clients = append(clients, benchClient{pub: pub, conn: conn})
	}
	return clients, nil
}

// benchPublisher sends until ctx is done, counting failures
func benchPublisher(ctx context.Context, pub *client.Publisher, f benchFlags, stats *benchStats, rng *rand.Rand) {
	for {
		body := randomBody(rng)
		begin := time.Now()
		n, err := pub.Publish(ctx, f.topic, body)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			stats.failed.Add(1)
		} else {
			stats.recordSuccess(n, time.Since(begin))
		}

		delay := f.minDelay
		if span := f.maxDelay - f.minDelay; span > 0 {
			delay += time.Duration(rng.Int63n(int64(span)))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func randomBody(rng *rand.Rand) string {
	n := 3 + rng.Intn(12)
	words := make([]string, n)
	for i := range words {
		words[i] = loremWords[rng.Intn(len(loremWords))]
	}
	return strings.Join(words, " ")
}
