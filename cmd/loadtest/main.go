package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

func main() {
	serverAddr := flag.String("server", "localhost:8080", "Server address (host:port or ws:// URL)")
	numClients := flag.Int("clients", 12, "Number of concurrent bots")
	groupSize := flag.Int("group", 4, "Bots per lobby")
	duration := flag.Duration("duration", 1*time.Minute, "Test duration")
	minDelay := flag.Duration("min-delay", 50*time.Millisecond, "Minimum delay between updates")
	maxDelay := flag.Duration("max-delay", 200*time.Millisecond, "Maximum delay between updates")
	debug := flag.Bool("debug", false, "Log every bot")
	flag.Parse()

	base, _ := zap.NewDevelopment()
	if !*debug {
		base, _ = zap.NewProduction()
	}
	defer func() { _ = base.Sync() }()
	log := base.Sugar()

	if *groupSize < 1 {
		*groupSize = 1
	}
	if *maxDelay <= *minDelay {
		*maxDelay = *minDelay + time.Millisecond
	}

	// ramp up over a quarter of the run
	staggerDelay := (*duration / 4) / time.Duration(*numClients)
	if staggerDelay < time.Millisecond {
		staggerDelay = time.Millisecond
	}

	log.Infof("Starting load test: server=%s clients=%d group=%d duration=%v delay=%v-%v",
		*serverAddr, *numClients, *groupSize, *duration, *minDelay, *maxDelay)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats := &Stats{}
	stopStats := make(chan struct{})
	go reportLoop(log, stats, stopStats)

	codes := make(map[int]chan string)
	for g := 0; g*(*groupSize) < *numClients; g++ {
		codes[g] = make(chan string, *groupSize)
	}

	var wg sync.WaitGroup
	for i := 0; i < *numClients; i++ {
		group, host := groupOf(i, *groupSize)
		members := min(*groupSize, *numClients-group*(*groupSize))

		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			b, err := newBot(ctx, id, *serverAddr, stats, log)
			if err != nil {
				stats.recordConnectionError()
				log.Debugf("[bot %d] connect: %v", id, err)
				if host {
					close(codes[group])
				}
				return
			}
			defer b.close()

			if err := b.setup(host, members, codes[group]); err != nil {
				stats.recordSetupFailure()
				log.Debugf("[bot %d] setup: %v", id, err)
				return
			}
			if id%100 == 0 {
				log.Infof("[bot %d] in game", id)
			}
			b.run(ctx, *duration, *minDelay, *maxDelay)
		}(i)

		select {
		case <-time.After(staggerDelay):
		case <-ctx.Done():
		}
	}

	wg.Wait()
	close(stopStats)
	logFinal(log, stats, *duration)
}

// groupOf places bot i into a lobby. The first bot of every group hosts.
func groupOf(i, size int) (group int, host bool) {
	return i / size, i%size == 0
}

func reportLoop(log *zap.SugaredLogger, stats *Stats, stop <-chan struct{}) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-ticker.C:
			s := stats.snapshot()
			log.Infof("Stats: %d updates (%.1f/s), %d chats, avg rtt %.2fms, %d timeouts, %d conn errors",
				s.Updates, float64(s.Updates)/time.Since(start).Seconds(),
				s.Chats, s.AvgRTTMs, s.Timeouts, s.ConnErrors)
		case <-stop:
			return
		}
	}
}

func logFinal(log *zap.SugaredLogger, stats *Stats, duration time.Duration) {
	s := stats.snapshot()
	log.Infof("=== Final Results ===")
	log.Infof("Duration: %v", duration)
	log.Infof("Player updates sent: %d (%.1f/s)", s.Updates, float64(s.Updates)/duration.Seconds())
	log.Infof("Chat round trips: %d, average %.2fms", s.Chats, s.AvgRTTMs)
	log.Infof("Failures: %d send, %d timeouts, %d dropped inbound", s.SendFailures, s.Timeouts, s.Dropped)
	log.Infof("Connection errors: %d, setup failures: %d, disconnections: %d", s.ConnErrors, s.SetupFailures, s.Disconnections)
	if total := s.Chats + s.Timeouts; total > 0 {
		log.Infof("Chat success rate: %.1f%%", float64(s.Chats)/float64(total)*100)
	}
}
