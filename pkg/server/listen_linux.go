//go:build linux

package server

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

const overflowCheckInterval = 10 * time.Second

// logListenBacklog logs the address along with the kernel's listen backlog limit
func logListenBacklog(log *zap.Logger, addr string) {
	var somaxconn int
	if data, err := os.ReadFile("/proc/sys/net/core/somaxconn"); err == nil {
		fmt.Sscanf(string(data), "%d", &somaxconn)
	}

	log.Info("server listening", zap.String("addr", addr), zap.Int("somaxconn", somaxconn))
	if somaxconn > 0 && somaxconn < 1024 {
		log.Warn("listen backlog may be too low for connection bursts",
			zap.Int("somaxconn", somaxconn),
			zap.String("hint", "sysctl -w net.core.somaxconn=4096"))
	}
}

// monitorListenOverflows warns when the kernel drops connections because the
// accept queue is full. It returns when ctx ends.
func monitorListenOverflows(ctx context.Context, log *zap.Logger) error {
	ticker := time.NewTicker(overflowCheckInterval)
	defer ticker.Stop()

	last := listenOverflows()
	for {
		select {
		case <-ticker.C:
			current := listenOverflows()
			if current > last {
				log.Warn("connections rejected by listen backlog overflow",
					zap.Uint64("new", current-last),
					zap.Uint64("total", current))
			}
			last = current
		case <-ctx.Done():
			return nil
		}
	}
}

// listenOverflows reads the TcpExt ListenOverflows counter from /proc/net/netstat
func listenOverflows() uint64 {
	file, err := os.Open("/proc/net/netstat")
	if err != nil {
		return 0
	}
	defer file.Close()

	var headers, values []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "TcpExt:") {
			continue
		}
		fields := strings.Fields(line)[1:]
		if headers == nil {
			headers = fields
			continue
		}
		values = fields
		break
	}

	for i, header := range headers {
		if header == "ListenOverflows" && i < len(values) {
			var n uint64
			fmt.Sscanf(values[i], "%d", &n)
			return n
		}
	}
	return 0
}
