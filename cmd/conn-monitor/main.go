// Connection Monitor - logs processes holding many connections to one endpoint
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/user/conn-monitor/internal/config"
	"github.com/user/conn-monitor/internal/core"
	"github.com/user/conn-monitor/internal/logger"
)

func main() {
	configPath := flag.String("config", config.GetConfigPath(), "path to config.yaml")
	once := flag.Bool("once", false, "run a single cycle and exit")
	debug := flag.Bool("debug", false, "log the per-connection detail view")
	report := flag.Duration("report", 0, "print recorded totals of this window (e.g. 24h) and exit")
	flag.Parse()

	if isService() {
		if err := runService(*configPath, *debug); err != nil {
			log.Fatalf("Service failed: %v", err)
		}
		return
	}

	if err := runForeground(*configPath, *debug, *once, *report); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runForeground runs the monitor in the console until Enter, SIGINT or SIGTERM.
func runForeground(configPath string, debug, once bool, report time.Duration) error {
	s, err := core.NewService(configPath, core.Options{Debug: debug, Echo: os.Stdout})
	if err != nil {
		return err
	}

	if report > 0 {
		defer s.Stop()
		return printHistory(s, report)
	}

	if once {
		s.RunOnce()
		return s.Stop()
	}

	if err := s.Start(); err != nil {
		s.Stop()
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("... Press [Enter] to stop the connection monitor")
	logger.SafeGo("stdinStop", func() {
		// EOF means no console is attached; keep running until a signal.
		if _, err := bufio.NewReader(os.Stdin).ReadString('\n'); err == nil {
			stop()
		}
	})

	<-ctx.Done()
	return s.Stop()
}

func printHistory(s *core.Service, window time.Duration) error {
	records, err := s.History(window)
	if err != nil {
		return err
	}
	for _, r := range records {
		fmt.Printf("%s %s %s:%d=%d\n", r.RecordedAt.Format("2006-01-02 15:04:05"), r.Protocol, r.Process, r.Port, r.Count)
	}
	return nil
}
