//go:build windows

package main

import (
	"golang.org/x/sys/windows/svc"

	"github.com/user/conn-monitor/internal/core"
	"github.com/user/conn-monitor/internal/logger"
)

const serviceName = "ConnectionMonitor"

// isService reports whether the service control manager started us.
func isService() bool {
	ok, err := svc.IsWindowsService()
	return err == nil && ok
}

func runService(configPath string, debug bool) error {
	return svc.Run(serviceName, &serviceHandler{configPath: configPath, debug: debug})
}

type serviceHandler struct {
	configPath string
	debug      bool
}

// Execute implements svc.Handler.
func (h *serviceHandler) Execute(args []string, requests <-chan svc.ChangeRequest, changes chan<- svc.Status) (bool, uint32) {
	defer logger.Recover("serviceExecute")

	changes <- svc.Status{State: svc.StartPending}

	s, err := core.NewService(h.configPath, core.Options{Debug: h.debug, CaptureStderr: true})
	if err != nil {
		return true, 1
	}
	if err := s.Start(); err != nil {
		s.Stop()
		return true, 2
	}

	changes <- svc.Status{State: svc.Running, Accepts: svc.AcceptStop | svc.AcceptShutdown}

	for req := range requests {
		switch req.Cmd {
		case svc.Interrogate:
			changes <- req.CurrentStatus
		case svc.Stop, svc.Shutdown:
			changes <- svc.Status{State: svc.StopPending}
			s.Stop()
			return false, 0
		}
	}

	s.Stop()
	return false, 0
}
