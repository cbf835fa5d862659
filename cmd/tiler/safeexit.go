package main

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

var SafeExitInst *SafeExit

func InitSafeExit() {
	SafeExitInst = new(SafeExit)
	go SafeExitInst.ListenSignal()
}

// SafeExit runs registered cleanups, in registration order, on a termination
// signal or at the end of a normal run.
type SafeExit struct {
	funcs []func()
	mu    sync.Mutex
	once  sync.Once
}

func (s *SafeExit) Register(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.funcs = append(s.funcs, f)
}

// Cleanup runs the registered funcs once.
func (s *SafeExit) Cleanup() {
	s.once.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		for _, f := range s.funcs {
			f()
		}
	})
}

func (s *SafeExit) ListenSignal() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	sig := <-sigs
	log.Warnf("got signal %s, stopping, please wait", sig)
	s.Cleanup()
	os.Exit(1)
}
