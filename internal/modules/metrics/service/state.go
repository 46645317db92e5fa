package service

import (
	"sync/atomic"
	"time"
)

// State — агрегированное здоровье процесса для админских ручек.
type State struct {
	ready     atomic.Bool
	startedAt time.Time

	bridgeConnected atomic.Bool
	lastTickUnix    atomic.Int64 // unix seconds
}

func NewState() *State {
	s := &State{startedAt: time.Now()}
	s.ready.Store(false)
	return s
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }
func (s *State) Ready() bool     { return s.ready.Load() }

func (s *State) SetBridgeConnected(v bool) { s.bridgeConnected.Store(v) }
func (s *State) BridgeConnected() bool     { return s.bridgeConnected.Load() }

func (s *State) TouchTick(t time.Time) { s.lastTickUnix.Store(t.Unix()) }
func (s *State) LastTick() time.Time {
	u := s.lastTickUnix.Load()
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0)
}

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }
