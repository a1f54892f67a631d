package common

import (
	"sync"
	"time"
)

// State tracks the progress of a single transfer.
// all methods are safe for concurrent use.
type State struct {
	mutex                     sync.Mutex
	startTime                 time.Time
	firstByteTime             time.Time
	establishmentTime         time.Time
	completionTime            time.Time
	totalReceivedBytes        uint64
	totalReceivedPackets      uint64
	lastReportTime            time.Time
	lastReportReceivedBytes   uint64
	lastReportReceivedPackets uint64
}

func (s *State) AddReceivedBytes(receivedBytes uint64) {
	s.mutex.Lock()
	s.totalReceivedBytes += receivedBytes
	if s.firstByteTime.IsZero() && s.totalReceivedBytes != 0 {
		s.firstByteTime = time.Now()
	}
	s.mutex.Unlock()
}

func (s *State) AddReceivedPackets(receivedPackets uint64) {
	s.mutex.Lock()
	s.totalReceivedPackets += receivedPackets
	s.mutex.Unlock()
}

func (s *State) GetAndResetReport() (receivedBytes uint64, receivedPackets uint64, delta time.Duration) {
	now := time.Now()
	s.mutex.Lock()
	receivedBytes = s.totalReceivedBytes - s.lastReportReceivedBytes
	receivedPackets = s.totalReceivedPackets - s.lastReportReceivedPackets
	delta = now.Sub(MaxTime([]time.Time{s.lastReportTime, s.firstByteTime, s.startTime}))
	s.lastReportTime = now
	s.lastReportReceivedBytes = s.totalReceivedBytes
	s.lastReportReceivedPackets = s.totalReceivedPackets
	s.mutex.Unlock()
	return
}

func (s *State) Total() (receivedBytes uint64, receivedPackets uint64) {
	s.mutex.Lock()
	receivedBytes = s.totalReceivedBytes
	receivedPackets = s.totalReceivedPackets
	s.mutex.Unlock()
	return
}

func (s *State) StartTime() time.Time {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.startTime
}

func (s *State) SetStartTime() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if !s.startTime.IsZero() {
		panic("already set")
	}
	s.startTime = time.Now()
}

// FirstByteTime returns false if no byte was received yet.
func (s *State) FirstByteTime() (time.Time, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.firstByteTime, !s.firstByteTime.IsZero()
}

func (s *State) SetEstablishmentTime() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if !s.establishmentTime.IsZero() {
		panic("already set")
	}
	s.establishmentTime = time.Now()
}

func (s *State) EstablishmentTime() time.Time {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.establishmentTime
}

func (s *State) SetCompletionTime() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.completionTime.IsZero() {
		s.completionTime = time.Now()
	}
}

func (s *State) CompletionTime() time.Time {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.completionTime
}
