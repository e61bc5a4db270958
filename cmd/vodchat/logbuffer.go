package main

import (
	"sync"
)

// LogBuffer keeps the most recent log lines in memory for GET /logs
type LogBuffer struct {
	lines []string
	size  int
	mu    sync.Mutex
}

// NewLogBuffer creates a buffer holding at most size lines
func NewLogBuffer(size int) *LogBuffer {
	return &LogBuffer{lines: make([]string, 0, size), size: size}
}

func (lb *LogBuffer) Write(p []byte) (n int, err error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.lines = append(lb.lines, string(p))
	if len(lb.lines) > lb.size {
		lb.lines = lb.lines[len(lb.lines)-lb.size:]
	}
	return len(p), nil
}

// GetLogs returns a copy of the buffered lines, oldest first
func (lb *LogBuffer) GetLogs() []string {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	logs := make([]string, len(lb.lines))
	copy(logs, lb.lines)
	return logs
}
