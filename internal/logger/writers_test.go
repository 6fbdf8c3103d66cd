package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestSafeFileWriterConcurrentWrites(t *testing.T) {
	tempDir := t.TempDir()
	testFile := filepath.Join(tempDir, "test_safe_writer.log")
	logger := zap.NewNop()

	writer, err := NewSafeFileWriter(testFile, 50*time.Millisecond, logger)
	if err != nil {
		t.Fatalf("Failed to create safe file writer: %v", err)
	}
	defer writer.Close()

	// Concurrent writes
	var wg sync.WaitGroup
	numGoroutines := 10
	linesPerGoroutine := 100

	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < linesPerGoroutine; j++ {
				line := fmt.Sprintf("Goroutine %d, Line %d\n", id, j)
				if _, err := writer.Write([]byte(line)); err != nil {
					t.Errorf("Failed to write line: %v", err)
				}
			}
		}(i)
	}

	// Concurrent flushes
	flushDone := make(chan struct{})
	go func() {
		defer close(flushDone)
		for i := 0; i < 20; i++ {
			if err := writer.Flush(); err != nil {
				// Don't use t.Errorf in goroutine after test might complete
				logger.Error("Failed to flush", zap.Error(err))
			}
			time.Sleep(25 * time.Millisecond)
		}
	}()

	// Concurrent stats reading
	statsDone := make(chan struct{})
	go func() {
		defer close(statsDone)
		for i := 0; i < 50; i++ {
			lines, flushes := writer.GetStats()
			_ = lines
			_ = flushes
			time.Sleep(10 * time.Millisecond)
		}
	}()

	wg.Wait()

	select {
	case <-flushDone:
	case <-time.After(2 * time.Second):
		t.Error("Flush goroutine timeout")
	}

	select {
	case <-statsDone:
	case <-time.After(2 * time.Second):
		t.Error("Stats goroutine timeout")
	}

	if err := writer.Flush(); err != nil {
		t.Errorf("Failed final flush: %v", err)
	}

	lines, flushes := writer.GetStats()
	t.Logf("Written lines: %d, Flush count: %d", lines, flushes)

	expectedLines := uint64(numGoroutines * linesPerGoroutine)
	if lines != expectedLines {
		t.Errorf("Expected %d lines, got %d", expectedLines, lines)
	}

	// File should exist and have content
	info, err := os.Stat(testFile)
	if err != nil {
		t.Errorf("Failed to stat file: %v", err)
	}
	if info.Size() == 0 {
		t.Error("File should not be empty")
	}
}

func TestSafeFileWriterWithSlowWrites(t *testing.T) {
	tempDir := t.TempDir()
	testFile := filepath.Join(tempDir, "test_slow_writes.log")
	logger := zap.NewNop()

	// Very short flush interval
	writer, err := NewSafeFileWriter(testFile, 10*time.Millisecond, logger)
	if err != nil {
		t.Fatalf("Failed to create safe file writer: %v", err)
	}
	defer writer.Close()

	// Write slowly to test periodic flush
	for i := 0; i < 10; i++ {
		line := fmt.Sprintf("Slow write %d\n", i)
		if _, err := writer.Write([]byte(line)); err != nil {
			t.Errorf("Failed to write line: %v", err)
		}
		time.Sleep(15 * time.Millisecond) // Longer than flush interval
	}

	lines, flushes := writer.GetStats()
	t.Logf("Lines: %d, Flushes: %d", lines, flushes)

	// Should have multiple flushes due to periodic flush
	if flushes < 2 {
		t.Error("Expected multiple periodic flushes")
	}
}

func TestLoggerNewWithFileSink(t *testing.T) {
	tempDir := t.TempDir()
	logFile := filepath.Join(tempDir, "bot.log")

	log, closer, err := New(true, logFile)
	if err != nil {
		t.Fatalf("Failed to build logger: %v", err)
	}

	log.Info("startup", zap.String("component", "test"))
	log.Debug("detail", zap.Int("n", 1))
	closer()

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if len(data) == 0 {
		t.Error("Log file should contain the JSON entries")
	}
}
