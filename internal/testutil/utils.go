package testutil

import (
	"log"
	"os"
	"testing"
)

// TestLogger returns a logger whose lines carry the test name. Output
// goes to stdout rather than t.Log so goroutines that outlive the test
// can still log safely.
func TestLogger(t *testing.T) *log.Logger {
	return log.New(os.Stdout, "["+t.Name()+"] ", log.LstdFlags)
}
