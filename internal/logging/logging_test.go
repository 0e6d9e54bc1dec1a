package logging

import (
	"path/filepath"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) { called = true })
	Logf("test message")
	if !called {
		t.Error("custom logger was not called")
	}

	SetLogger(nil)
	noOpCalled := false
	SetLogger(func(string, ...interface{}) { noOpCalled = true })
	SetLogger(nil)
	Logf("test")
	if noOpCalled {
		t.Error("no-op logger should not have triggered callback")
	}
}

func TestDebugfGating(t *testing.T) {
	defer SetDebug(false)

	var got string
	orig := Logf
	defer func() { Logf = orig }()
	SetLogger(func(format string, v ...interface{}) { got = format })

	SetDebug(false)
	Debugf("hidden")
	if got != "" {
		t.Error("Debugf should not log when debug disabled")
	}

	SetDebug(true)
	Debugf("visible")
	if got != "visible" {
		t.Errorf("Debugf should log when debug enabled, got %q", got)
	}
}

func TestUseRotatingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scanhead.log")
	orig := Logf
	defer func() { Logf = orig }()

	closer := UseRotatingFile(RotatingFileConfig{Filename: path, MaxSizeMB: 1})
	defer closer.Close()

	Logf("hello %s", "world")
}
