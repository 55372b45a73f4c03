package hifi

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetDebugFlags(t *testing.T) {
	defer SetDebugFlags("")

	SetDebugFlags("scan, Query:true,watch:off")
	if !IsDebugEnabled("scan") || !IsDebugEnabled("query") {
		t.Error("Expected scan and query to be enabled")
	}
	if IsDebugEnabled("watch") || IsDebugEnabled("hash") {
		t.Error("Expected watch and hash to be disabled")
	}

	SetDebugFlags("")
	if IsDebugEnabled("scan") {
		t.Error("Expected flags to be cleared")
	}
}

func TestInitLogging_File(t *testing.T) {
	logFile := filepath.Join(realTempDir(t), "logs", "hifi.log")
	if err := InitLogging(LogConfig{File: logFile, MaxSize: 1, MaxBackups: 1, MaxAge: 1}); err != nil {
		t.Fatalf("InitLogging failed: %v", err)
	}
	defer InitLogging(LogConfig{})

	oldLevel := GetVerboseLevel()
	SetVerboseLevel(1)
	defer SetVerboseLevel(oldLevel)

	VerboseLog(1, "indexed %d files", 3)
	VerboseLog(2, "too detailed")
	SyncLogging()

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"indexed 3 files"`) {
		t.Errorf("Expected JSON log entry, got:\n%s", data)
	}
	if strings.Contains(string(data), "too detailed") {
		t.Error("Expected level 2 message to be suppressed at level 1")
	}
}
