package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestInitWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "kernelbind.log")
	if err := Init("debug", path, false); err != nil {
		t.Fatalf("init: %v", err)
	}
	if Get().GetLevel() != logrus.DebugLevel {
		t.Fatalf("level = %v, want debug", Get().GetLevel())
	}

	Component("bind").Debug("allocated buffer")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "component=bind") {
		t.Fatalf("log line missing component field: %q", data)
	}
}

func TestInitBadLevelFallsBackToInfo(t *testing.T) {
	if err := Init("chatty", "", false); err != nil {
		t.Fatalf("init: %v", err)
	}
	if Get().GetLevel() != logrus.InfoLevel {
		t.Fatalf("level = %v, want info", Get().GetLevel())
	}
}
