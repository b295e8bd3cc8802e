package yaml

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Quarantine moves a rejected input file into baseDir/quarantine and
// returns its new path. The reason is written next to it.
func Quarantine(baseDir, filePath, reason string) (string, error) {
	quarantineDir := filepath.Join(baseDir, "quarantine")
	if err := os.MkdirAll(quarantineDir, 0755); err != nil {
		return "", fmt.Errorf("create quarantine dir: %w", err)
	}

	baseName := filepath.Base(filePath)
	timestamp := time.Now().Format("20060102T150405")
	quarantineName := fmt.Sprintf("%s.%s.rejected", baseName, timestamp)
	quarantinePath := filepath.Join(quarantineDir, quarantineName)

	if err := os.Rename(filePath, quarantinePath); err != nil {
		return "", fmt.Errorf("move to quarantine: %w", err)
	}

	if reason != "" {
		if err := os.WriteFile(quarantinePath+".reason", []byte(reason+"\n"), 0644); err != nil {
			return quarantinePath, fmt.Errorf("write quarantine reason: %w", err)
		}
	}
	return quarantinePath, nil
}
