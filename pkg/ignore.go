package hifi

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const defaultIgnoreFile = `# hifi ignore patterns
#
# Regular expressions matched against absolute paths. Directories are
# matched with a trailing slash, so "/\.git/" skips every .git directory
# without descending into it.
#
# Lines starting with # are comments. Empty lines are ignored.
#
# Examples:
# /\.git/               # version control metadata
# \.DS_Store$           # Finder metadata
# \.tmp$                # temporary files
# /node_modules/        # package caches

# The index's own directory
/\.config/hifi/
`

// IgnoreManager holds the regex patterns that exclude paths from a walk
type IgnoreManager struct {
	ignorePath string
	patterns   []*regexp.Regexp
	loaded     bool
}

// NewIgnoreManager creates a manager reading patterns from ignorePath.
// An empty ignorePath means no file, only patterns added with AddPattern.
func NewIgnoreManager(ignorePath string) *IgnoreManager {
	return &IgnoreManager{
		ignorePath: ignorePath,
		loaded:     ignorePath == "",
	}
}

// LoadIgnorePatterns reads the ignore file, creating it with defaults when absent
func (im *IgnoreManager) LoadIgnorePatterns() error {
	if im.loaded {
		return nil
	}

	if _, err := os.Stat(im.ignorePath); os.IsNotExist(err) {
		if err := im.CreateDefaultIgnoreFile(); err != nil {
			return fmt.Errorf("failed to create ignore file: %w", err)
		}
	}

	file, err := os.Open(im.ignorePath)
	if err != nil {
		return fmt.Errorf("failed to open ignore file: %w", err)
	}
	defer file.Close()

	var patterns []*regexp.Regexp
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// Trailing comments need at least one space before the hash
		if idx := strings.Index(line, " #"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}

		pattern, err := regexp.Compile(line)
		if err != nil {
			return &ConfigError{Key: im.ignorePath, Err: fmt.Errorf("invalid regex pattern at line %d: %s - %w", lineNum, line, err)}
		}
		patterns = append(patterns, pattern)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading ignore file: %w", err)
	}

	im.patterns = append(im.patterns, patterns...)
	im.loaded = true
	VerboseLog(2, "Loaded %d ignore patterns from %s", len(patterns), im.ignorePath)
	return nil
}

// ShouldIgnore reports whether absPath matches any pattern. Directories are
// matched with a trailing separator.
func (im *IgnoreManager) ShouldIgnore(absPath string, isDir bool) bool {
	if im == nil {
		return false
	}
	if !im.loaded {
		if err := im.LoadIgnorePatterns(); err != nil {
			Warnf("ignore patterns unavailable: %v", err)
			im.loaded = true
		}
	}

	candidate := filepath.ToSlash(absPath)
	if isDir && !strings.HasSuffix(candidate, "/") {
		candidate += "/"
	}
	for _, pattern := range im.patterns {
		if pattern.MatchString(candidate) {
			return true
		}
	}
	return false
}

// CreateDefaultIgnoreFile writes the commented default ignore file
func (im *IgnoreManager) CreateDefaultIgnoreFile() error {
	if err := os.MkdirAll(filepath.Dir(im.ignorePath), 0755); err != nil {
		return err
	}
	return os.WriteFile(im.ignorePath, []byte(defaultIgnoreFile), 0644)
}

// AddPattern adds a new ignore pattern
func (im *IgnoreManager) AddPattern(patternStr string) error {
	pattern, err := regexp.Compile(patternStr)
	if err != nil {
		return fmt.Errorf("invalid regex pattern: %s - %w", patternStr, err)
	}
	im.patterns = append(im.patterns, pattern)
	return nil
}

// Patterns returns the loaded patterns
func (im *IgnoreManager) Patterns() []*regexp.Regexp {
	if !im.loaded {
		im.LoadIgnorePatterns()
	}
	return im.patterns
}

// IgnoreFilePath returns the path of the ignore file
func (im *IgnoreManager) IgnoreFilePath() string {
	return im.ignorePath
}
