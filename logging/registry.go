package logging

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// LoggerPatternConfig is an instance of a level specification for a given logger.
type LoggerPatternConfig struct {
	Pattern string `json:"pattern"`
	Level   string `json:"level"`
}

const (
	// e.g. "foo".
	validLoggerSectionName = `[a-zA-Z0-9]+([_-]*[a-zA-Z0-9]+)*`
	// e.g. "foo" or "*".
	validLoggerSectionNameWithWildcard = `(` + validLoggerSectionName + `|\*)`
	// e.g. "foo.*.foo".
	validLoggerSectionsWithWildcard = validLoggerSectionNameWithWildcard + `(\.` + validLoggerSectionNameWithWildcard + `)*`
	// Restricts above regex to be the entire pattern.
	validLoggerName = `^` + validLoggerSectionsWithWildcard + `$`
)

var loggerPatternRegexp = regexp.MustCompile(validLoggerName)

// ValidatePattern reports whether the pattern is a dotted logger name, optionally with `*`
// wildcard sections.
func ValidatePattern(pattern string) bool {
	return loggerPatternRegexp.MatchString(pattern)
}

func buildRegexFromPattern(pattern string) string {
	var matcher strings.Builder
	matcher.WriteRune('^')
	for _, ch := range pattern {
		switch ch {
		case '*':
			matcher.WriteString(`.*`)
		case '.':
			matcher.WriteString(`\.`)
		default:
			matcher.WriteRune(ch)
		}
	}
	matcher.WriteRune('$')
	return matcher.String()
}

// Registry tracks named component loggers so their levels can be set from configuration.
type Registry struct {
	mu        sync.RWMutex
	loggers   map[string]Logger
	logConfig []LoggerPatternConfig
}

// NewRegistry returns an empty logger registry.
func NewRegistry() *Registry {
	return &Registry{
		loggers: make(map[string]Logger),
	}
}

// Register adds the logger under its own name and applies any matching pattern level.
func (lr *Registry) Register(logger Logger) Logger {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	lr.loggers[logger.Name()] = logger
	lr.applyLocked(logger.Name(), logger)
	return logger
}

// LoggerNamed returns the logger registered under name.
func (lr *Registry) LoggerNamed(name string) (logger Logger, ok bool) {
	lr.mu.RLock()
	defer lr.mu.RUnlock()
	logger, ok = lr.loggers[name]
	return
}

// Names returns the sorted names of all registered loggers.
func (lr *Registry) Names() []string {
	lr.mu.RLock()
	defer lr.mu.RUnlock()
	names := make([]string, 0, len(lr.loggers))
	for name := range lr.loggers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UpdateConfig validates the pattern configs and re-applies them to every registered logger.
// Later patterns take precedence over earlier ones.
func (lr *Registry) UpdateConfig(logConfig []LoggerPatternConfig) error {
	for _, lpc := range logConfig {
		if !ValidatePattern(lpc.Pattern) {
			return errors.Errorf("failed to validate a pattern: %q", lpc.Pattern)
		}
		if _, err := LevelFromString(lpc.Level); err != nil {
			return err
		}
	}

	lr.mu.Lock()
	defer lr.mu.Unlock()
	lr.logConfig = logConfig
	for name, logger := range lr.loggers {
		lr.applyLocked(name, logger)
	}
	return nil
}

func (lr *Registry) applyLocked(name string, logger Logger) {
	for _, lpc := range lr.logConfig {
		r, err := regexp.Compile(buildRegexFromPattern(lpc.Pattern))
		if err != nil || !r.MatchString(name) {
			continue
		}
		level, err := LevelFromString(lpc.Level)
		if err != nil {
			continue
		}
		logger.SetLevel(level)
	}
}
