// Package logging contains the conventions for scratchsync's diagnostic
// stream. Every component narrates through logrus, and lines are tagged with
// a short status such as SYNC or SKIP so that they read well on a terminal.
package logging

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
)

// StatusKey is the log field holding a line's status tag.
const StatusKey = "status"

// Status tags used across the sync engine.
const (
	StatusSkip   = "SKIP"
	StatusSync   = "SYNC"
	StatusDryRun = "DRY-RUN"
	StatusLock   = "LOCK"
	StatusPush   = "PUSH"
	StatusDone   = "DONE"
	StatusFixup  = "FIXUP"
	StatusRsync  = "RSYNC"
	StatusConfig = "CONFIG"
	StatusDelete = "DELETE"
	StatusKeep   = "KEEP"
)

// Tag returns an entry that renders with the given status tag.
func Tag(logger log.FieldLogger, status string) *log.Entry {
	return logger.WithField(StatusKey, status)
}

// Formatter renders entries as `  [TAG] message`. The tag comes from the
// StatusKey field, or from the level for warnings and errors. Untagged info
// lines are printed as-is. Remaining fields are appended as key=value pairs.
type Formatter struct{}

// Format implements logrus.Formatter.
func (f *Formatter) Format(entry *log.Entry) ([]byte, error) {
	var b bytes.Buffer

	tag, _ := entry.Data[StatusKey].(string)
	if tag == "" {
		tag = levelTag(entry.Level)
	}
	if tag != "" {
		fmt.Fprintf(&b, "  [%s] ", tag)
	}
	b.WriteString(entry.Message)

	var keys []string
	for key := range entry.Data {
		if key != StatusKey {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, " %s=%v", key, entry.Data[key])
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

func levelTag(level log.Level) string {
	switch level {
	case log.WarnLevel:
		return "WARN"
	case log.ErrorLevel, log.FatalLevel, log.PanicLevel:
		return "ERROR"
	case log.DebugLevel, log.TraceLevel:
		return strings.ToUpper(level.String())
	}
	return ""
}
