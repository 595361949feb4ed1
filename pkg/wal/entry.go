package wal

import (
	"fmt"
	"strconv"
	"strings"
)

// Command names the WAL entry kind (§3).
type Command string

const (
	CmdPut        Command = "Put"
	CmdDelete     Command = "Delete"
	CmdBegin      Command = "Begin"
	CmdCommit     Command = "Commit"
	CmdRollback   Command = "Rollback"
	CmdCheckpoint Command = "Checkpoint"
)

// Entry is one line of the write-ahead log. ID is the transaction id for
// Begin/Commit/Rollback and every op inside a transaction, or the
// checkpoint id for Checkpoint entries. OldValue carries the pre-image
// for undo; Metadata carries the semantic tag of the operation (e.g.
// "list:lpush").
type Entry struct {
	Command   Command
	Key       string
	Value     string
	ID        uint64
	Timestamp int64
	OldValue  string
	Metadata  string
}

// Serialize renders the entry in the pipe-delimited on-disk format:
// command|key|value|id|timestamp|old_value|metadata.
func (e Entry) Serialize() string {
	fields := []string{
		string(e.Command),
		escapeField(e.Key),
		escapeField(e.Value),
		strconv.FormatUint(e.ID, 10),
		strconv.FormatInt(e.Timestamp, 10),
		escapeField(e.OldValue),
		escapeField(e.Metadata),
	}
	return strings.Join(fields, "|")
}

// ParseEntry parses one WAL line. Trailing fields may be absent for
// back-compat with older 4-field entries (command|key|value|id); missing
// fields default to their zero value.
func ParseEntry(line string) (Entry, error) {
	parts := strings.Split(line, "|")
	if len(parts) < 4 {
		return Entry{}, fmt.Errorf("wal: entry has %d fields, need at least 4: %q", len(parts), line)
	}

	var e Entry
	e.Command = Command(parts[0])
	e.Key = unescapeField(parts[1])
	e.Value = unescapeField(parts[2])

	id, err := strconv.ParseUint(parts[3], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("wal: bad id field %q: %w", parts[3], err)
	}
	e.ID = id

	if len(parts) > 4 && parts[4] != "" {
		ts, err := strconv.ParseInt(parts[4], 10, 64)
		if err != nil {
			return Entry{}, fmt.Errorf("wal: bad timestamp field %q: %w", parts[4], err)
		}
		e.Timestamp = ts
	}
	if len(parts) > 5 {
		e.OldValue = unescapeField(parts[5])
	}
	if len(parts) > 6 {
		// Metadata may itself have contained '|' (JSON pre-images don't,
		// but be defensive): rejoin anything past field 6.
		e.Metadata = unescapeField(strings.Join(parts[6:], "|"))
	}

	return e, nil
}

// escapeField neutralises newlines so a single WAL entry always occupies
// exactly one line; '|' within a field is not expected to occur in keys
// or values produced by this module (JSON pre-images are not
// newline-containing either) but callers of escapeField don't need to
// know that.
func escapeField(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

func unescapeField(s string) string {
	s = strings.ReplaceAll(s, "\\n", "\n")
	s = strings.ReplaceAll(s, "\\\\", "\\")
	return s
}
