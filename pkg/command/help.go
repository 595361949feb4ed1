package command

import "strings"

// helpText lists every command, grouped by the value kind it operates
// on, matching the grouping the `help` verb has always used.
func helpText() string {
	return `Available commands:

String commands:
  set key value [EX seconds] - store a string, optionally with a TTL
  get key - fetch the string at key
  del key - delete any key

List commands:
  lpush key value - push onto the left of the list
  rpush key value - push onto the right of the list
  range key start end - fetch an inclusive slice of the list
  len key - list length
  lpop key - pop and return the left element
  rpop key - pop and return the right element
  ldel key - delete the whole list

Hash commands:
  hset key field value - set a hash field
  hget key field - fetch a hash field
  hdel key field - delete a hash field
  hdel key - delete the whole hash

Set commands:
  sadd key value [value ...] - add members to a set
  smembers key - list set members
  sismember key value - test set membership
  srem key value - remove a set member

Persistence commands:
  save - write a snapshot synchronously
  bgsave - write a snapshot in the background
  flushdb - clear every key and write an empty snapshot

Expiry commands:
  expire key seconds - set a TTL
  ddl key - report a key's remaining TTL

Transaction commands:
  begin / multi - start an explicit transaction
  commit / exec - commit the current transaction
  rollback / discard - undo the current transaction
  checkpoint - take a WAL checkpoint on demand
  compactwal - compact the WAL
  transactions / listtx - list active transactions

Other commands:
  ping - test server connectivity
  help - show this text
  help command - show help for one command`
}

var commandHelp = map[string]string{
	"set":          "set key value [EX seconds] - store a string, optionally with a TTL",
	"get":          "get key - fetch the string at key",
	"del":          "del key - delete any key",
	"lpush":        "lpush key value - push onto the left of the list",
	"rpush":        "rpush key value - push onto the right of the list",
	"range":        "range key start end - fetch an inclusive slice of the list",
	"len":          "len key - list length",
	"lpop":         "lpop key - pop and return the left element",
	"rpop":         "rpop key - pop and return the right element",
	"ldel":         "ldel key - delete the whole list",
	"hset":         "hset key field value - set a hash field",
	"hget":         "hget key field - fetch a hash field",
	"hdel":         "hdel key field - delete a hash field\nhdel key - delete the whole hash",
	"sadd":         "sadd key value [value ...] - add members to a set",
	"smembers":     "smembers key - list set members",
	"sismember":    "sismember key value - test set membership",
	"srem":         "srem key value - remove a set member",
	"save":         "save - write a snapshot synchronously",
	"bgsave":       "bgsave - write a snapshot in the background",
	"flushdb":      "flushdb - clear every key and write an empty snapshot",
	"expire":       "expire key seconds - set a TTL",
	"ddl":          "ddl key - report a key's remaining TTL",
	"begin":        "begin / multi - start an explicit transaction",
	"multi":        "begin / multi - start an explicit transaction",
	"commit":       "commit / exec - commit the current transaction",
	"exec":         "commit / exec - commit the current transaction",
	"rollback":     "rollback / discard - undo the current transaction",
	"discard":      "rollback / discard - undo the current transaction",
	"checkpoint":   "checkpoint - take a WAL checkpoint on demand",
	"compactwal":   "compactwal - compact the WAL",
	"transactions": "transactions / listtx - list active transactions",
	"listtx":       "transactions / listtx - list active transactions",
	"ping":         "ping - test server connectivity",
	"help":         "help - show this text\nhelp command - show help for one command",
}

func helpForCommand(name string) string {
	if text, ok := commandHelp[strings.ToLower(name)]; ok {
		return text
	}
	return "Unknown command: " + name
}
