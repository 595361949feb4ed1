// Package command implements the text command parser and dispatcher:
// it tokenises a request line, validates arity, and routes the verb to
// the store manager, rendering the manager's result back into the exact
// line the wire protocol expects.
package command

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cuemby/kvstore/pkg/log"
	"github.com/cuemby/kvstore/pkg/manager"
)

// Session holds per-connection state the dispatcher needs across
// multiple request lines: which explicit transaction, if any, this
// connection currently has open. Each connection gets its own Session;
// it must not be shared across connections.
type Session struct {
	txnID uint64
	inTxn bool
}

// InTransaction reports whether this connection currently has an
// explicit transaction open.
func (s *Session) InTransaction() bool {
	return s.inTxn
}

// activeTxn returns the transaction id a mutating command should log
// against: sess's own open explicit transaction, or 0 to auto-commit.
func activeTxn(sess *Session) uint64 {
	if sess.inTxn {
		return sess.txnID
	}
	return 0
}

// Dispatcher parses and executes request lines against a store manager.
type Dispatcher struct {
	mgr *manager.Manager
}

// New returns a Dispatcher backed by mgr.
func New(mgr *manager.Manager) *Dispatcher {
	return &Dispatcher{mgr: mgr}
}

// Execute parses line and runs it against the store manager, returning
// the exact response body (without the connection handler's timestamp
// framing). sess carries this connection's transaction state across
// calls and may be mutated.
func (d *Dispatcher) Execute(sess *Session, line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "ERROR: empty command"
	}

	verb := strings.ToLower(fields[0])
	args := fields[1:]

	switch verb {
	case "set":
		return d.cmdSet(sess, args)
	case "get":
		return d.cmdGet(args)
	case "del":
		return d.cmdDel(sess, args)
	case "lpush":
		return d.cmdPush(sess, args, "lpush", d.mgr.LPush)
	case "rpush":
		return d.cmdPush(sess, args, "rpush", d.mgr.RPush)
	case "range":
		return d.cmdRange(args)
	case "len":
		return d.cmdLen(args)
	case "lpop":
		return d.cmdListPop(sess, args, "lpop", d.mgr.LPop)
	case "rpop":
		return d.cmdListPop(sess, args, "rpop", d.mgr.RPop)
	case "ldel":
		return d.cmdLDel(sess, args)
	case "hset":
		return d.cmdHSet(sess, args)
	case "hget":
		return d.cmdHGet(args)
	case "hdel":
		return d.cmdHDel(sess, args)
	case "sadd":
		return d.cmdSAdd(sess, args)
	case "smembers":
		return d.cmdSMembers(args)
	case "sismember":
		return d.cmdSIsMember(args)
	case "srem":
		return d.cmdSRem(sess, args)
	case "save":
		return d.cmdSave()
	case "bgsave":
		return d.cmdBgSave()
	case "flushdb":
		return d.cmdFlushDB()
	case "expire":
		return d.cmdExpire(args)
	case "ddl":
		return d.cmdDDL(args)
	case "begin", "multi":
		return d.cmdBegin(sess)
	case "commit", "exec":
		return d.cmdCommit(sess)
	case "rollback", "discard":
		return d.cmdRollback(sess)
	case "checkpoint":
		return d.cmdCheckpoint()
	case "compactwal":
		return d.cmdCompactWAL()
	case "transactions", "listtx":
		return d.cmdListTransactions(sess)
	case "ping":
		return "PONG"
	case "help":
		if len(args) == 0 {
			return helpText()
		}
		return helpForCommand(args[0])
	default:
		return fmt.Sprintf("ERROR: unknown command: %s", fields[0])
	}
}

func errString(err error) string {
	return fmt.Sprintf("ERROR: %s", err.Error())
}

func boolResponse(ok bool) string {
	if ok {
		return "1"
	}
	return "0"
}

func (d *Dispatcher) cmdSet(sess *Session, args []string) string {
	if len(args) < 2 {
		return "ERROR: usage: set key value [EX seconds]"
	}
	key := args[0]
	value, ttl, hasTTL, ok := parseSetValue(args[1:])
	if !ok {
		return "ERROR: usage: set key value [EX seconds]"
	}

	result, err := d.mgr.Set(activeTxn(sess), key, value)
	if err != nil {
		return errString(err)
	}
	if hasTTL {
		d.mgr.SetExpire(key, ttl)
	}
	return result
}

// parseSetValue mirrors the original parser's trailing-EX detection: an
// `EX seconds` suffix on a set with at least 3 value tokens after the
// key (value, EX, seconds) is peeled off as a TTL rather than treated as part of the value.
func parseSetValue(valueParts []string) (value string, ttl int64, hasTTL bool, ok bool) {
	if len(valueParts) >= 3 && strings.ToUpper(valueParts[len(valueParts)-2]) == "EX" {
		seconds, err := strconv.ParseInt(valueParts[len(valueParts)-1], 10, 64)
		if err == nil {
			return strings.Join(valueParts[:len(valueParts)-2], " "), seconds, true, true
		}
	}
	return strings.Join(valueParts, " "), 0, false, true
}

func (d *Dispatcher) cmdGet(args []string) string {
	if len(args) != 1 {
		return "ERROR: usage: get key"
	}
	value, ok, err := d.mgr.Get(args[0])
	if err != nil {
		return errString(err)
	}
	if !ok {
		return "(nil)"
	}
	return value
}

func (d *Dispatcher) cmdDel(sess *Session, args []string) string {
	if len(args) != 1 {
		return "ERROR: usage: del key"
	}
	ok, err := d.mgr.Delete(activeTxn(sess), args[0])
	if err != nil {
		return errString(err)
	}
	return boolResponse(ok)
}

func (d *Dispatcher) cmdPush(sess *Session, args []string, usage string, push func(uint64, string, string) (int, error)) string {
	if len(args) < 2 {
		return fmt.Sprintf("ERROR: usage: %s key value", usage)
	}
	n, err := push(activeTxn(sess), args[0], strings.Join(args[1:], " "))
	if err != nil {
		return errString(err)
	}
	return strconv.Itoa(n)
}

func (d *Dispatcher) cmdRange(args []string) string {
	if len(args) != 3 {
		return "ERROR: usage: range key start end"
	}
	start, err1 := strconv.Atoi(args[1])
	end, err2 := strconv.Atoi(args[2])
	if err1 != nil || err2 != nil {
		return "ERROR: start and end must be integers"
	}
	values, err := d.mgr.LRange(args[0], start, end)
	if err != nil {
		return errString(err)
	}
	if len(values) == 0 {
		return "(empty list)"
	}
	return strings.Join(values, "\n")
}

func (d *Dispatcher) cmdLen(args []string) string {
	if len(args) != 1 {
		return "ERROR: usage: len key"
	}
	n, err := d.mgr.LLen(args[0])
	if err != nil {
		return errString(err)
	}
	return strconv.Itoa(n)
}

func (d *Dispatcher) cmdListPop(sess *Session, args []string, usage string, pop func(uint64, string) (string, bool, error)) string {
	if len(args) != 1 {
		return fmt.Sprintf("ERROR: usage: %s key", usage)
	}
	value, ok, err := pop(activeTxn(sess), args[0])
	if err != nil {
		return errString(err)
	}
	if !ok {
		return "(nil)"
	}
	return value
}

func (d *Dispatcher) cmdLDel(sess *Session, args []string) string {
	if len(args) != 1 {
		return "ERROR: usage: ldel key"
	}
	ok, err := d.mgr.LDel(activeTxn(sess), args[0])
	if err != nil {
		return errString(err)
	}
	return boolResponse(ok)
}

func (d *Dispatcher) cmdHSet(sess *Session, args []string) string {
	if len(args) < 3 {
		return "ERROR: usage: hset key field value"
	}
	isNew, err := d.mgr.HSet(activeTxn(sess), args[0], args[1], strings.Join(args[2:], " "))
	if err != nil {
		return errString(err)
	}
	return boolResponse(isNew)
}

func (d *Dispatcher) cmdHGet(args []string) string {
	if len(args) != 2 {
		return "ERROR: usage: hget key field"
	}
	value, ok, err := d.mgr.HGet(args[0], args[1])
	if err != nil {
		return errString(err)
	}
	if !ok {
		return "(nil)"
	}
	return value
}

// cmdHDel dispatches on arity, matching the source's overload of one
// verb over two operations: two arguments deletes the whole hash, three
// deletes a single field.
func (d *Dispatcher) cmdHDel(sess *Session, args []string) string {
	switch len(args) {
	case 1:
		ok, err := d.mgr.HDelKey(activeTxn(sess), args[0])
		if err != nil {
			return errString(err)
		}
		return boolResponse(ok)
	case 2:
		ok, err := d.mgr.HDel(activeTxn(sess), args[0], args[1])
		if err != nil {
			return errString(err)
		}
		return boolResponse(ok)
	default:
		return "ERROR: usage: hdel key [field]"
	}
}

func (d *Dispatcher) cmdSAdd(sess *Session, args []string) string {
	if len(args) < 2 {
		return "ERROR: usage: sadd key value1 [value2 ...]"
	}
	n, err := d.mgr.SAdd(activeTxn(sess), args[0], args[1:])
	if err != nil {
		return errString(err)
	}
	return strconv.Itoa(n)
}

func (d *Dispatcher) cmdSMembers(args []string) string {
	if len(args) != 1 {
		return "ERROR: usage: smembers key"
	}
	members, err := d.mgr.SMembers(args[0])
	if err != nil {
		return errString(err)
	}
	if len(members) == 0 {
		return "(empty set)"
	}
	return strings.Join(members, "\n")
}

func (d *Dispatcher) cmdSIsMember(args []string) string {
	if len(args) != 2 {
		return "ERROR: usage: sismember key value"
	}
	ok, err := d.mgr.SIsMember(args[0], args[1])
	if err != nil {
		return errString(err)
	}
	return boolResponse(ok)
}

func (d *Dispatcher) cmdSRem(sess *Session, args []string) string {
	if len(args) != 2 {
		return "ERROR: usage: srem key value"
	}
	ok, err := d.mgr.SRem(activeTxn(sess), args[0], args[1])
	if err != nil {
		return errString(err)
	}
	return boolResponse(ok)
}

func (d *Dispatcher) cmdSave() string {
	if err := d.mgr.Save(); err != nil {
		return errString(err)
	}
	return "Saved"
}

// cmdBgSave kicks off a save on its own goroutine and returns
// immediately; a failure is logged here and never reaches the client,
// matching the fire-and-forget background-save contract.
func (d *Dispatcher) cmdBgSave() string {
	go func() {
		if err := d.mgr.Save(); err != nil {
			log.WithComponent("command").Warn().Err(err).Msg("background save failed")
		}
	}()
	return "Background save started"
}

func (d *Dispatcher) cmdFlushDB() string {
	if err := d.mgr.FlushDB(); err != nil {
		return errString(err)
	}
	return "OK"
}

func (d *Dispatcher) cmdExpire(args []string) string {
	if len(args) != 2 {
		return "ERROR: usage: expire key seconds"
	}
	seconds, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || seconds < 0 {
		return "ERROR: seconds must be a non-negative integer"
	}
	ok, err := d.mgr.SetExpire(args[0], seconds)
	if err != nil {
		return errString(err)
	}
	return boolResponse(ok)
}

func (d *Dispatcher) cmdDDL(args []string) string {
	if len(args) != 1 {
		return "ERROR: usage: ddl key"
	}
	ttl, err := d.mgr.TTL(args[0])
	if err != nil {
		return errString(err)
	}
	switch ttl {
	case -2:
		return "Key does not exist"
	case -1:
		return "No expiration"
	default:
		return fmt.Sprintf("TTL: %d seconds", ttl)
	}
}

func (d *Dispatcher) cmdBegin(sess *Session) string {
	if sess.inTxn {
		return "ERROR: already in a transaction"
	}
	id, err := d.mgr.BeginTxn()
	if err != nil {
		return errString(err)
	}
	sess.txnID = id
	sess.inTxn = true
	return fmt.Sprintf("transaction %d started", id)
}

func (d *Dispatcher) cmdCommit(sess *Session) string {
	if !sess.inTxn {
		return "ERROR: not in a transaction"
	}
	id := sess.txnID
	if err := d.mgr.CommitTxn(id); err != nil {
		return errString(err)
	}
	sess.inTxn = false
	return fmt.Sprintf("transaction %d committed", id)
}

func (d *Dispatcher) cmdRollback(sess *Session) string {
	if !sess.inTxn {
		return "ERROR: not in a transaction"
	}
	id := sess.txnID
	if err := d.mgr.RollbackTxn(id); err != nil {
		return errString(err)
	}
	sess.inTxn = false
	return fmt.Sprintf("transaction %d rolled back", id)
}

func (d *Dispatcher) cmdCheckpoint() string {
	if err := d.mgr.Checkpoint(); err != nil {
		return errString(err)
	}
	return "checkpoint created"
}

func (d *Dispatcher) cmdCompactWAL() string {
	if err := d.mgr.Compact(); err != nil {
		return errString(err)
	}
	return "wal compacted"
}

// cmdListTransactions lists every currently active explicit transaction,
// marking this connection's own transaction (if any) with a leading `*`
// so a client can tell its own open transaction apart from others'.
func (d *Dispatcher) cmdListTransactions(sess *Session) string {
	ids := d.mgr.ListPendingTxns()
	if len(ids) == 0 {
		return "no active transactions"
	}

	var b strings.Builder
	b.WriteString("active transactions:\n")
	for _, id := range ids {
		if sess.inTxn && sess.txnID == id {
			fmt.Fprintf(&b, "* %d - active\n", id)
		} else {
			fmt.Fprintf(&b, "  %d - active\n", id)
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}
