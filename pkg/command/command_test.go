package command

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/kvstore/pkg/config"
	"github.com/cuemby/kvstore/pkg/manager"
)

func testDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	cfg := config.Default()
	dir := t.TempDir()
	cfg.Persistence.DataFile = filepath.Join(dir, "snapshot.json")
	cfg.Memory.DiskBasePath = filepath.Join(dir, "cold")
	cfg.Memory.EnableMemoryOptimization = false

	mgr, err := manager.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })

	return New(mgr)
}

func TestSetGetRoundTrip(t *testing.T) {
	d := testDispatcher(t)
	sess := &Session{}

	assert.Equal(t, "OK", d.Execute(sess, "set mykey hello"))
	assert.Equal(t, "hello", d.Execute(sess, "get mykey"))
	assert.Equal(t, "(nil)", d.Execute(sess, "get missing"))
}

func TestSetWithExpiry(t *testing.T) {
	d := testDispatcher(t)
	sess := &Session{}

	assert.Equal(t, "OK", d.Execute(sess, "set mykey hello EX 100"))
	ddl := d.Execute(sess, "ddl mykey")
	assert.Regexp(t, `^TTL: \d+ seconds$`, ddl)
}

func TestSetValueWithSpaces(t *testing.T) {
	d := testDispatcher(t)
	sess := &Session{}

	assert.Equal(t, "OK", d.Execute(sess, "set greeting hello there world"))
	assert.Equal(t, "hello there world", d.Execute(sess, "get greeting"))
}

func TestDelReportsExistence(t *testing.T) {
	d := testDispatcher(t)
	sess := &Session{}

	assert.Equal(t, "0", d.Execute(sess, "del nope"))
	d.Execute(sess, "set k v")
	assert.Equal(t, "1", d.Execute(sess, "del k"))
	assert.Equal(t, "0", d.Execute(sess, "del k"))
}

func TestListCommands(t *testing.T) {
	d := testDispatcher(t)
	sess := &Session{}

	assert.Equal(t, "1", d.Execute(sess, "rpush mylist a"))
	assert.Equal(t, "2", d.Execute(sess, "rpush mylist b"))
	assert.Equal(t, "3", d.Execute(sess, "lpush mylist z"))
	assert.Equal(t, "z\na\nb", d.Execute(sess, "range mylist 0 -1"))
	assert.Equal(t, "3", d.Execute(sess, "len mylist"))
	assert.Equal(t, "z", d.Execute(sess, "lpop mylist"))
	assert.Equal(t, "b", d.Execute(sess, "rpop mylist"))
	assert.Equal(t, "1", d.Execute(sess, "ldel mylist"))
	assert.Equal(t, "(empty list)", d.Execute(sess, "range mylist 0 -1"))
}

func TestHashCommandsAndHDelArityDispatch(t *testing.T) {
	d := testDispatcher(t)
	sess := &Session{}

	assert.Equal(t, "1", d.Execute(sess, "hset h f1 v1"))
	assert.Equal(t, "0", d.Execute(sess, "hset h f1 v2"))
	assert.Equal(t, "v2", d.Execute(sess, "hget h f1"))
	assert.Equal(t, "(nil)", d.Execute(sess, "hget h nope"))

	d.Execute(sess, "hset h f2 v2")
	assert.Equal(t, "1", d.Execute(sess, "hdel h f1"))
	assert.Equal(t, "1", d.Execute(sess, "hdel h"))
	assert.Equal(t, "0", d.Execute(sess, "hdel h"))
}

func TestSetCommands(t *testing.T) {
	d := testDispatcher(t)
	sess := &Session{}

	assert.Equal(t, "2", d.Execute(sess, "sadd s a b"))
	assert.Equal(t, "0", d.Execute(sess, "sadd s a"))
	assert.Equal(t, "1", d.Execute(sess, "sismember s a"))
	assert.Equal(t, "0", d.Execute(sess, "sismember s z"))
	assert.Equal(t, "1", d.Execute(sess, "srem s a"))
	assert.Equal(t, "(empty set)", d.Execute(sess, "smembers nope"))
}

func TestPersistenceCommandsUseDistinctSuccessText(t *testing.T) {
	d := testDispatcher(t)
	sess := &Session{}

	assert.Equal(t, "Saved", d.Execute(sess, "save"))
	assert.Equal(t, "Background save started", d.Execute(sess, "bgsave"))
	assert.Equal(t, "OK", d.Execute(sess, "flushdb"))
}

func TestDDLStates(t *testing.T) {
	d := testDispatcher(t)
	sess := &Session{}

	assert.Equal(t, "Key does not exist", d.Execute(sess, "ddl nope"))
	d.Execute(sess, "set k v")
	assert.Equal(t, "No expiration", d.Execute(sess, "ddl k"))
	d.Execute(sess, "expire k 100")
	assert.Regexp(t, `^TTL: \d+ seconds$`, d.Execute(sess, "ddl k"))
}

func TestTransactionLifecycle(t *testing.T) {
	d := testDispatcher(t)
	sess := &Session{}

	begin := d.Execute(sess, "begin")
	assert.Regexp(t, `^transaction \d+ started$`, begin)
	assert.True(t, sess.InTransaction())

	assert.Equal(t, "ERROR: already in a transaction", d.Execute(sess, "begin"))

	d.Execute(sess, "set k v")
	commit := d.Execute(sess, "commit")
	assert.Regexp(t, `^transaction \d+ committed$`, commit)
	assert.False(t, sess.InTransaction())

	assert.Equal(t, "ERROR: not in a transaction", d.Execute(sess, "commit"))
	assert.Equal(t, "ERROR: not in a transaction", d.Execute(sess, "rollback"))
}

func TestTransactionRollbackUndoesWritesSinceBegin(t *testing.T) {
	d := testDispatcher(t)
	sess := &Session{}

	d.Execute(sess, "set k before")
	d.Execute(sess, "begin")
	d.Execute(sess, "set k after")
	rollback := d.Execute(sess, "rollback")
	assert.Regexp(t, `^transaction \d+ rolled back$`, rollback)

	assert.Equal(t, "before", d.Execute(sess, "get k"))
}

func TestTransactionRollbackDoesNotAffectOtherConnections(t *testing.T) {
	d := testDispatcher(t)
	sess1 := &Session{}
	sess2 := &Session{}

	d.Execute(sess1, "begin")
	d.Execute(sess1, "set k1 txn-value")

	// sess2 auto-commits its own write while sess1's transaction is
	// still open.
	assert.Equal(t, "OK", d.Execute(sess2, "set k2 other-session-value"))

	rollback := d.Execute(sess1, "rollback")
	assert.Regexp(t, `^transaction \d+ rolled back$`, rollback)

	assert.Equal(t, "(nil)", d.Execute(sess2, "get k1"))
	assert.Equal(t, "other-session-value", d.Execute(sess2, "get k2"))
}

func TestUnknownAndMalformedCommands(t *testing.T) {
	d := testDispatcher(t)
	sess := &Session{}

	assert.Equal(t, "ERROR: unknown command: frobnicate", d.Execute(sess, "frobnicate"))
	assert.Contains(t, d.Execute(sess, "set"), "ERROR")
	assert.Contains(t, d.Execute(sess, "range k notanumber 5"), "ERROR")
}

func TestPingAndHelp(t *testing.T) {
	d := testDispatcher(t)
	sess := &Session{}

	assert.Equal(t, "PONG", d.Execute(sess, "ping"))
	assert.Contains(t, d.Execute(sess, "help"), "Available commands")
	assert.Contains(t, d.Execute(sess, "help set"), "store a string")
}

func TestListTransactionsMarksCurrentTxn(t *testing.T) {
	d := testDispatcher(t)
	sess := &Session{}

	assert.Equal(t, "no active transactions", d.Execute(sess, "transactions"))

	d.Execute(sess, "begin")
	listing := d.Execute(sess, "listtx")
	assert.Contains(t, listing, "* ")
}
