// Package commandqueue 基于 Badger 的持久化命令队列。
// 外部（控制面 / botctl）只追加命令，决策循环在会话之间取出执行并显式确认。
package commandqueue

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	pendingPrefix = "cmd/pending/"
	donePrefix    = "cmd/done/"
	seqKey        = "cmd/seq"
)

var (
	ErrNotOpened = errors.New("commandqueue: not opened")
	ErrNotFound  = errors.New("commandqueue: command not found")
)

// Command 队列中的一条命令
type Command struct {
	Seq        uint64            `json:"seq"`
	ID         string            `json:"id"`
	Name       string            `json:"command"`
	Params     map[string]string `json:"params,omitempty"`
	Executed   bool              `json:"executed"`
	CreatedAt  time.Time         `json:"created_at"`
	ExecutedAt *time.Time        `json:"executed_at,omitempty"`
	Result     string            `json:"result,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// Queue Badger 命令队列
type Queue struct {
	db  *badger.DB
	seq *badger.Sequence
}

// OpenOptions 打开参数
type OpenOptions struct {
	Path          string
	InMemory      bool
	EncryptionKey []byte // 32 bytes；为空则不加密
}

// Open 打开队列
func Open(opts OpenOptions) (*Queue, error) {
	if !opts.InMemory && strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("commandqueue: path is required")
	}
	path := opts.Path
	if opts.InMemory {
		path = ""
	}
	bopts := badger.DefaultOptions(path).
		WithLogger(nil).
		WithInMemory(opts.InMemory)
	if len(opts.EncryptionKey) > 0 {
		bopts = bopts.
			WithEncryptionKey(opts.EncryptionKey).
			WithIndexCacheSize(16 << 20)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, errors.Wrap(err, "open badger")
	}
	seq, err := db.GetSequence([]byte(seqKey), 64)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "badger sequence")
	}
	return &Queue{db: db, seq: seq}, nil
}

// Close 释放序列并关闭
func (q *Queue) Close() error {
	if q == nil || q.db == nil {
		return nil
	}
	if q.seq != nil {
		_ = q.seq.Release()
	}
	return q.db.Close()
}

func seqKeyBytes(prefix string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefix, seq))
}

// Enqueue 追加一条命令
func (q *Queue) Enqueue(name string, params map[string]string) (Command, error) {
	if q == nil || q.db == nil {
		return Command{}, ErrNotOpened
	}
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return Command{}, errors.New("commandqueue: command name is empty")
	}
	n, err := q.seq.Next()
	if err != nil {
		return Command{}, errors.Wrap(err, "next seq")
	}
	// badger 序列从 0 开始，用 n+1 保证 seq>0
	cmd := Command{
		Seq:       n + 1,
		ID:        uuid.NewString(),
		Name:      name,
		Params:    params,
		CreatedAt: time.Now(),
	}
	b, err := json.Marshal(cmd)
	if err != nil {
		return Command{}, err
	}
	err = q.db.Update(func(txn *badger.Txn) error {
		return txn.Set(seqKeyBytes(pendingPrefix, cmd.Seq), b)
	})
	if err != nil {
		return Command{}, errors.Wrap(err, "enqueue")
	}
	return cmd, nil
}

func (q *Queue) scan(prefix string, limit int, reverse bool) ([]Command, error) {
	if q == nil || q.db == nil {
		return nil, ErrNotOpened
	}
	var out []Command
	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = reverse
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		start := p
		if reverse {
			start = append(append([]byte{}, p...), 0xFF)
		}
		for it.Seek(start); it.ValidForPrefix(p); it.Next() {
			var c Command
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &c)
			}); err != nil {
				return err
			}
			out = append(out, c)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	return out, err
}

// Pending 按入队顺序返回未执行的命令
func (q *Queue) Pending(limit int) ([]Command, error) {
	return q.scan(pendingPrefix, limit, false)
}

// History 最近执行过的命令（新到旧）
func (q *Queue) History(limit int) ([]Command, error) {
	return q.scan(donePrefix, limit, true)
}

// Ack 标记命令已执行，并从待执行区移到已执行区（同一事务）
func (q *Queue) Ack(seq uint64, result string, execErr error) (Command, error) {
	if q == nil || q.db == nil {
		return Command{}, ErrNotOpened
	}
	var cmd Command
	err := q.db.Update(func(txn *badger.Txn) error {
		key := seqKeyBytes(pendingPrefix, seq)
		item, err := txn.Get(key)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &cmd) }); err != nil {
			return err
		}
		now := time.Now()
		cmd.Executed = true
		cmd.ExecutedAt = &now
		cmd.Result = result
		if execErr != nil {
			cmd.Error = execErr.Error()
		}
		b, err := json.Marshal(cmd)
		if err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		return txn.Set(seqKeyBytes(donePrefix, seq), b)
	})
	return cmd, err
}

// PendingLen 待执行数量
func (q *Queue) PendingLen() int {
	cmds, err := q.Pending(0)
	if err != nil {
		return 0
	}
	return len(cmds)
}

// ParseKey 接受 32 字节的 hex 或 base64，空串返回 nil
func ParseKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if b, err := hex.DecodeString(strings.TrimPrefix(raw, "0x")); err == nil {
		if len(b) != 32 {
			return nil, fmt.Errorf("decoded key length must be 32, got %d", len(b))
		}
		return b, nil
	}
	b, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, errors.New("key must be base64(32 bytes) or hex(32 bytes)")
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("decoded key length must be 32, got %d", len(b))
	}
	return b, nil
}
