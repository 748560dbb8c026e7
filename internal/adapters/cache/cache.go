// Package cache is the hot-state store: the latest smoothed answer and the
// most recent raw packet per contest, plus a bounded audit stream. Entries
// carry a TTL so the store only ever holds the recent window.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	model "github.com/okian/huddle/internal/domain/model"
	"github.com/okian/huddle/pkg/logger"
	"github.com/okian/huddle/pkg/metrics"
)

// Key layout.
const (
	keyWinProbFmt  = "game:%s:winprob"
	keyLastShapFmt = "game:%s:last_shap"
	auditPrefix    = "stream:shap_stream:"
	auditSeqKey    = "seq:shap_stream"
)

const (
	defaultTTL   = 48 * time.Hour
	seqBandwidth = 64
)

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithPath sets the directory backing the store. Ignored when the store is
// in-memory.
func WithPath(path string) Option {
	return func(s *Store) {
		if path != "" {
			s.path = path
		}
	}
}

// WithInMemory keeps the store entirely in memory. Used by tests and the
// demo driver.
func WithInMemory() Option {
	return func(s *Store) {
		s.inMemory = true
	}
}

// WithTTL sets how long entries live before the store drops them.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// Store holds hot per-contest state in an embedded key-value database.
type Store struct {
	log      logger.Logger
	path     string
	inMemory bool
	ttl      time.Duration
	db       *badger.DB
	seq      *badger.Sequence
}

// Open creates the store, opening or creating the backing database.
func Open(opts ...Option) (*Store, error) {
	s := &Store{
		ttl: defaultTTL,
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	if s.log == nil {
		s.log = logger.Get().Named("cache")
	}
	if !s.inMemory && s.path == "" {
		return nil, fmt.Errorf("%w: no path and not in-memory", ErrOpenFailed)
	}

	var badgerOpts badger.Options
	if s.inMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		badgerOpts = badger.DefaultOptions(s.path)
	}
	// Badger's own logger is noisy; our logger covers the interesting paths.
	badgerOpts.Logger = nil

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpenFailed, err)
	}

	seq, err := db.GetSequence([]byte(auditSeqKey), seqBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: audit sequence: %v", ErrOpenFailed, err)
	}

	s.db = db
	s.seq = seq
	s.log.Info(context.Background(), "cache opened",
		logger.String("path", s.path),
		logger.Bool("in_memory", s.inMemory),
		logger.Duration("ttl", s.ttl))
	return s, nil
}

// SetWinProb stores the latest smoothed message for a contest.
func (s *Store) SetWinProb(ctx context.Context, msg model.WinProbMessage) error {
	return s.setJSON(fmt.Sprintf(keyWinProbFmt, msg.GID), msg)
}

// WinProb returns the latest smoothed message for a contest.
func (s *Store) WinProb(ctx context.Context, gid string) (model.WinProbMessage, error) {
	var msg model.WinProbMessage
	if err := s.getJSON(fmt.Sprintf(keyWinProbFmt, gid), &msg); err != nil {
		return model.WinProbMessage{}, err
	}
	return msg, nil
}

// SetLastShap stores the most recent raw packet for a contest.
func (s *Store) SetLastShap(ctx context.Context, packet model.RawPacket) error {
	return s.setJSON(fmt.Sprintf(keyLastShapFmt, packet.GID), packet)
}

// LastShap returns the most recent raw packet for a contest.
func (s *Store) LastShap(ctx context.Context, gid string) (model.RawPacket, error) {
	var packet model.RawPacket
	if err := s.getJSON(fmt.Sprintf(keyLastShapFmt, gid), &packet); err != nil {
		return model.RawPacket{}, err
	}
	return packet, nil
}

// AppendAudit appends a raw packet to the audit stream and returns its
// sequence number. Zero-padded keys keep the stream ordered under
// lexicographic iteration.
func (s *Store) AppendAudit(ctx context.Context, packet model.RawPacket) (uint64, error) {
	n, err := s.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("audit sequence: %w", err)
	}

	key := fmt.Sprintf("%s%020d", auditPrefix, n)
	if err := s.setJSON(key, packet); err != nil {
		return 0, err
	}
	metrics.RecordAuditAppend()
	return n, nil
}

// RecentAudit returns up to limit audit entries, newest first.
func (s *Store) RecentAudit(ctx context.Context, limit int) ([]model.RawPacket, error) {
	if limit <= 0 {
		return nil, nil
	}

	prefix := []byte(auditPrefix)
	out := make([]model.RawPacket, 0, limit)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts past the last possible stream key.
		seek := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix) && len(out) < limit; it.Next() {
			var packet model.RawPacket
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &packet)
			})
			if err != nil {
				return fmt.Errorf("decode audit entry: %w", err)
			}
			out = append(out, packet)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordCacheRead()
	return out, nil
}

// Close releases the audit sequence and closes the database.
func (s *Store) Close() error {
	if err := s.seq.Release(); err != nil {
		s.log.Warn(context.Background(), "audit sequence release failed", logger.Error(err))
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close cache: %w", err)
	}
	return nil
}

func (s *Store) setJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEncode, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), data).WithTTL(s.ttl)
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	metrics.RecordCacheWrite()
	return nil
}

func (s *Store) getJSON(key string, v any) error {
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get %s: %w", key, err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
	if errors.Is(err, ErrNotFound) {
		metrics.RecordCacheMiss()
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	metrics.RecordCacheRead()
	return nil
}
