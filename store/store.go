// Package store persists whole-graph snapshots in an embedded BadgerDB.
//
// A snapshot is the tree document produced by Graph.ToDict, encoded with
// codec.MsgPack, stored under "snapshot/<name>". A small metadata record
// under "meta/<name>" lets List run without decoding graphs.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/reoring/bimgraph"
	"github.com/reoring/bimgraph/codec"
	"github.com/reoring/bimgraph/internal/telemetry"
	"github.com/reoring/bimgraph/schema"
)

const (
	snapshotPrefix = "snapshot/"
	metaPrefix     = "meta/"
)

// ErrInvalidName is returned for empty snapshot names or names containing
// a slash.
var ErrInvalidName = errors.New("store: invalid snapshot name")

// Config holds configuration for a Store.
type Config struct {
	// Dir is the directory for BadgerDB files. Required unless InMemory.
	Dir string

	// InMemory keeps everything in RAM. Useful for testing.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// Logger receives store and BadgerDB diagnostics. If nil, BadgerDB's
	// internal logging is disabled and store messages go to slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a durable on-disk configuration rooted at dir.
func DefaultConfig(dir string) Config {
	return Config{Dir: dir, SyncWrites: true}
}

// InMemoryConfig returns configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// Info describes one stored snapshot.
type Info struct {
	Name     string    `msgpack:"name"`
	Schema   string    `msgpack:"schema"`
	Version  string    `msgpack:"version"`
	Entities int       `msgpack:"entities"`
	Bytes    int       `msgpack:"bytes"`
	SavedAt  time.Time `msgpack:"saved_at"`
}

// Store is a snapshot store. It is safe for concurrent use.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open opens (creating if needed) the store described by cfg. The caller
// must Close it.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Dir == "" {
		return nil, errors.New("store: dir is required for a persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
			return nil, fmt.Errorf("store: create directory %s: %w", cfg.Dir, err)
		}
		opts = badger.DefaultOptions(cfg.Dir)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	logger := cfg.Logger
	if logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: logger})
	} else {
		opts = opts.WithLogger(nil)
		logger = slog.Default()
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open badger: %w", err)
	}
	return &Store{db: db, logger: logger, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func checkName(name string) error {
	if name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("%w %q", ErrInvalidName, name)
	}
	return nil
}

func (s *Store) start(ctx context.Context, op, name string) (context.Context, trace.Span) {
	return telemetry.Tracer().Start(ctx, "store."+op,
		trace.WithAttributes(attribute.String("snapshot", name)),
	)
}

func (s *Store) finish(ctx context.Context, span trace.Span, op string, err error) {
	telemetry.RecordStoreOp(ctx, op, err == nil)
	telemetry.EndSpan(span, err)
}

// Save stores g under name, replacing any previous snapshot of that name.
func (s *Store) Save(ctx context.Context, name string, g *bimgraph.Graph) (info Info, err error) {
	ctx, span := s.start(ctx, "save", name)
	defer func() { s.finish(ctx, span, "save", err) }()

	if err := checkName(name); err != nil {
		return Info{}, err
	}
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	tree, err := g.ToDict()
	if err != nil {
		return Info{}, fmt.Errorf("store: save %s: %w", name, err)
	}
	data, err := codec.MsgPack.Marshal(tree)
	if err != nil {
		return Info{}, fmt.Errorf("store: save %s: %w", name, err)
	}
	def := g.Definition()
	info = Info{
		Name:     name,
		Schema:   def.Name(),
		Version:  def.Version(),
		Entities: g.Len(),
		Bytes:    len(data),
		SavedAt:  s.now().UTC(),
	}
	meta, err := msgpack.Marshal(&info)
	if err != nil {
		return Info{}, fmt.Errorf("store: save %s: %w", name, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(snapshotPrefix+name), data); err != nil {
			return err
		}
		return txn.Set([]byte(metaPrefix+name), meta)
	})
	if err != nil {
		return Info{}, fmt.Errorf("store: save %s: %w", name, err)
	}
	s.logger.Debug("snapshot saved",
		slog.String("name", name),
		slog.Int("entities", info.Entities),
		slog.Int("bytes", info.Bytes),
	)
	return info, nil
}

// Load rebuilds the snapshot stored under name over def. A missing snapshot
// yields a *bimgraph.NotFoundError; a snapshot written for another schema
// fails with bimgraph.ErrMalformedDocument.
func (s *Store) Load(ctx context.Context, name string, def *schema.Definition, opts ...bimgraph.LoadOpt) (g *bimgraph.Graph, err error) {
	ctx, span := s.start(ctx, "load", name)
	defer func() { s.finish(ctx, span, "load", err) }()

	if err := checkName(name); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data []byte
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(snapshotPrefix + name))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, &bimgraph.NotFoundError{Kind: "snapshot", Key: name}
	}
	if err != nil {
		return nil, fmt.Errorf("store: load %s: %w", name, err)
	}
	tree, err := codec.MsgPack.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("store: load %s: %w", name, err)
	}
	g, err = bimgraph.GraphFromDict(def, tree, opts...)
	if err != nil {
		return nil, fmt.Errorf("store: load %s: %w", name, err)
	}
	span.SetAttributes(attribute.Int("entities", g.Len()))
	return g, nil
}

// Stat returns the metadata of one snapshot.
func (s *Store) Stat(ctx context.Context, name string) (info Info, err error) {
	ctx, span := s.start(ctx, "stat", name)
	defer func() { s.finish(ctx, span, "stat", err) }()

	if err := checkName(name); err != nil {
		return Info{}, err
	}
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(metaPrefix + name))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error { return msgpack.Unmarshal(v, &info) })
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Info{}, &bimgraph.NotFoundError{Kind: "snapshot", Key: name}
	}
	if err != nil {
		return Info{}, fmt.Errorf("store: stat %s: %w", name, err)
	}
	return info, nil
}

// List returns the metadata of every snapshot, ordered by name.
func (s *Store) List(ctx context.Context) (out []Info, err error) {
	ctx, span := s.start(ctx, "list", "")
	defer func() { s.finish(ctx, span, "list", err) }()

	err = s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(metaPrefix), PrefetchValues: true, PrefetchSize: 16})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var info Info
			if err := it.Item().Value(func(v []byte) error { return msgpack.Unmarshal(v, &info) }); err != nil {
				return fmt.Errorf("%s: %w", it.Item().Key(), err)
			}
			out = append(out, info)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	return out, nil
}

// Delete removes the snapshot stored under name.
func (s *Store) Delete(ctx context.Context, name string) (err error) {
	ctx, span := s.start(ctx, "delete", name)
	defer func() { s.finish(ctx, span, "delete", err) }()

	if err := checkName(name); err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(metaPrefix + name)); err != nil {
			return err
		}
		if err := txn.Delete([]byte(snapshotPrefix + name)); err != nil {
			return err
		}
		return txn.Delete([]byte(metaPrefix + name))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return &bimgraph.NotFoundError{Kind: "snapshot", Key: name}
	}
	if err != nil {
		return fmt.Errorf("store: delete %s: %w", name, err)
	}
	s.logger.Debug("snapshot deleted", slog.String("name", name))
	return nil
}
