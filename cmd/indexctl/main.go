// Command indexctl inspects and maintains the shard indexes of an indexer
// deployment.
//
//	indexctl [-config file] [-shard n] stats
//	indexctl [-config file] [-shard n] terms [-field f] [-prefix p] [-limit n]
//	indexctl [-config file] lookup field text
//	indexctl [-config file] doc id
//	indexctl [-config file] delete id
//	indexctl [-config file] [-shard n] optimize
//	indexctl [-config file] publish file.jsonl
//
// The read commands only take the commit lock while opening readers. The
// optimize command opens index writers; configure the file or redis commit
// lock backend when running it next to a live indexer.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer/commitlock"
	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/segindex/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/segindex/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/redis"
)

type cli struct {
	cfg    *config.Config
	shard  int
	out    io.Writer
	leases commitlock.LeaseClient
}

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	shardID := flag.Int("shard", -1, "restrict to one shard (default all)")
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "usage: indexctl [flags] stats|terms|lookup|doc|delete|optimize|publish [args]")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.SetupWriter(os.Stderr, cfg.Logging.Level, "text")

	c := &cli{cfg: cfg, shard: *shardID, out: os.Stdout}
	if cfg.CommitLock.Backend == "redis" {
		rdb, err := redis.NewClient(cfg.Redis)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to connect to redis: %v\n", err)
			os.Exit(1)
		}
		defer rdb.Close()
		c.leases = rdb
	}

	if err := c.run(flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "indexctl %s: %v\n", flag.Arg(0), err)
		os.Exit(1)
	}
}

func (c *cli) run(cmd string, args []string) error {
	switch cmd {
	case "stats":
		return c.stats()
	case "terms":
		return c.terms(args)
	case "lookup":
		if len(args) != 2 {
			return errors.New("usage: lookup field text")
		}
		return c.lookup(args[0], args[1])
	case "doc":
		if len(args) != 1 {
			return errors.New("usage: doc id")
		}
		return c.document(args[0])
	case "delete":
		if len(args) != 1 {
			return errors.New("usage: delete id")
		}
		return c.delete(args[0])
	case "optimize":
		return c.optimize()
	case "publish":
		if len(args) != 1 {
			return errors.New("usage: publish file.jsonl (- for stdin)")
		}
		return c.publish(args[0])
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (c *cli) shards() []int {
	if c.shard >= 0 {
		return []int{c.shard}
	}
	ids := make([]int, c.cfg.Index.NumShards)
	for i := range ids {
		ids[i] = i
	}
	return ids
}

func (c *cli) options(dir *store.FSDirectory) (index.Options, error) {
	lock, err := commitlock.FromConfig(c.cfg.CommitLock, dir.Path(), c.leases)
	if err != nil {
		return index.Options{}, err
	}
	opts := index.OptionsFromConfig(c.cfg.Index)
	opts.Lock = lock
	opts.Metrics = metrics.NewUnregistered()
	opts.Logger = logger.WithComponent("indexctl")
	return opts, nil
}

// withReader opens the committed index of shard id. Deletions made through
// the reader are committed when it is closed.
func (c *cli) withReader(id int, fn func(index.IndexReader) error) error {
	dir, err := store.NewFSDirectory(shard.ShardDir(c.cfg.Index.DataDir, id))
	if err != nil {
		return err
	}
	opts, err := c.options(dir)
	if err != nil {
		return err
	}
	r, err := index.OpenReader(dir, opts)
	if err != nil {
		return fmt.Errorf("shard %d: %w", id, err)
	}
	if err := fn(r); err != nil {
		r.Close()
		return fmt.Errorf("shard %d: %w", id, err)
	}
	return r.Close()
}

func (c *cli) stats() error {
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SHARD\tVERSION\tMAXDOC\tNUMDOCS\tDELETIONS\tFIELDS")
	for _, id := range c.shards() {
		err := c.withReader(id, func(r index.IndexReader) error {
			dir, err := store.NewFSDirectory(shard.ShardDir(c.cfg.Index.DataDir, id))
			if err != nil {
				return err
			}
			v, err := index.ReadVersion(dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%t\t%s\n",
				id, v, r.MaxDoc(), r.NumDocs(), r.HasDeletions(), strings.Join(r.FieldNames(true), ","))
			return nil
		})
		if err != nil {
			return err
		}
	}
	return tw.Flush()
}

func (c *cli) terms(args []string) error {
	fs := flag.NewFlagSet("terms", flag.ContinueOnError)
	field := fs.String("field", "body", "field to list")
	prefix := fs.String("prefix", "", "only terms starting with prefix")
	limit := fs.Int("limit", 100, "maximum terms per shard (0 for all)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	for _, id := range c.shards() {
		err := c.withReader(id, func(r index.IndexReader) error {
			e, err := r.TermsFrom(index.NewTerm(*field, *prefix))
			if err != nil {
				return err
			}
			defer e.Close()
			for n := 0; *limit == 0 || n < *limit; n++ {
				t := e.Term()
				if t.IsNull() || t.Field != *field || !strings.HasPrefix(t.Text, *prefix) {
					return nil
				}
				fmt.Fprintf(c.out, "%d\t%s\t%d\n", id, t.Text, e.DocFreq())
				ok, err := e.Next()
				if err != nil || !ok {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *cli) lookup(field, text string) error {
	t, ok := indexer.NormalizeTerm(field, text)
	if !ok {
		return fmt.Errorf("no word in %q", text)
	}
	for _, id := range c.shards() {
		err := c.withReader(id, func(r index.IndexReader) error {
			hits, err := indexer.LookupIn(r, t)
			if err != nil {
				return err
			}
			for _, h := range hits {
				fmt.Fprintf(c.out, "%d\t%s\tfreq=%d\tpositions=%v\n", id, h.ID, h.Freq, h.Positions)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *cli) document(docID string) error {
	id := shard.ShardFor(docID, c.cfg.Index.NumShards)
	return c.withReader(id, func(r index.IndexReader) error {
		td, err := r.TermDocs()
		if err != nil {
			return err
		}
		defer td.Close()
		if err := td.Seek(index.NewTerm(index.IDField, docID)); err != nil {
			return err
		}
		ok, err := td.Next()
		if err != nil {
			return err
		}
		if !ok {
			return indexer.ErrDocumentNotFound
		}
		doc, err := r.Document(td.Doc())
		if err != nil {
			return err
		}
		fields := make(map[string][]string)
		for _, f := range doc.Fields() {
			fields[f.Name] = append(fields[f.Name], f.Value())
		}
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"shard": id, "doc": td.Doc(), "fields": fields})
	})
}

func (c *cli) delete(docID string) error {
	id := shard.ShardFor(docID, c.cfg.Index.NumShards)
	return c.withReader(id, func(r index.IndexReader) error {
		n, err := r.DeleteTerm(index.NewTerm(index.IDField, docID))
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "shard %d: deleted %d document(s)\n", id, n)
		return nil
	})
}

// withEngine opens a full engine for shard id, writer included.
func (c *cli) withEngine(id int, fn func(*indexer.Engine) error) error {
	cfg := c.cfg.Index
	cfg.DataDir = shard.ShardDir(cfg.DataDir, id)
	cfg.MergeInterval = 0
	e, err := indexer.NewEngine(cfg, indexer.Deps{
		CommitLock: c.cfg.CommitLock,
		Leases:     c.leases,
		Metrics:    metrics.NewUnregistered(),
		Logger:     logger.WithComponent("indexctl"),
	})
	if err != nil {
		return fmt.Errorf("shard %d: %w", id, err)
	}
	if err := fn(e); err != nil {
		e.Close()
		return fmt.Errorf("shard %d: %w", id, err)
	}
	return e.Close()
}

func (c *cli) optimize() error {
	for _, id := range c.shards() {
		start := time.Now()
		err := c.withEngine(id, func(e *indexer.Engine) error {
			if err := e.Optimize(); err != nil {
				return err
			}
			s, err := e.Stats()
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "shard %d: %d docs in %d segment(s), version %d, %s\n",
				id, s.NumDocs, s.Segments, s.Version, time.Since(start).Round(time.Millisecond))
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *cli) publish(path string) error {
	var in io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	events, err := readEvents(in)
	if err != nil {
		return err
	}

	var pg *postgres.Client
	if c.cfg.Postgres.Host != "" {
		if pg, err = postgres.New(c.cfg.Postgres); err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.EnsureSchema(context.Background()); err != nil {
			return err
		}
	}
	producer := kafka.NewProducer(c.cfg.Kafka, c.cfg.Kafka.Topics.DocumentIngest)
	defer producer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := publisher.New(pg, producer).Ingest(ctx, events); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "published %d event(s) to %s\n", len(events), c.cfg.Kafka.Topics.DocumentIngest)
	return nil
}

// readEvents decodes one IngestEvent per non-empty line.
func readEvents(r io.Reader) ([]ingestion.IngestEvent, error) {
	var events []ingestion.IngestEvent
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var ev ingestion.IngestEvent
		if err := json.Unmarshal([]byte(text), &ev); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
