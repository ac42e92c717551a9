package index

import (
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer/commitlock"
	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/segindex/pkg/metrics"
)

const (
	DefaultMergeFactor    = 10
	DefaultMinMergeDocs   = 10
	DefaultMaxMergeDocs   = 1 << 30
	DefaultMaxFieldLength = 10000
)

// CommitInfo describes a segments file written by an IndexWriter.
type CommitInfo struct {
	Version  uint32
	Segments []string
	DocCount int
}

// Options configures readers, writers and mergers. The zero value is
// usable: missing collaborators are replaced by defaults.
type Options struct {
	// Lock is the commit lock of the index directory. Defaults to the
	// process-wide lock named after the directory.
	Lock       commitlock.Locker
	Cache      *SegmentsCache
	Analyzer   tokenizer.Tokenizer
	Similarity Similarity

	MergeFactor    int
	MinMergeDocs   int
	MaxMergeDocs   int
	MaxFieldLength int
	// MergeFrequency is the minimum time between two merge attempts of
	// MaybeMergeSegments. Zero checks on every add.
	MergeFrequency time.Duration

	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// OnCommit, when set, is called after every segments file the writer
	// commits, with the writer's lock released.
	OnCommit func(CommitInfo)
}

// OptionsFromConfig maps the index section of the service configuration.
func OptionsFromConfig(cfg config.IndexConfig) Options {
	return Options{
		MergeFactor:    cfg.MergeFactor,
		MinMergeDocs:   cfg.MinMergeDocs,
		MaxMergeDocs:   cfg.MaxMergeDocs,
		MaxFieldLength: cfg.MaxFieldLength,
		MergeFrequency: cfg.MergeFrequency,
	}
}

func (o Options) withDefaults(dir store.Directory) Options {
	if o.Lock == nil {
		o.Lock = commitlock.Named(dir.ID())
	}
	if o.Cache == nil {
		o.Cache = DefaultCache()
	}
	if o.Analyzer == nil {
		o.Analyzer = tokenizer.New()
	}
	if o.Similarity == nil {
		o.Similarity = DefaultSimilarity{}
	}
	if o.MergeFactor < 2 {
		o.MergeFactor = DefaultMergeFactor
	}
	if o.MinMergeDocs <= 0 {
		o.MinMergeDocs = DefaultMinMergeDocs
	}
	if o.MaxMergeDocs <= 0 {
		o.MaxMergeDocs = DefaultMaxMergeDocs
	}
	if o.MaxFieldLength <= 0 {
		o.MaxFieldLength = DefaultMaxFieldLength
	}
	if o.Logger == nil {
		o.Logger = logger.WithComponent("index")
	}
	return o
}
