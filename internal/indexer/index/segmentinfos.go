package index

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer/commitlock"
	"github.com/Adithya-Monish-Kumar-K/segindex/internal/indexer/store"
	pkgerrors "github.com/Adithya-Monish-Kumar-K/segindex/pkg/errors"
)

const (
	// SegmentsFile lists the committed segments of an index directory.
	SegmentsFile    = "segments"
	segmentsNewFile = "segments.new"

	// IndexVersion tags the segments file format.
	IndexVersion uint32 = 0x53474958
)

var errLockNotHeld = errors.New("commit lock not held")

// SegmentInfo identifies one segment.
type SegmentInfo struct {
	Name     string
	DocCount int
	Dir      store.Directory
}

// SegmentInfos is the ordered segment list of an index together with the
// segment name counter and the commit generation.
type SegmentInfos struct {
	infos   []SegmentInfo
	Counter uint32
	Version uint32
}

func NewSegmentInfos() *SegmentInfos {
	return &SegmentInfos{}
}

// ReadSegmentInfos loads the segments file of dir. tok proves that the
// commit lock is held.
func ReadSegmentInfos(dir store.Directory, tok *commitlock.Token) (*SegmentInfos, error) {
	if !tok.Held() {
		return nil, fmt.Errorf("reading %s: %w", SegmentsFile, errLockNotHeld)
	}
	in, err := dir.OpenInput(SegmentsFile)
	if err != nil {
		if errors.Is(err, store.ErrNotExist) {
			return nil, pkgerrors.New(pkgerrors.ErrFileNotFound, "reading", SegmentsFile)
		}
		return nil, err
	}
	defer in.Close()

	format, err := store.ReadUint32(in)
	if err != nil {
		return nil, pkgerrors.Corruptf(SegmentsFile, "format: %v", err)
	}
	if format != IndexVersion {
		return nil, pkgerrors.New(pkgerrors.ErrIndexVersion, fmt.Sprintf("reading format %#x", format), SegmentsFile)
	}
	s := &SegmentInfos{}
	if s.Counter, err = store.ReadUint32(in); err != nil {
		return nil, pkgerrors.Corruptf(SegmentsFile, "counter: %v", err)
	}
	count, err := store.ReadUint32(in)
	if err != nil {
		return nil, pkgerrors.Corruptf(SegmentsFile, "segment count: %v", err)
	}
	// each entry needs at least 8 bytes
	if int64(count)*8 > in.Length() {
		return nil, pkgerrors.Corruptf(SegmentsFile, "segment count %d exceeds file length", count)
	}
	s.infos = make([]SegmentInfo, 0, count)
	for i := uint32(0); i < count; i++ {
		name, err := store.ReadString(in)
		if err != nil {
			return nil, pkgerrors.Corruptf(SegmentsFile, "segment %d name: %v", i, err)
		}
		docs, err := store.ReadUint32(in)
		if err != nil {
			return nil, pkgerrors.Corruptf(SegmentsFile, "segment %d doc count: %v", i, err)
		}
		s.infos = append(s.infos, SegmentInfo{Name: name, DocCount: int(docs), Dir: dir})
	}
	if s.Version, err = store.ReadUint32(in); err != nil {
		return nil, pkgerrors.Corruptf(SegmentsFile, "version: %v", err)
	}
	return s, nil
}

// Write increments Version and atomically replaces the segments file of
// dir, then prunes cache entries of segments no longer listed.
func (s *SegmentInfos) Write(dir store.Directory, tok *commitlock.Token, cache *SegmentsCache) error {
	if !tok.Held() {
		return fmt.Errorf("writing %s: %w", SegmentsFile, errLockNotHeld)
	}
	s.Version++
	if err := s.writeFile(dir); err != nil {
		s.Version--
		return fmt.Errorf("writing %s: %w", segmentsNewFile, err)
	}
	if err := dir.Rename(segmentsNewFile, SegmentsFile); err != nil {
		return fmt.Errorf("committing %s: %w", SegmentsFile, err)
	}
	if err := dir.Sync(); err != nil {
		return err
	}
	if cache != nil {
		cache.SetValidSegments(dir, s.Names())
	}
	return nil
}

func (s *SegmentInfos) writeFile(dir store.Directory) (err error) {
	out, err := dir.CreateOutput(segmentsNewFile)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()
	errs := []error{
		store.WriteUint32(out, IndexVersion),
		store.WriteUint32(out, s.Counter),
		store.WriteUint32(out, uint32(len(s.infos))),
	}
	for _, info := range s.infos {
		errs = append(errs,
			store.WriteString(out, info.Name),
			store.WriteUint32(out, uint32(info.DocCount)),
		)
	}
	errs = append(errs, store.WriteUint32(out, s.Version))
	if err := errors.Join(errs...); err != nil {
		return err
	}
	return out.Flush()
}

// ReadVersion returns the generation of the committed segments file
// without taking the commit lock.
func ReadVersion(dir store.Directory) (uint32, error) {
	in, err := dir.OpenInput(SegmentsFile)
	if err != nil {
		return 0, err
	}
	defer in.Close()
	if in.Length() < 16 {
		return 0, pkgerrors.Corruptf(SegmentsFile, "file too short (%d bytes)", in.Length())
	}
	format, err := store.ReadUint32(in)
	if err != nil {
		return 0, pkgerrors.Corruptf(SegmentsFile, "format: %v", err)
	}
	if format != IndexVersion {
		return 0, pkgerrors.New(pkgerrors.ErrIndexVersion, fmt.Sprintf("reading format %#x", format), SegmentsFile)
	}
	if err := in.Seek(in.Length() - 4); err != nil {
		return 0, err
	}
	v, err := store.ReadUint32(in)
	if err != nil {
		return 0, pkgerrors.Corruptf(SegmentsFile, "version: %v", err)
	}
	return v, nil
}

func (s *SegmentInfos) Add(info SegmentInfo) { s.infos = append(s.infos, info) }

func (s *SegmentInfos) Info(i int) SegmentInfo { return s.infos[i] }

func (s *SegmentInfos) Len() int { return len(s.infos) }

// Truncate drops the segments from index n on.
func (s *SegmentInfos) Truncate(n int) { s.infos = s.infos[:n] }

// NewSegmentName returns the next unused segment name.
func (s *SegmentInfos) NewSegmentName() string {
	name := "_" + strconv.FormatUint(uint64(s.Counter), 36)
	s.Counter++
	return name
}

func (s *SegmentInfos) TotalDocCount() int {
	total := 0
	for _, info := range s.infos {
		total += info.DocCount
	}
	return total
}

func (s *SegmentInfos) Names() []string {
	names := make([]string, len(s.infos))
	for i, info := range s.infos {
		names[i] = info.Name
	}
	return names
}

// Segments returns a copy of the segment list.
func (s *SegmentInfos) Segments() []SegmentInfo {
	return append([]SegmentInfo(nil), s.infos...)
}
