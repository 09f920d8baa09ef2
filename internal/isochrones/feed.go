package isochrones

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// DefaultProfileField is the column consulted when filtering records by profile.
const DefaultProfileField = "profile"

// SourceRecord is one row of input data. Empty cells are not stored, so a
// missing key means the value is absent.
type SourceRecord map[string]string

// Get returns the value of field and whether it is present.
func (r SourceRecord) Get(field string) (string, bool) {
	v, ok := r[field]
	return v, ok
}

// ExhaustionPolicy decides what a feed does once every record has been drawn.
type ExhaustionPolicy string

const (
	// ExhaustQueue hands out each record once. The last draw may be short;
	// after that Next returns ErrFeedExhausted.
	ExhaustQueue ExhaustionPolicy = "queue"

	// ExhaustCircular wraps the cursor back to the first record, so every
	// draw returns exactly the requested number of records.
	ExhaustCircular ExhaustionPolicy = "circular"
)

// ParseExhaustionPolicy parses a policy name. The empty string selects ExhaustQueue.
func ParseExhaustionPolicy(s string) (ExhaustionPolicy, error) {
	switch ExhaustionPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", ExhaustQueue:
		return ExhaustQueue, nil
	case ExhaustCircular:
		return ExhaustCircular, nil
	default:
		return "", fmt.Errorf("unknown feed strategy %q (expected queue or circular)", s)
	}
}

// Batcher hands out successive batches of records.
type Batcher interface {
	Next(n int) (Batch, error)
}

// FeedOptions controls how a source file is loaded and drawn from.
type FeedOptions struct {
	// TargetProfile keeps only records whose profile field equals it.
	TargetProfile string

	// ProfileField names the profile column (default "profile").
	ProfileField string

	Policy ExhaustionPolicy
}

// Feed is an immutable, profile-filtered list of records with a cursor.
// Next is safe for concurrent use; concurrent callers get disjoint batches.
type Feed struct {
	records []SourceRecord
	policy  ExhaustionPolicy

	mu     sync.Mutex
	cursor int
}

// NewFeed builds a feed over records that have already been loaded.
func NewFeed(records []SourceRecord, policy ExhaustionPolicy) *Feed {
	if policy == "" {
		policy = ExhaustQueue
	}
	return &Feed{records: records, policy: policy}
}

// LoadFeed reads a CSV source file and filters it to the target profile.
//
// Any failure to open or parse the file is returned as a *LoadError.
func LoadFeed(path string, opts FeedOptions, logger *zap.Logger) (*Feed, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	records, err := readCSVRecords(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	profileField := opts.ProfileField
	if profileField == "" {
		profileField = DefaultProfileField
	}

	filtered := FilterByProfile(records, profileField, opts.TargetProfile)
	logger.Info("Processing coordinates for profile",
		zap.String("source_file", path),
		zap.Int("records", len(filtered)),
		zap.Int("total_records", len(records)),
		zap.String("profile", opts.TargetProfile),
	)

	return NewFeed(filtered, opts.Policy), nil
}

// FilterByProfile keeps the records whose profile field equals profile.
// When no record carries the field at all, every record is kept.
func FilterByProfile(records []SourceRecord, field, profile string) []SourceRecord {
	hasField := false
	for _, r := range records {
		if _, ok := r.Get(field); ok {
			hasField = true
			break
		}
	}
	if !hasField {
		return records
	}

	out := make([]SourceRecord, 0, len(records))
	for _, r := range records {
		if v, _ := r.Get(field); v == profile {
			out = append(out, r)
		}
	}
	return out
}

func readCSVRecords(path string) ([]SourceRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("missing header row")
	}
	if err != nil {
		return nil, err
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	var records []SourceRecord
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		rec := make(SourceRecord, len(header))
		for i, name := range header {
			if i >= len(row) {
				break
			}
			if v := strings.TrimSpace(row[i]); v != "" {
				rec[name] = v
			}
		}
		records = append(records, rec)
	}

	return records, nil
}

// Len returns the number of records in the feed.
func (f *Feed) Len() int {
	return len(f.records)
}

// Policy returns the feed's exhaustion policy.
func (f *Feed) Policy() ExhaustionPolicy {
	return f.policy
}

// Remaining returns how many records a queue feed has not handed out yet.
// Circular feeds never run out and report their full length.
func (f *Feed) Remaining() int {
	if f.policy == ExhaustCircular {
		return len(f.records)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records) - f.cursor
}

// Next returns the next n records and advances the cursor.
func (f *Feed) Next(n int) (Batch, error) {
	if n <= 0 {
		return Batch{}, ErrInvalidBatchSize
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.records) == 0 {
		return Batch{}, ErrFeedExhausted
	}

	switch f.policy {
	case ExhaustCircular:
		out := make([]SourceRecord, n)
		for i := range out {
			out[i] = f.records[f.cursor]
			f.cursor = (f.cursor + 1) % len(f.records)
		}
		return Batch{Records: out}, nil

	default:
		if f.cursor >= len(f.records) {
			return Batch{}, ErrFeedExhausted
		}
		end := min(f.cursor+n, len(f.records))
		out := make([]SourceRecord, end-f.cursor)
		copy(out, f.records[f.cursor:end])
		f.cursor = end
		return Batch{Records: out}, nil
	}
}

var _ Batcher = (*Feed)(nil)

// Batch is the set of records handed to one iteration.
type Batch struct {
	Records []SourceRecord
}

// Len returns the number of records in the batch.
func (b Batch) Len() int {
	return len(b.Records)
}

// Column returns the values of field across the batch, with nil for records
// where the value is absent. It returns nil when no record has the field.
func (b Batch) Column(field string) []any {
	present := false
	values := make([]any, len(b.Records))
	for i, r := range b.Records {
		if v, ok := r.Get(field); ok {
			values[i] = v
			present = true
		}
	}
	if !present {
		return nil
	}
	return values
}
