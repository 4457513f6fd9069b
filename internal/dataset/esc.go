package dataset

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/born-ml/born/tensor"
)

// Categories selects an ESC task by its number of classes.
type Categories int

// ESC task variants.
const (
	ESC2Categories  Categories = 2
	ESC10Categories Categories = 10
	ESC50Categories Categories = 50
)

// String returns the conventional task name.
func (c Categories) String() string {
	return fmt.Sprintf("ESC-%d", int(c))
}

// Valid reports whether c names a known task.
func (c Categories) Valid() bool {
	switch c {
	case ESC2Categories, ESC10Categories, ESC50Categories:
		return true
	}
	return false
}

// Downloader fetches a dataset into root.
type Downloader interface {
	Download(ctx context.Context, root string) error
}

// Source is the on-disk location of an ESC dataset and how to obtain it.
type Source struct {
	Root       string     // Directory holding meta/ and audio/
	Download   bool       // Fetch the dataset when Root does not exist
	Downloader Downloader // Optional; required when Download is set
	SampleRate int        // Defaults to ExpectedSampleRate
	NumSamples int        // Defaults to DefaultNumSamples
}

func (s *Source) prepare(ctx context.Context) error {
	if s.SampleRate == 0 {
		s.SampleRate = ExpectedSampleRate
	}
	if s.NumSamples == 0 {
		s.NumSamples = DefaultNumSamples
	}
	if !s.Download {
		return nil
	}
	if _, err := os.Stat(s.Root); err == nil {
		return nil
	}
	if s.Downloader == nil {
		return fmt.Errorf("%w: %s", ErrNoDownloader, s.Root)
	}
	if err := os.MkdirAll(s.Root, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", s.Root, err)
	}
	return s.Downloader.Download(ctx, s.Root)
}

// esc holds what the ESC variants share: annotation rows, the audio
// directory, and the label of every row.
type esc struct {
	source Source
	rows   []Annotation
	labels []int32
}

func (d *esc) Len() int {
	return len(d.rows)
}

func (d *esc) Get(index int) (Sample, error) {
	if index < 0 || index >= len(d.rows) {
		return Sample{}, indexError(index, len(d.rows))
	}
	path := filepath.Join(d.source.Root, "audio", d.rows[index].Filename)
	signal, err := ReadWAV(path, d.source.SampleRate, d.source.NumSamples)
	if err != nil {
		return Sample{}, err
	}
	return Sample{
		Signal: signal,
		Shape:  tensor.Shape{1, d.source.NumSamples},
		Label:  d.labels[index],
	}, nil
}

func (d *esc) Labels() []int32 {
	return distinct(d.labels)
}

// Annotations returns the rows backing the dataset, in index order.
func (d *esc) Annotations() []Annotation {
	return append([]Annotation(nil), d.rows...)
}

// ESC50Options configures an ESC-50 or ESC-10 dataset.
type ESC50Options struct {
	Source
	Categories Categories // ESC50Categories (default) or ESC10Categories
	MaxSamples int        // Keep at most this many rows after shuffling; 0 keeps all
	Rand       *rand.Rand // Drives the row shuffle when MaxSamples > 0
}

// ESC50 is the ESC-50 dataset, or its ESC-10 subset.
//
// Annotations come from <root>/meta/esc50.csv and audio from <root>/audio.
// For ESC-10 only rows flagged esc10 are kept and their targets are mapped
// onto 0..9 in ascending order of the original target.
type ESC50 struct {
	esc
	categories Categories
}

// NewESC50 loads the ESC-50 annotations.
func NewESC50(ctx context.Context, opts ESC50Options) (*ESC50, error) {
	if opts.Categories == 0 {
		opts.Categories = ESC50Categories
	}
	if opts.Categories != ESC50Categories && opts.Categories != ESC10Categories {
		return nil, fmt.Errorf("ESC50 dataset does not serve %v", opts.Categories)
	}
	if err := opts.Source.prepare(ctx); err != nil {
		return nil, err
	}

	rows, err := ReadAnnotations(filepath.Join(opts.Root, "meta", "esc50.csv"))
	if err != nil {
		return nil, err
	}

	if opts.MaxSamples > 0 {
		rng := opts.Rand
		if rng == nil {
			rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		}
		rng.Shuffle(len(rows), func(i, j int) {
			rows[i], rows[j] = rows[j], rows[i]
		})
		if len(rows) > opts.MaxSamples {
			rows = rows[:opts.MaxSamples]
		}
	}

	if opts.Categories == ESC10Categories {
		kept := rows[:0]
		for _, row := range rows {
			if row.ESC10 {
				kept = append(kept, row)
			}
		}
		rows = kept
	}

	labels := make([]int32, len(rows))
	for i, row := range rows {
		labels[i] = row.Target
	}
	if opts.Categories == ESC10Categories {
		labels = remap(labels)
	}

	return &ESC50{
		esc:        esc{source: opts.Source, rows: rows, labels: labels},
		categories: opts.Categories,
	}, nil
}

// Categories returns the task variant.
func (d *ESC50) Categories() Categories {
	return d.categories
}

// String describes the dataset.
func (d *ESC50) String() string {
	return fmt.Sprintf("%v dataset at %s (%d samples)", d.categories, d.source.Root, len(d.rows))
}

// ESC2Options configures the binary ESC-2 dataset.
type ESC2Options struct {
	Source
}

// ESC2 is the binary ESC task described by <root>/meta/esc2.csv
// (columns filename,target).
type ESC2 struct {
	esc
}

// NewESC2 loads the ESC-2 annotations.
func NewESC2(ctx context.Context, opts ESC2Options) (*ESC2, error) {
	if err := opts.Source.prepare(ctx); err != nil {
		return nil, err
	}
	rows, err := ReadAnnotations(filepath.Join(opts.Root, "meta", "esc2.csv"))
	if err != nil {
		return nil, err
	}
	labels := make([]int32, len(rows))
	for i, row := range rows {
		labels[i] = row.Target
	}
	return &ESC2{esc: esc{source: opts.Source, rows: rows, labels: labels}}, nil
}

// Categories returns ESC2Categories.
func (d *ESC2) Categories() Categories {
	return ESC2Categories
}

// String describes the dataset.
func (d *ESC2) String() string {
	return fmt.Sprintf("ESC-2 dataset at %s (%d samples)", d.source.Root, len(d.rows))
}

// remap maps labels onto 0..k-1 preserving their order.
func remap(labels []int32) []int32 {
	ids := make(map[int32]int32)
	for i, label := range distinct(labels) {
		ids[label] = int32(i)
	}
	out := make([]int32, len(labels))
	for i, label := range labels {
		out[i] = ids[label]
	}
	return out
}
