package importer

import (
	"context"
	"iter"

	"github.com/poiesic/skimap/core"
)

// Source is a lazy stream of decoded features.
// featurefile.Reader implements Source.
type Source interface {
	Name() string
	// Features yields features in order. A yielded error wrapping
	// core.ErrInvalidFeature marks one malformed feature; any other error
	// ends the stream.
	Features(ctx context.Context) iter.Seq2[core.Feature, error]
}

// sliceSource serves features held in memory.
type sliceSource struct {
	name     string
	features []core.Feature
}

// NewSliceSource returns a Source over features.
func NewSliceSource(name string, features ...core.Feature) Source {
	return &sliceSource{name: name, features: features}
}

func (s *sliceSource) Name() string {
	return s.name
}

func (s *sliceSource) Features(ctx context.Context) iter.Seq2[core.Feature, error] {
	return func(yield func(core.Feature, error) bool) {
		for _, feature := range s.features {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if !yield(feature, nil) {
				return
			}
		}
	}
}
