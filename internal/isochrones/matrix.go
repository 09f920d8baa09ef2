package isochrones

import (
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// MatrixConfig holds the dimensions a benchmark run is expanded over.
type MatrixConfig struct {
	SourceFiles     []string
	BatchSizes      []int
	Unit            TestUnit
	Mode            ExecutionMode
	ConcurrentUsers int
	Ranges          []float64
}

// ScenarioDescriptor identifies one cell of the test matrix.
type ScenarioDescriptor struct {
	Name       string
	Group      string
	SourceFile string
	BatchSize  int
	RangeType  RangeType
	Mode       ExecutionMode
}

// BuildMatrix expands cfg into one descriptor per range type, source file and
// batch size. Range types are the outermost loop and batch sizes the innermost.
func BuildMatrix(cfg MatrixConfig, logger *zap.Logger) []ScenarioDescriptor {
	if logger == nil {
		logger = zap.NewNop()
	}

	rangeTypes := cfg.Unit.RangeTypes()
	descriptors := make([]ScenarioDescriptor, 0, len(rangeTypes)*len(cfg.SourceFiles)*len(cfg.BatchSizes))

	for _, rangeType := range rangeTypes {
		for _, sourceFile := range cfg.SourceFiles {
			for _, batchSize := range cfg.BatchSizes {
				d := ScenarioDescriptor{
					Name:       ScenarioName(sourceFile, batchSize),
					Group:      GroupName(cfg.Mode, rangeType, sourceFile, cfg.ConcurrentUsers, cfg.Ranges),
					SourceFile: sourceFile,
					BatchSize:  batchSize,
					RangeType:  rangeType,
					Mode:       cfg.Mode,
				}
				logger.Info("Planned scenario",
					zap.String("name", d.Name),
					zap.String("source_file", sourceFile),
					zap.Int("batch_size", batchSize),
					zap.Stringer("range_type", rangeType),
					zap.Stringer("mode", cfg.Mode),
				)
				descriptors = append(descriptors, d)
			}
		}
	}

	return descriptors
}

// ScenarioName formats the display name of a matrix cell.
func ScenarioName(sourceFile string, batchSize int) string {
	return fmt.Sprintf("Locations (%d) | %s", batchSize, FileStem(sourceFile))
}

// GroupName formats the group a scenario's requests are reported under.
func GroupName(mode ExecutionMode, rangeType RangeType, sourceFile string, users int, ranges []float64) string {
	return fmt.Sprintf("Isochrones %s %s - %s - Users %d - Ranges %s",
		mode, rangeType.Value(), FileStem(sourceFile), users, formatRanges(ranges))
}

// FileStem returns the base name of path without its extension.
func FileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func formatRanges(ranges []float64) string {
	parts := make([]string, len(ranges))
	for i, r := range ranges {
		parts[i] = fmt.Sprintf("%g", r)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
