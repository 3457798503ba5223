package projection

import "fmt"

// PartitionSelector maps a committed event to the partition key its
// derived state belongs under. The root partition, key "", is used for
// projections that keep a single global state rather than partitioning by
// e.g. tenant or aggregate id.
type PartitionSelector interface {
	SelectPartition(streamID, eventType string) string
}

// RootPartitionSelector always selects the root partition, for
// projections with a single global derived state.
type RootPartitionSelector struct{}

// SelectPartition implements PartitionSelector.
func (RootPartitionSelector) SelectPartition(streamID, eventType string) string {
	return rootPartitionKey
}

// PartitionSelectorFunc adapts a plain function to PartitionSelector.
type PartitionSelectorFunc func(streamID, eventType string) string

// SelectPartition implements PartitionSelector.
func (f PartitionSelectorFunc) SelectPartition(streamID, eventType string) string {
	return f(streamID, eventType)
}

// StreamNamer formats the stream names the runtime reads and writes
// partition state under (SPEC_FULL.md §6, "Stream naming"). The default
// implementation follows the standard $projections-<name>[-<partition>]-state
// pattern for state streams and $projections-<name>-checkpoint for the
// checkpoint stream; a checkpoint strategy may override it.
type StreamNamer interface {
	RootStateStream() string
	PartitionStateStream(partition string) string
	CheckpointStream() string
}

// DefaultStreamNamer implements the standard stream naming scheme.
type DefaultStreamNamer struct {
	ProjectionName string
}

// RootStateStream implements StreamNamer.
func (n DefaultStreamNamer) RootStateStream() string {
	return fmt.Sprintf("$projections-%s-state", n.ProjectionName)
}

// PartitionStateStream implements StreamNamer.
func (n DefaultStreamNamer) PartitionStateStream(partition string) string {
	if partition == rootPartitionKey {
		return n.RootStateStream()
	}
	return fmt.Sprintf("$projections-%s-%s-state", n.ProjectionName, partition)
}

// CheckpointStream implements StreamNamer.
func (n DefaultStreamNamer) CheckpointStream() string {
	return fmt.Sprintf("$projections-%s-checkpoint", n.ProjectionName)
}
