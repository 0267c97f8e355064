package utilities

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

// NewKSUID generates a new globally unique KSUID string.
func NewKSUID() string {
	return ksuid.New().String()
}

// IDGenerator issues snowflake ids from a single node. One generator must be
// shared per process so ids minted in the same millisecond stay distinct.
type IDGenerator struct {
	node *snowflake.Node
}

// NewIDGenerator creates a generator for the given node id (0-1023).
func NewIDGenerator(nodeID int64) (*IDGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", nodeID, err)
	}
	return &IDGenerator{node: node}, nil
}

// NewID returns the next snowflake id as a decimal string.
func (g *IDGenerator) NewID() string {
	return g.node.Generate().String()
}
