package bisim

import "fmt"

// Partition assigns every state of an LTS to a block. Blocks are numbered densely in order of
// their first member.
type Partition struct {
	blockOf   []int
	numBlocks int
}

// NewPartition puts all n states into a single block.
func NewPartition(n int) *Partition {
	p := &Partition{blockOf: make([]int, n)}
	if n > 0 {
		p.numBlocks = 1
	}
	return p
}

func (p *Partition) NumStates() int {
	return len(p.blockOf)
}

func (p *Partition) NumBlocks() int {
	return p.numBlocks
}

// Block returns the block of state s.
func (p *Partition) Block(s int) int {
	return p.blockOf[s]
}

func (p *Partition) Equivalent(s, t int) bool {
	return p.blockOf[s] == p.blockOf[t]
}

// Blocks lists the members of every block in state order.
func (p *Partition) Blocks() [][]int {
	blocks := make([][]int, p.numBlocks)
	for s, b := range p.blockOf {
		blocks[b] = append(blocks[b], s)
	}
	return blocks
}

func (p *Partition) String() string {
	return fmt.Sprintf("%v", p.Blocks())
}
