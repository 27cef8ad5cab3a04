package state

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNameValidator_Valid(t *testing.T) {
	assert.NoError(t, NameValidator("A"))
	assert.NoError(t, NameValidator("ab_cd"))
	assert.NoError(t, NameValidator("node-1.lab"))
}

func TestNameValidator_Invalid(t *testing.T) {
	assert.Error(t, NameValidator("node name"))
	assert.Error(t, NameValidator(""))
	assert.Error(t, NameValidator("\t"))
	assert.Error(t, NameValidator("a\\b"))
	assert.Error(t, NameValidator(strings.Repeat("a", 200)))
}

func TestNodeConfigValidator(t *testing.T) {
	valid := LocalCfg{
		Id:   "A",
		Port: 6000,
		Neighbours: []NeighbourCfg{
			{Id: "B", Cost: 1, Port: 6001},
			{Id: "C", Cost: 0.5, Port: 6002},
		},
	}
	assert.NoError(t, NodeConfigValidator(&valid))

	dup := valid
	dup.Neighbours = append([]NeighbourCfg{}, valid.Neighbours...)
	dup.Neighbours = append(dup.Neighbours, NeighbourCfg{Id: "B", Cost: 2, Port: 6003})
	assert.ErrorContains(t, NodeConfigValidator(&dup), "duplicate neighbour found: B")

	self := valid
	self.Neighbours = []NeighbourCfg{{Id: "A", Cost: 1, Port: 6001}}
	assert.ErrorContains(t, NodeConfigValidator(&self), "own neighbour")

	for _, cost := range []float64{0, -2, math.NaN(), math.Inf(1)} {
		bad := valid
		bad.Neighbours = []NeighbourCfg{{Id: "B", Cost: cost, Port: 6001}}
		assert.ErrorIs(t, NodeConfigValidator(&bad), ErrInvalidCost)
	}

	noPort := valid
	noPort.Neighbours = []NeighbourCfg{{Id: "B", Cost: 1}}
	assert.ErrorContains(t, NodeConfigValidator(&noPort), "port must not be 0")

	badName := valid
	badName.Id = "bad name"
	assert.Error(t, NodeConfigValidator(&badName))
}
