package state

import (
	"fmt"
	"regexp"
	"slices"
)

var namePattern, _ = regexp.Compile("^[0-9A-Za-z._-]+$")

func NameValidator(s string) error {
	if !namePattern.MatchString(s) {
		return fmt.Errorf("%s is not a valid name, must match pattern %s", s, namePattern.String())
	}
	if len(s) > 100 {
		return fmt.Errorf("len(\"%s\") = %d > 100 is too long", s, len(s))
	}
	return nil
}

func NeighbourConfigValidator(self NodeId, neigh NeighbourCfg) error {
	err := NameValidator(string(neigh.Id))
	if err != nil {
		return err
	}
	if neigh.Id == self {
		return fmt.Errorf("node %s cannot be its own neighbour", self)
	}
	if err := ValidCost(neigh.Cost); err != nil {
		return fmt.Errorf("neighbour %s: %w", neigh.Id, err)
	}
	if neigh.Port == 0 {
		return fmt.Errorf("neighbour %s: port must not be 0", neigh.Id)
	}
	return nil
}

func NodeConfigValidator(node *LocalCfg) error {
	err := NameValidator(string(node.Id))
	if err != nil {
		return err
	}
	seen := make([]NodeId, 0, len(node.Neighbours))
	for _, neigh := range node.Neighbours {
		if slices.Contains(seen, neigh.Id) {
			return fmt.Errorf("duplicate neighbour found: %s", neigh.Id)
		}
		if err := NeighbourConfigValidator(node.Id, neigh); err != nil {
			return err
		}
		seen = append(seen, neigh.Id)
	}
	return nil
}
