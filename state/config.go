package state

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
)

// NeighbourCfg is a statically configured peer
type NeighbourCfg struct {
	Id   NodeId  `yaml:"id"`
	Cost float64 `yaml:"cost"`
	Port uint16  `yaml:"port"`
	Host string  `yaml:"host,omitempty"` // defaults to DefaultHost
}

// LocalCfg represents local node-level configuration
type LocalCfg struct {
	Id         NodeId         `yaml:"id"`
	Port       uint16         `yaml:"port"`               // port the listener binds
	Host       string         `yaml:"host,omitempty"`     // address the listener binds, defaults to DefaultHost
	LogPath    string         `yaml:"log_path,omitempty"` // if not empty, logs are also written to this file
	Neighbours []NeighbourCfg `yaml:"neighbours"`
}

func hostOrDefault(host string) string {
	if host == "" {
		return DefaultHost
	}
	return host
}

func (c *LocalCfg) Addr() string {
	return net.JoinHostPort(hostOrDefault(c.Host), strconv.Itoa(int(c.Port)))
}

func (n NeighbourCfg) Addr() string {
	return net.JoinHostPort(hostOrDefault(n.Host), strconv.Itoa(int(n.Port)))
}

/*
ParseNeighbours reads the neighbour file produced by the topology generator:

	2
	B 6.5 6001
	C 2.2 6002

The first line is the neighbour count, followed by one "<id> <cost> <port>" line per neighbour.
*/
func ParseNeighbours(r io.Reader) ([]NeighbourCfg, error) {
	sc := bufio.NewScanner(r)
	line := 0
	next := func() (string, bool) {
		for sc.Scan() {
			line++
			txt := strings.TrimSpace(sc.Text())
			if txt != "" {
				return txt, true
			}
		}
		return "", false
	}

	header, ok := next()
	if !ok {
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("neighbour file is empty")
	}
	count, err := strconv.Atoi(header)
	if err != nil || count < 0 {
		return nil, fmt.Errorf("line %d: invalid neighbour count %q", line, header)
	}

	neighbours := make([]NeighbourCfg, 0, count)
	for i := 0; i < count; i++ {
		txt, ok := next()
		if !ok {
			if err := sc.Err(); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("expected %d neighbours, found %d", count, i)
		}
		fields := strings.Fields(txt)
		if len(fields) != 3 {
			return nil, fmt.Errorf("line %d: expected \"<id> <cost> <port>\", got %q", line, txt)
		}
		cost, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid cost %q", line, fields[1])
		}
		port, err := strconv.ParseUint(fields[2], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid port %q", line, fields[2])
		}
		neighbours = append(neighbours, NeighbourCfg{
			Id:   NodeId(fields[0]),
			Cost: cost,
			Port: uint16(port),
		})
	}
	if txt, ok := next(); ok {
		return nil, fmt.Errorf("line %d: unexpected trailing content %q", line, txt)
	}
	return neighbours, sc.Err()
}

func ReadNeighbourFile(path string) ([]NeighbourCfg, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	neighbours, err := ParseNeighbours(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return neighbours, nil
}

func ReadNodeConfig(path string) (*LocalCfg, error) {
	var cfg LocalCfg
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	err = yaml.Unmarshal(file, &cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// IsYamlConfig decides how a config path is read
func IsYamlConfig(path string) bool {
	return strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml")
}
