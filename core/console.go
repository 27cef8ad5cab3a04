package core

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/encodeous/strand/state"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

var errQuit = errors.New("quit")

type command struct {
	name string
	args string
	help string
	run  func(c *Console, args []string) error
}

var commands []command

func init() {
	// assigned in init since help refers back to the command list
	commands = []command{
		{"exit", "", "stop the node", func(c *Console, args []string) error { return errQuit }},
		{"status", "", "print uptime and the topology store", (*Console).status},
		{"route", "", "compute and print least cost paths now", (*Console).route},
		{"update-link", "<neighbour> <cost>", "change the cost of the link to a neighbour", (*Console).updateLink},
		{"mark-down", "", "mark this node down and stop participating", (*Console).markDown},
		{"mark-up", "", "mark this node up again", (*Console).markUp},
		{"neighbours", "", "list configured neighbours", (*Console).neighbours},
		{"help", "", "show this message", (*Console).help},
	}
}

// Console is the operator shell. Commands are read one per line.
type Console struct {
	*state.State
	in  io.Reader
	out io.Writer
}

func NewConsole(s *state.State, in io.Reader, out io.Writer) *Console {
	return &Console{State: s, in: in, out: out}
}

func (c *Console) Banner() {
	bold := color.New(color.Bold)
	bold.Fprintf(c.out, "Node %s listening on %s\n", c.Id, c.Addr())
	_ = c.help(nil)
}

// Run reads commands until exit, end of input or cancellation
func (c *Console) Run() error {
	c.Banner()
	lines := make(chan string)
	go func() {
		// not a tracked worker: a blocked read on stdin must not hold up shutdown
		defer close(lines)
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-c.Context.Done():
				return
			}
		}
	}()
	for {
		select {
		case <-c.Context.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				c.Log.Debug("console input closed")
				return nil
			}
			quit, err := c.Execute(line)
			if err != nil {
				fmt.Fprintf(c.out, "error: %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

// Execute runs a single command line. quit is true once the operator asked to exit.
func (c *Console) Execute(line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	for _, cmd := range commands {
		if cmd.name != fields[0] {
			continue
		}
		want := len(strings.Fields(cmd.args))
		if len(fields)-1 != want {
			if want == 0 {
				return false, fmt.Errorf("%s takes no arguments", cmd.name)
			}
			return false, fmt.Errorf("usage: %s %s", cmd.name, cmd.args)
		}
		err = cmd.run(c, fields[1:])
		if errors.Is(err, errQuit) {
			return true, nil
		}
		return false, err
	}
	return false, fmt.Errorf("unknown command %q, try help", fields[0])
}

func (c *Console) help(args []string) error {
	name := color.New(color.FgGreen)
	fmt.Fprintln(c.out, "Commands:")
	for _, cmd := range commands {
		usage := cmd.name
		if cmd.args != "" {
			usage += " " + cmd.args
		}
		fmt.Fprintf(c.out, "  %s  %s\n", name.Sprintf("%-28s", usage), cmd.help)
	}
	return nil
}

func newTable(w io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}

func formatTimestamp(ts state.Timestamp) string {
	return ts.Time().Format("15:04:05.000")
}

func (c *Console) status(args []string) error {
	fmt.Fprintf(c.out, "Time since boot: %.1fs\n", c.Uptime().Seconds())
	snap := c.Topology.Snapshot()
	table := newTable(c.out)
	table.SetHeader([]string{"Node", "Power", "Updated", "Links"})
	for _, id := range slices.Sorted(maps.Keys(snap)) {
		rec := snap[id]
		links := make([]string, 0, len(rec.Links))
		for _, l := range rec.Links {
			links = append(links, fmt.Sprintf("%s(%s @ %s)", l.Peer, strconv.FormatFloat(l.Cost, 'f', -1, 64), formatTimestamp(l.Updated)))
		}
		name := string(id)
		if id == c.Id {
			name += "*"
		}
		table.Append([]string{name, rec.Power.State.String(), formatTimestamp(rec.Power.Updated), strings.Join(links, " ")})
	}
	table.Render()
	return nil
}

// route runs regardless of power state and never touches the route engine's watermark
func (c *Console) route(args []string) error {
	return computeRoutes(c.Env).Write(c.out)
}

func (c *Console) updateLink(args []string) error {
	peer := state.NodeId(args[0])
	cost, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid cost %q", args[1])
	}
	changed, err := c.Topology.MergeEdge(c.Id, peer, cost, state.Now())
	if err != nil {
		return err
	}
	if c.GetNeighbour(peer) == nil {
		fmt.Fprintf(c.out, "warning: %s is not a configured neighbour, no snapshots will be sent to it\n", peer)
	}
	if changed {
		c.Log.Info("link cost updated", "peer", peer, "cost", cost)
		fmt.Fprintf(c.out, "link %s-%s now costs %s\n", c.Id, peer, args[1])
	} else {
		fmt.Fprintf(c.out, "link %s-%s unchanged\n", c.Id, peer)
	}
	return nil
}

func (c *Console) setPower(st state.PowerState) {
	ts := state.Now()
	// own power facts stay strictly increasing, even for toggles within one millisecond
	if cur, ok := c.Topology.Power(c.Id); ok && ts <= cur.Updated {
		ts = cur.Updated + 1
	}
	if c.Topology.MergePower(c.Id, st, ts) {
		c.Log.Info("power state changed", "state", st.String())
		fmt.Fprintf(c.out, "node %s is now %s\n", c.Id, st)
	} else {
		fmt.Fprintf(c.out, "node %s is already %s\n", c.Id, st)
	}
}

func (c *Console) markDown(args []string) error {
	c.setPower(state.PowerDown)
	return nil
}

func (c *Console) markUp(args []string) error {
	c.setPower(state.PowerUp)
	return nil
}

func (c *Console) neighbours(args []string) error {
	table := newTable(c.out)
	table.SetHeader([]string{"Neighbour", "Address", "Configured", "Current", "Power"})
	self := c.Topology.Snapshot()[c.Id]
	for _, neigh := range c.Neighbours {
		current := "-"
		for _, l := range self.Links {
			if l.Peer == neigh.Id {
				current = strconv.FormatFloat(l.Cost, 'f', -1, 64)
			}
		}
		power := "unknown"
		if p, ok := c.Topology.Power(neigh.Id); ok {
			power = p.State.String()
		}
		table.Append([]string{string(neigh.Id), neigh.Addr(), strconv.FormatFloat(neigh.Cost, 'f', -1, 64), current, power})
	}
	table.Render()
	return nil
}
