package config

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Table prints out a table of each device on the hub, with columns of port, role, name, model
// and positive direction, in port order.
func (c *Config) Table() string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Port", "Role", "Name", "Model", "Positive direction"})

	roles := map[Port]table.Row{}
	for i, m := range c.Motors {
		role := "left motor"
		if i == 1 {
			role = "right motor"
		}
		dir := m.Direction
		if dir == "" {
			dir = Clockwise
		}
		roles[m.Port] = table.Row{string(m.Port), role, m.Name, m.Model, string(dir)}
	}
	roles[c.DistanceSensor.Port] = table.Row{
		string(c.DistanceSensor.Port), "distance sensor", c.DistanceSensor.Name, c.DistanceSensor.Model, "",
	}
	for _, port := range []Port{PortA, PortB, PortC, PortD, PortE, PortF} {
		if row, ok := roles[port]; ok {
			t.AppendRow(row)
		}
	}
	t.AppendFooter(table.Row{"", "avoidance", fmt.Sprintf(
		"below %dmm reverse at %v for %v, poll every %v",
		c.Avoidance.ThresholdMM, c.Avoidance.Speed, c.Avoidance.ReverseDuration(), c.Avoidance.PollPeriod(),
	)})
	return t.Render()
}
