// Package node defines the coordinator's notion of worker identity
// (spec.md §3, "Node Identity").
package node

import "fmt"

// Node identifies a worker process by host/port. Equality is structural,
// so a Node is usable directly as a map key in the Worker Registry.
type Node struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func (n Node) String() string {
	return fmt.Sprintf("%s:%d", n.Host, n.Port)
}
