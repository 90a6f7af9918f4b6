// Package cache holds the two-sided reference cache: resources by address and
// consumers by node.
//
// The cache is not safe for concurrent use; callers serialize access.
package cache

import (
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/sha3"
	"golang.org/x/net/html"
)

var (
	// ErrReserved is returned when an address is reserved twice.
	ErrReserved = errors.New("address already reserved")

	// ErrNotReserved is returned when content is set for an unknown address.
	ErrNotReserved = errors.New("address not reserved")

	// ErrAlreadyLoaded is returned when a loaded address is set again.
	ErrAlreadyLoaded = errors.New("address already loaded")
)

// State is the lifecycle state of a cached resource.
type State int

const (
	Pending State = iota
	Loaded
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Resource is a cached external document.
type Resource struct {
	Address string
	State   State
	Node    *html.Node
	Size    int
	Digest  string
	Err     error
}

// Consumer is a recorded rewritten node.
type Consumer struct {
	Node     *html.Node
	Original string
	Address  string
}

// Cache is the reference cache.
type Cache struct {
	resources     map[string]*Resource
	resourceOrder []string
	consumers     map[*html.Node]*Consumer
	consumerOrder []*html.Node
}

// New creates an empty Cache.
func New() *Cache {
	return &Cache{
		resources: make(map[string]*Resource),
		consumers: make(map[*html.Node]*Consumer),
	}
}

// HasResource reports whether address was reserved, whatever its state.
func (c *Cache) HasResource(address string) bool {
	_, ok := c.resources[address]
	return ok
}

// Reserve marks address as pending. It fails if the address is already known.
func (c *Cache) Reserve(address string) error {
	if _, ok := c.resources[address]; ok {
		return fmt.Errorf("%w: %s", ErrReserved, address)
	}

	c.resources[address] = &Resource{Address: address, State: Pending}
	c.resourceOrder = append(c.resourceOrder, address)

	return nil
}

// SetResource installs the loaded node for a previously reserved address.
func (c *Cache) SetResource(address string, node *html.Node, content []byte) error {
	res, ok := c.resources[address]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotReserved, address)
	}
	if res.State == Loaded {
		return fmt.Errorf("%w: %s", ErrAlreadyLoaded, address)
	}

	sum := sha3.Sum256(content)
	res.State = Loaded
	res.Node = node
	res.Size = len(content)
	res.Digest = hex.EncodeToString(sum[:])
	res.Err = nil

	return nil
}

// Fail marks a reserved address as failed, keeping the reservation.
func (c *Cache) Fail(address string, err error) error {
	res, ok := c.resources[address]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotReserved, address)
	}

	res.State = Failed
	res.Err = err

	return nil
}

// Resource returns a copy of the entry for address.
func (c *Cache) Resource(address string) (Resource, bool) {
	res, ok := c.resources[address]
	if !ok {
		return Resource{}, false
	}

	return *res, true
}

// RemoveResource deletes the entry for address and returns it.
func (c *Cache) RemoveResource(address string) (Resource, bool) {
	res, ok := c.resources[address]
	if !ok {
		return Resource{}, false
	}

	delete(c.resources, address)
	for i, a := range c.resourceOrder {
		if a == address {
			c.resourceOrder = append(c.resourceOrder[:i], c.resourceOrder[i+1:]...)
			break
		}
	}

	return *res, true
}

// Resources returns a snapshot of all entries in reservation order.
func (c *Cache) Resources() []Resource {
	out := make([]Resource, 0, len(c.resourceOrder))
	for _, a := range c.resourceOrder {
		out = append(out, *c.resources[a])
	}

	return out
}

// HasConsumer reports whether node has been rewritten and recorded.
func (c *Cache) HasConsumer(node *html.Node) bool {
	_, ok := c.consumers[node]
	return ok
}

// RecordConsumer remembers the original reference of a rewritten node.
func (c *Cache) RecordConsumer(node *html.Node, original, address string) {
	if _, ok := c.consumers[node]; !ok {
		c.consumerOrder = append(c.consumerOrder, node)
	}
	c.consumers[node] = &Consumer{Node: node, Original: original, Address: address}
}

// ForgetConsumer removes node and returns its original reference.
func (c *Cache) ForgetConsumer(node *html.Node) (string, bool) {
	con, ok := c.consumers[node]
	if !ok {
		return "", false
	}

	delete(c.consumers, node)
	for i, n := range c.consumerOrder {
		if n == node {
			c.consumerOrder = append(c.consumerOrder[:i], c.consumerOrder[i+1:]...)
			break
		}
	}

	return con.Original, true
}

// Consumers returns a snapshot of recorded consumers in insertion order.
func (c *Cache) Consumers() []Consumer {
	out := make([]Consumer, 0, len(c.consumerOrder))
	for _, n := range c.consumerOrder {
		out = append(out, *c.consumers[n])
	}

	return out
}

// ConsumersOf returns the recorded consumers that reference address.
func (c *Cache) ConsumersOf(address string) []Consumer {
	var out []Consumer
	for _, n := range c.consumerOrder {
		if con := c.consumers[n]; con.Address == address {
			out = append(out, *con)
		}
	}

	return out
}

// Len returns the number of resources and consumers.
func (c *Cache) Len() (resources, consumers int) {
	return len(c.resources), len(c.consumers)
}
