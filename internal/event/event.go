// Package event implements the cancelable lifecycle event gateway.
package event

import (
	"github.com/google/uuid"
	"golang.org/x/net/html"
)

// Lifecycle event names, in the order they occur.
const (
	Load   = "load"
	Apply  = "apply"
	Insert = "insert"
	Revoke = "revoke"
	Remove = "remove"
	Error  = "error"
)

// Detail is the payload carried by an event.
type Detail interface {
	Fields() map[string]any
}

// LoadDetail is carried by "load" events.
type LoadDetail struct {
	Address string
}

// Fields implements Detail.
func (d LoadDetail) Fields() map[string]any {
	return map[string]any{"address": d.Address}
}

// ApplyDetail is carried by "apply" events.
type ApplyDetail struct {
	Address    string
	Identifier string
}

// Fields implements Detail.
func (d ApplyDetail) Fields() map[string]any {
	return map[string]any{"address": d.Address, "identifier": d.Identifier}
}

// InsertDetail is carried by "insert" events.
type InsertDetail struct {
	Address  string
	Resource *html.Node
}

// Fields implements Detail.
func (d InsertDetail) Fields() map[string]any {
	return map[string]any{"address": d.Address, "resource": d.Resource}
}

// RevokeDetail is carried by "revoke" events. Value is the original reference.
type RevokeDetail struct {
	Value string
}

// Fields implements Detail.
func (d RevokeDetail) Fields() map[string]any {
	return map[string]any{"value": d.Value}
}

// RemoveDetail is carried by "remove" events.
type RemoveDetail struct {
	Address string
}

// Fields implements Detail.
func (d RemoveDetail) Fields() map[string]any {
	return map[string]any{"address": d.Address}
}

// ErrorDetail is carried by "error" events.
type ErrorDetail struct {
	Address string
	Err     error
}

// Fields implements Detail. The error is flattened to its message.
func (d ErrorDetail) Fields() map[string]any {
	msg := ""
	if d.Err != nil {
		msg = d.Err.Error()
	}

	return map[string]any{"address": d.Address, "error": msg}
}

// Event is a single dispatched lifecycle event.
type Event struct {
	ID     string
	Name   string     // short name, e.g. "load"
	Type   string     // namespaced name, e.g. "external-svg-polyfill.load"
	Target *html.Node // node the event was dispatched at
	Detail Detail

	current  *html.Node
	canceled bool
	stopped  bool
}

func newEvent(namespace, name string, target *html.Node, detail Detail) *Event {
	typ := name
	if namespace != "" {
		typ = namespace + "." + name
	}

	return &Event{
		ID:     uuid.NewString(),
		Name:   name,
		Type:   typ,
		Target: target,
		Detail: detail,
	}
}

// PreventDefault vetoes the step this event gates.
func (e *Event) PreventDefault() {
	e.canceled = true
}

// DefaultPrevented reports whether a listener vetoed the event.
func (e *Event) DefaultPrevented() bool {
	return e.canceled
}

// StopPropagation stops bubbling to further ancestors.
// Global listeners still observe the event.
func (e *Event) StopPropagation() {
	e.stopped = true
}

// CurrentTarget is the node whose listener is running, nil for global listeners.
func (e *Event) CurrentTarget() *html.Node {
	return e.current
}

// Fields flattens the event into a map for policy evaluation.
func (e *Event) Fields() map[string]any {
	out := map[string]any{
		"id":   e.ID,
		"name": e.Name,
		"type": e.Type,
		"tag":  "",
	}
	if e.Target != nil {
		out["tag"] = e.Target.Data
	}
	if e.Detail != nil {
		for k, v := range e.Detail.Fields() {
			out[k] = v
		}
	}

	return out
}
