package event

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

// tree builds document > body > svg > use and returns body, svg and use.
func tree() (*html.Node, *html.Node, *html.Node) {
	doc := &html.Node{Type: html.DocumentNode}
	body := &html.Node{Type: html.ElementNode, Data: "body"}
	svg := &html.Node{Type: html.ElementNode, Data: "svg"}
	use := &html.Node{Type: html.ElementNode, Data: "use"}
	doc.AppendChild(body)
	body.AppendChild(svg)
	svg.AppendChild(use)

	return body, svg, use
}

func TestGateway_EmitRunsContinuation(t *testing.T) {
	g := NewGateway("external-svg-polyfill")
	_, _, use := tree()

	var seen *Event
	g.ListenAll(func(ev *Event) { seen = ev })

	ran := false
	ev, ok := g.Emit(use, Load, LoadDetail{Address: "icons.svg"}, func() { ran = true })

	assert.True(t, ok)
	assert.True(t, ran)
	require.NotNil(t, seen)
	assert.Same(t, ev, seen)
	assert.Equal(t, "external-svg-polyfill.load", ev.Type)
	assert.Equal(t, Load, ev.Name)
	assert.Same(t, use, ev.Target)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, LoadDetail{Address: "icons.svg"}, ev.Detail)
}

func TestGateway_PreventDefaultSkipsContinuation(t *testing.T) {
	g := NewGateway("ns")
	body, _, use := tree()

	g.Listen(body, func(ev *Event) {
		if ev.Name == Apply {
			ev.PreventDefault()
		}
	})

	ran := false
	ev, ok := g.Emit(use, Apply, ApplyDetail{Address: "a.svg", Identifier: "x"}, func() { ran = true })
	assert.False(t, ok)
	assert.False(t, ran)
	assert.True(t, ev.DefaultPrevented())

	// other events still pass
	_, ok = g.Emit(use, Load, LoadDetail{Address: "a.svg"}, nil)
	assert.True(t, ok)
}

func TestGateway_BubblingOrder(t *testing.T) {
	g := NewGateway("ns")
	body, svg, use := tree()

	var order []string
	g.ListenAll(func(ev *Event) {
		assert.Nil(t, ev.CurrentTarget())
		order = append(order, "global")
	})
	g.Listen(body, func(ev *Event) {
		assert.Same(t, body, ev.CurrentTarget())
		order = append(order, "body")
	})
	g.Listen(use, func(*Event) { order = append(order, "use") })
	g.Listen(svg, func(*Event) { order = append(order, "svg") })

	g.Emit(use, Load, LoadDetail{}, nil)
	assert.Equal(t, []string{"use", "svg", "body", "global"}, order)

	// listeners below the target do not see the event
	order = nil
	g.Emit(svg, Load, LoadDetail{}, nil)
	assert.Equal(t, []string{"svg", "body", "global"}, order)
}

func TestGateway_StopPropagation(t *testing.T) {
	g := NewGateway("ns")
	body, svg, use := tree()

	var order []string
	g.Listen(svg, func(ev *Event) {
		order = append(order, "svg")
		ev.StopPropagation()
	})
	g.Listen(body, func(*Event) { order = append(order, "body") })
	g.ListenAll(func(*Event) { order = append(order, "global") })

	_, ok := g.Emit(use, Load, LoadDetail{}, nil)
	assert.True(t, ok)
	assert.Equal(t, []string{"svg", "global"}, order)
}

func TestGateway_RemoveListener(t *testing.T) {
	g := NewGateway("ns")
	_, _, use := tree()

	calls := 0
	remove := g.Listen(use, func(*Event) { calls++ })
	removeAll := g.ListenAll(func(*Event) { calls++ })

	g.Emit(use, Load, LoadDetail{}, nil)
	assert.Equal(t, 2, calls)

	remove()
	removeAll()
	g.Emit(use, Load, LoadDetail{}, nil)
	assert.Equal(t, 2, calls)
}

func TestGateway_EmptyNamespace(t *testing.T) {
	g := NewGateway("")
	ev, _ := g.Emit(nil, Remove, RemoveDetail{Address: "a.svg"}, nil)
	assert.Equal(t, "remove", ev.Type)
}

func TestEvent_Fields(t *testing.T) {
	g := NewGateway("ns")
	_, _, use := tree()

	ev, _ := g.Emit(use, Apply, ApplyDetail{Address: "a.svg", Identifier: "star"}, nil)
	fields := ev.Fields()
	assert.Equal(t, "apply", fields["name"])
	assert.Equal(t, "ns.apply", fields["type"])
	assert.Equal(t, "use", fields["tag"])
	assert.Equal(t, "a.svg", fields["address"])
	assert.Equal(t, "star", fields["identifier"])

	errFields := ErrorDetail{Address: "a.svg", Err: errors.New("boom")}.Fields()
	assert.Equal(t, "boom", errFields["error"])
	assert.Equal(t, "v", RevokeDetail{Value: "v"}.Fields()["value"])
}
