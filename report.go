package spritefill

import "github.com/arloliu/spritefill/internal/dom"

// Report is a snapshot of the reference cache.
type Report struct {
	Required  bool             `json:"required"`
	Resources []ResourceReport `json:"resources"`
	Consumers []ConsumerReport `json:"consumers"`
}

// ResourceReport describes one external document.
type ResourceReport struct {
	Address  string `json:"address"`
	State    string `json:"state"`
	Inserted bool   `json:"inserted"`
	Size     int    `json:"size,omitempty"`
	Digest   string `json:"digest,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ConsumerReport describes one rewritten consumer.
type ConsumerReport struct {
	Original string `json:"original"`
	Address  string `json:"address"`
	Current  string `json:"current"`
}

// Report returns the resources in reservation order and the applied
// consumers in application order.
func (p *Polyfill) Report() Report {
	p.mu.Lock()
	defer p.mu.Unlock()

	r := Report{
		Required:  p.required,
		Resources: []ResourceReport{},
		Consumers: []ConsumerReport{},
	}

	for _, res := range p.cache.Resources() {
		rr := ResourceReport{
			Address:  res.Address,
			State:    res.State.String(),
			Inserted: res.Node != nil && res.Node.Parent != nil,
			Size:     res.Size,
			Digest:   res.Digest,
		}
		if res.Err != nil {
			rr.Error = res.Err.Error()
		}
		r.Resources = append(r.Resources, rr)
	}

	for _, c := range p.cache.Consumers() {
		r.Consumers = append(r.Consumers, ConsumerReport{
			Original: c.Original,
			Address:  c.Address,
			Current:  dom.LinkValue(c.Node),
		})
	}

	return r
}
