package session

import "marlin/internal/domain"

// pendingBuffer holds group-message envelopes that arrived before the
// welcome for their group. Keyed by wire tag because the local group id is
// unknown until the welcome lands. Both dimensions are bounded: each group
// keeps at most perGroup envelopes (oldest dropped first) and at most
// maxGroups distinct tags are tracked (least recently seen tag evicted
// wholesale).
type pendingBuffer struct {
	perGroup  int
	maxGroups int
	order     []string // tags, least recently seen first
	byTag     map[string][]domain.Envelope
	dropped   int
}

func newPendingBuffer(perGroup, maxGroups int) *pendingBuffer {
	if perGroup < 1 {
		perGroup = 1
	}
	if maxGroups < 1 {
		maxGroups = 1
	}
	return &pendingBuffer{
		perGroup:  perGroup,
		maxGroups: maxGroups,
		byTag:     make(map[string][]domain.Envelope),
	}
}

func (p *pendingBuffer) add(tag string, env domain.Envelope) {
	if _, ok := p.byTag[tag]; !ok {
		if len(p.order) >= p.maxGroups {
			oldest := p.order[0]
			p.order = p.order[1:]
			p.dropped += len(p.byTag[oldest])
			delete(p.byTag, oldest)
		}
		p.order = append(p.order, tag)
	} else {
		p.touch(tag)
	}
	q := append(p.byTag[tag], env)
	if len(q) > p.perGroup {
		q = q[len(q)-p.perGroup:]
		p.dropped++
	}
	p.byTag[tag] = q
}

// take removes and returns the buffered envelopes for tag in arrival order.
func (p *pendingBuffer) take(tag string) []domain.Envelope {
	q, ok := p.byTag[tag]
	if !ok {
		return nil
	}
	delete(p.byTag, tag)
	for i, t := range p.order {
		if t == tag {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return q
}

func (p *pendingBuffer) touch(tag string) {
	for i, t := range p.order {
		if t == tag {
			p.order = append(p.order[:i], p.order[i+1:]...)
			p.order = append(p.order, tag)
			return
		}
	}
}
