package timeline

import "github.com/matheus3301/imsync/internal/model"

// Policy selects how uncorrelated messages are grouped.
type Policy string

const (
	// PolicyStrict joins two messages only when they share a sender and the
	// same non-empty correlation id.
	PolicyStrict Policy = "strict"
	// PolicyBySender also joins runs from one sender where neither message
	// carries a correlation id.
	PolicyBySender Policy = "sender"
)

// ParsePolicy maps a config value to a Policy. Unknown values are strict.
func ParsePolicy(s string) Policy {
	if Policy(s) == PolicyBySender {
		return PolicyBySender
	}
	return PolicyStrict
}

// Group partitions msgs into bursts. Concatenating the bursts' items yields
// msgs unchanged. A burst's header fields come from its latest item.
func Group(msgs []model.Message, policy Policy) []model.Burst {
	var out []model.Burst
	for _, m := range msgs {
		n := len(out)
		if n > 0 && joins(out[n-1].Items[len(out[n-1].Items)-1], m, policy) {
			out[n-1].Items = append(out[n-1].Items, m)
		} else {
			out = append(out, model.Burst{Items: []model.Message{m}})
			n++
		}
		b := &out[n-1]
		b.SendID = m.SendID
		b.IsRead = m.IsRead
		b.SendTime = m.SendTime
	}
	return out
}

func joins(prev, m model.Message, policy Policy) bool {
	if prev.ContentType == model.Revoke && m.ContentType == model.Revoke {
		return true
	}
	if prev.SendID != m.SendID {
		return false
	}
	if m.CorrelationID != "" || prev.CorrelationID != "" {
		return m.CorrelationID == prev.CorrelationID
	}
	return policy == PolicyBySender
}
