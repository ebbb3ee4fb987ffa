package timeline

import (
	"fmt"
	"math/rand"
	"reflect"
	"testing"

	"github.com/matheus3301/imsync/internal/model"
)

func msg(id, sender, corr string) model.Message {
	return model.Message{ClientMsgID: id, SendID: sender, CorrelationID: corr, ContentType: model.Text}
}

func ids(b model.Burst) []string {
	out := make([]string, len(b.Items))
	for i, m := range b.Items {
		out[i] = m.ClientMsgID
	}
	return out
}

func TestGroup(t *testing.T) {
	revoke := func(id, sender string) model.Message {
		m := msg(id, sender, "")
		m.ContentType = model.Revoke
		return m
	}
	tests := []struct {
		name   string
		msgs   []model.Message
		policy Policy
		want   [][]string
	}{
		{
			name:   "empty",
			policy: PolicyStrict,
			want:   nil,
		},
		{
			name: "correlated run then uncorrelated strict",
			msgs: []model.Message{
				msg("m1", "U1", "R1"), msg("m2", "U1", "R1"),
				msg("m3", "U2", ""), msg("m4", "U2", ""),
			},
			policy: PolicyStrict,
			want:   [][]string{{"m1", "m2"}, {"m3"}, {"m4"}},
		},
		{
			name: "correlated run then uncorrelated by sender",
			msgs: []model.Message{
				msg("m1", "U1", "R1"), msg("m2", "U1", "R1"),
				msg("m3", "U2", ""), msg("m4", "U2", ""),
			},
			policy: PolicyBySender,
			want:   [][]string{{"m1", "m2"}, {"m3", "m4"}},
		},
		{
			name:   "sender change splits",
			msgs:   []model.Message{msg("a", "U1", "R1"), msg("b", "U2", "R1")},
			policy: PolicyStrict,
			want:   [][]string{{"a"}, {"b"}},
		},
		{
			name:   "correlation change splits",
			msgs:   []model.Message{msg("a", "U1", "R1"), msg("b", "U1", "R2")},
			policy: PolicyBySender,
			want:   [][]string{{"a"}, {"b"}},
		},
		{
			name:   "correlated next to uncorrelated splits",
			msgs:   []model.Message{msg("a", "U1", ""), msg("b", "U1", "R1"), msg("c", "U1", "")},
			policy: PolicyBySender,
			want:   [][]string{{"a"}, {"b"}, {"c"}},
		},
		{
			name:   "consecutive revokes join",
			msgs:   []model.Message{msg("a", "U1", "R1"), revoke("b", "U1"), revoke("c", "U2"), msg("d", "U2", "")},
			policy: PolicyStrict,
			want:   [][]string{{"a"}, {"b", "c"}, {"d"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Group(tt.msgs, tt.policy)
			var gotIDs [][]string
			for _, b := range got {
				gotIDs = append(gotIDs, ids(b))
			}
			if !reflect.DeepEqual(gotIDs, tt.want) {
				t.Errorf("Group() = %v, want %v", gotIDs, tt.want)
			}
		})
	}
}

func TestGroupHeaderFromLatestItem(t *testing.T) {
	a := msg("a", "U1", "R1")
	a.SendTime, a.IsRead = 10, true
	b := msg("b", "U1", "R1")
	b.SendTime, b.IsRead = 20, false

	got := Group([]model.Message{a, b}, PolicyStrict)
	if len(got) != 1 {
		t.Fatalf("bursts = %d, want 1", len(got))
	}
	if got[0].SendID != "U1" || got[0].SendTime != 20 || got[0].IsRead {
		t.Errorf("header = %+v", got[0])
	}
}

func TestGroupPartitionLaw(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	senders := []string{"U1", "U2", "U3"}
	corrs := []string{"", "", "R1", "R2"}
	for _, policy := range []Policy{PolicyStrict, PolicyBySender} {
		for round := 0; round < 200; round++ {
			n := rng.Intn(30)
			msgs := make([]model.Message, n)
			for i := range msgs {
				msgs[i] = msg(fmt.Sprintf("m%d", i), senders[rng.Intn(len(senders))], corrs[rng.Intn(len(corrs))])
				if rng.Intn(8) == 0 {
					msgs[i].ContentType = model.Revoke
				}
			}

			var flat []model.Message
			for _, b := range Group(msgs, policy) {
				if len(b.Items) == 0 {
					t.Fatal("empty burst")
				}
				flat = append(flat, b.Items...)
			}
			if len(flat) != len(msgs) {
				t.Fatalf("policy %s: %d items after grouping, want %d", policy, len(flat), len(msgs))
			}
			for i := range msgs {
				if flat[i].ClientMsgID != msgs[i].ClientMsgID {
					t.Fatalf("policy %s: order broken at %d", policy, i)
				}
			}
		}
	}
}

func TestParsePolicy(t *testing.T) {
	if ParsePolicy("sender") != PolicyBySender {
		t.Error("sender should parse")
	}
	if ParsePolicy("") != PolicyStrict || ParsePolicy("weird") != PolicyStrict {
		t.Error("unknown values should fall back to strict")
	}
}

func TestTimelineBurstsUsesPolicy(t *testing.T) {
	tl := New(newFakeHistory(), 40, PolicyBySender, nil)
	tl.Ingest(msg("m3", "U2", ""))
	tl.Ingest(msg("m4", "U2", ""))
	if got := tl.Bursts(); len(got) != 1 {
		t.Errorf("bursts = %d, want 1", len(got))
	}
}
