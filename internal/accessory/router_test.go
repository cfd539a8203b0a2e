package accessory

import (
	"slices"
	"testing"

	"github.com/nerrad567/gray-logic-cloud/internal/capability"
)

type stubService struct {
	kind   capability.ServiceKind
	comp   string
	caps   []string
	events []Event
}

func (s *stubService) Kind() capability.ServiceKind    { return s.kind }
func (s *stubService) ComponentID() string             { return s.comp }
func (s *stubService) Capabilities() []string          { return s.caps }
func (s *stubService) HandlesCapability(c string) bool { return slices.Contains(s.caps, c) }
func (s *stubService) ProcessEvent(ev Event)           { s.events = append(s.events, ev) }

func TestRouter_Dispatch(t *testing.T) {
	battery := &stubService{kind: capability.KindBattery, comp: "main", caps: []string{"battery"}}
	sw := &stubService{kind: capability.KindSwitch, comp: "main", caps: []string{"switch", "battery"}}
	outlet := &stubService{kind: capability.KindSwitch, comp: "outlet2", caps: []string{"switch"}}

	r := NewRouter()
	r.Register(battery)
	r.Register(sw)
	r.Register(outlet)

	tests := []struct {
		name string
		ev   Event
		want *stubService
	}{
		{"first registered wins", Event{ComponentID: "main", Capability: "battery"}, battery},
		{"capability subset", Event{ComponentID: "main", Capability: "switch"}, sw},
		{"component match", Event{ComponentID: "outlet2", Capability: "switch"}, outlet},
		{"no match", Event{ComponentID: "outlet3", Capability: "switch"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := map[*stubService]int{battery: len(battery.events), sw: len(sw.events), outlet: len(outlet.events)}

			ok := r.Dispatch(tt.ev)
			if ok != (tt.want != nil) {
				t.Fatalf("Dispatch() = %v, want %v", ok, tt.want != nil)
			}
			for s, n := range before {
				delivered := len(s.events) - n
				if s == tt.want && delivered != 1 {
					t.Errorf("%s/%s got %d events, want 1", s.comp, s.kind, delivered)
				}
				if s != tt.want && delivered != 0 {
					t.Errorf("%s/%s got %d events, want 0", s.comp, s.kind, delivered)
				}
			}
		})
	}
}
