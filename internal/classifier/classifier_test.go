package classifier

import (
	"testing"

	"github.com/nimbuscorp/syncengine/internal/model"
)

func TestRoute(t *testing.T) {
	tests := []struct {
		name    string
		class   model.InteractionClass
		healthy bool
		want    Path
	}{
		{"A healthy", model.ClassA, true, PathRealtime},
		{"A degraded drops", model.ClassA, false, PathDrop},
		{"B healthy", model.ClassB, true, PathRealtime},
		{"B degraded queues", model.ClassB, false, PathDurableQueue},
		{"C healthy", model.ClassC, true, PathRealtime},
		{"C degraded falls back to sync engine", model.ClassC, false, PathSyncEngine},
		{"D never realtime even when healthy", model.ClassD, true, PathSyncEngine},
		{"D never realtime when degraded", model.ClassD, false, PathSyncEngine},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Route(tt.class, tt.healthy); got != tt.want {
				t.Errorf("Route(%v, %v) = %v, want %v", tt.class, tt.healthy, got, tt.want)
			}
		})
	}
}

func TestAllowsRealtimeTransportRefusesClassD(t *testing.T) {
	if AllowsRealtimeTransport(model.ClassD) {
		t.Error("AllowsRealtimeTransport(ClassD) = true, want false")
	}
	for _, c := range []model.InteractionClass{model.ClassA, model.ClassB, model.ClassC} {
		if !AllowsRealtimeTransport(c) {
			t.Errorf("AllowsRealtimeTransport(%v) = false, want true", c)
		}
	}
}
