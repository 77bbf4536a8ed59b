package vectorstore

import (
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestPointID(t *testing.T) {
	t.Run("deterministic for arbitrary ids", func(t *testing.T) {
		a := pointID("9a8b7c6d5e4f30211203f4e5d6c7b8a9") // md5-shaped
		b := pointID("9a8b7c6d5e4f30211203f4e5d6c7b8a9")
		if a.GetUuid() != b.GetUuid() {
			t.Errorf("same id mapped to different points: %s vs %s", a.GetUuid(), b.GetUuid())
		}
	})

	t.Run("distinct ids map to distinct points", func(t *testing.T) {
		a := pointID("report-2024-01")
		b := pointID("report-2024-02")
		if a.GetUuid() == b.GetUuid() {
			t.Error("distinct ids collided")
		}
	})

	t.Run("uuid ids pass through canonicalized", func(t *testing.T) {
		got := pointID("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
		if got.GetUuid() != "6ba7b810-9dad-11d1-80b4-00c04fd430c8" {
			t.Errorf("pointID() = %s", got.GetUuid())
		}
	})
}

func TestQdrantPayloadRoundTrip(t *testing.T) {
	in := map[string]any{
		"text":         "analysis report",
		"device_count": int64(12),
		"avg":          42.5,
		"dramatic":     true,
		TenantTagKey:   "acme",
		"unsupported":  []string{"dropped"},
	}
	out := fromQdrantPayload(toQdrantPayload(in))

	if out["text"] != "analysis report" {
		t.Errorf("text = %v", out["text"])
	}
	if out["device_count"] != int64(12) {
		t.Errorf("device_count = %v", out["device_count"])
	}
	if out["avg"] != 42.5 {
		t.Errorf("avg = %v", out["avg"])
	}
	if out["dramatic"] != true {
		t.Errorf("dramatic = %v", out["dramatic"])
	}
	if out[TenantTagKey] != "acme" {
		t.Errorf("tenant tag = %v", out[TenantTagKey])
	}
	if _, ok := out["unsupported"]; ok {
		t.Error("unsupported value type survived conversion")
	}
}

func TestBuildFilter(t *testing.T) {
	if buildFilter(nil) != nil {
		t.Error("nil filter map should build nil filter")
	}

	f := buildFilter(map[string]any{
		TenantTagKey:    "acme",
		"analysis_type": "monthly",
	})
	if f == nil || len(f.Must) != 2 {
		t.Fatalf("buildFilter() = %v, want 2 must conditions", f)
	}
}

func TestIsTransientError(t *testing.T) {
	transient := []codes.Code{codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.ResourceExhausted}
	for _, c := range transient {
		if !isTransientError(status.Error(c, "x")) {
			t.Errorf("code %v should be transient", c)
		}
	}
	for _, c := range []codes.Code{codes.NotFound, codes.InvalidArgument, codes.PermissionDenied} {
		if isTransientError(status.Error(c, "x")) {
			t.Errorf("code %v should not be transient", c)
		}
	}
	if isTransientError(nil) {
		t.Error("nil error is not transient")
	}
}
