package render

import (
	"math"
	"testing"

	"github.com/tinytelemetry/photon/internal/model"
)

func TestAutoScale(t *testing.T) {
	tests := []struct {
		value     float64
		scale     string
		precision int
		want      string
	}{
		{0, "binary_bytes", 2, "0.00 B"},
		{1023, "binary_bytes", 2, "1023.00 B"},
		{1536, "binary_bytes", 2, "1.50 KiB"},
		{5 * 1024 * 1024 * 1024, "binary_bytes", 1, "5.0 GiB"},
		{1500, "bytes", 2, "1.50 KB"},
		{2500000, "bandwidth", 2, "2.50 MB/s"},
		{12, "iops", 0, "12"},
		{12500, "iops", 1, "12.5 k"},
		{1023.999, "binary_bytes", 2, "1.00 KiB"},
		{-2048, "binary_bytes", 2, "-2048.00 B"},
		{math.NaN(), "bytes", 2, "0.00 B"},
	}
	for _, tt := range tests {
		got, err := AutoScale(tt.value, tt.scale, tt.precision)
		if err != nil {
			t.Fatalf("AutoScale(%v, %s): %v", tt.value, tt.scale, err)
		}
		if got != tt.want {
			t.Errorf("AutoScale(%v, %s, %d) = %q, want %q", tt.value, tt.scale, tt.precision, got, tt.want)
		}
	}

	if _, err := AutoScale(1, "furlongs", 2); err == nil {
		t.Error("AutoScale with unknown scale succeeded, want error")
	}
}

func TestToRaw(t *testing.T) {
	tests := []struct {
		text  string
		scale string
		want  float64
	}{
		{"42", "", 42},
		{"12.07 KB", "bytes", 12070},
		{"1.5 KiB", "", 1536},
		{"2 K", "", 2048},
		{"3MB/s", "", 3e6},
	}
	for _, tt := range tests {
		got, err := ToRaw(tt.text, tt.scale)
		if err != nil {
			t.Fatalf("ToRaw(%q): %v", tt.text, err)
		}
		if math.Abs(got-tt.want) > 1e-6 {
			t.Errorf("ToRaw(%q, %q) = %v, want %v", tt.text, tt.scale, got, tt.want)
		}
	}

	for _, bad := range []string{"lots", "12 parsecs"} {
		if _, err := ToRaw(bad, ""); err == nil {
			t.Errorf("ToRaw(%q) succeeded, want error", bad)
		}
	}
	if _, err := ToRaw("1 KiB", "bytes"); err == nil {
		t.Error("ToRaw with a unit outside the scale succeeded, want error")
	}
}

func TestPercentageAndSafeDivide(t *testing.T) {
	if got := Percentage(0.88, 2); got != "88.00%" {
		t.Errorf("Percentage(0.88) = %q, want 88.00%%", got)
	}
	if got := SafeDivide(1, 0); got != 0 {
		t.Errorf("SafeDivide(1, 0) = %v, want 0", got)
	}
	if got := SafeDivide(2, 3); got != 0.67 {
		t.Errorf("SafeDivide(2, 3) = %v, want 0.67", got)
	}
	if got := Zero(-5); got != 0 {
		t.Errorf("Zero(-5) = %d, want 0", got)
	}
}

func TestScaleLatency(t *testing.T) {
	tests := []struct {
		value   float64
		base    string
		display string
		want    string
	}{
		{1500, "microseconds", "", "1.50 ms"},
		{250, "microseconds", "", "250.00 us"},
		{0.5, "milliseconds", "", "500.00 us"},
		{90, "seconds", "", "1.50 m"},
		{2, "milliseconds", "microseconds", "2000.00 us"},
		{0, "milliseconds", "", "0.00 ns"},
	}
	for _, tt := range tests {
		got, err := ScaleLatency(tt.value, tt.base, tt.display, 2)
		if err != nil {
			t.Fatalf("ScaleLatency(%v, %s): %v", tt.value, tt.base, err)
		}
		if got != tt.want {
			t.Errorf("ScaleLatency(%v, %s, %q) = %q, want %q", tt.value, tt.base, tt.display, got, tt.want)
		}
	}
	if _, err := ScaleLatency(1, "fortnights", "", 2); err == nil {
		t.Error("ScaleLatency with unknown unit succeeded, want error")
	}
}

func TestMakeTitle(t *testing.T) {
	tests := map[string]string{
		"array_name":       "Array Name",
		"ssd_mapped":       "SSD Mapped",
		"array_id":         "Array ID",
		"ct0_status":       "CT0 Status",
		"iscsi_sessions":   "iSCSI Sessions",
		"ntp_server":       "NTP Server",
		"cpu_busy_pct":     "Cpu Busy PCT",
		"unaccounted_raw":  "Unaccounted Raw",
		"read_bandwidth":   "Read Bandwidth",
		"idle_time":        "Idle Time",
		"gc_backlog":       "GC Backlog",
		"sas_port":         "SAS Port",
		"fc_port_id":       "FC Port ID",
		"mce_events_total": "MCE Events Total",
		"ct_ct_id":         "CT CT ID",
		"ct1_ct0_status":   "CT1 CT0 Status",
	}
	for in, want := range tests {
		if got := MakeTitle(in); got != want {
			t.Errorf("MakeTitle(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRender_ByKind(t *testing.T) {
	tests := []struct {
		name string
		def  model.MetricDefinition
		row  Row
		want string
	}{
		{
			name: "scaled",
			def:  model.MetricDefinition{Name: "ssd_mapped", Kind: model.KindScaledUnits, Field: "ssd_mapped", Scale: "binary_bytes", Precision: 2},
			row:  Row{"ssd_mapped": float64(3 * 1024 * 1024)},
			want: "3.00 MiB",
		},
		{
			name: "scaled from unit string",
			def:  model.MetricDefinition{Name: "ssd_mapped", Kind: model.KindScaledUnits, Field: "ssd_mapped", Scale: "binary_bytes", Precision: 2},
			row:  Row{"ssd_mapped": "2 GiB"},
			want: "2.00 GiB",
		},
		{
			name: "percentage",
			def:  model.MetricDefinition{Name: "pct_used", Kind: model.KindPercentage, Numerator: "used", Denominator: "total", Precision: 2},
			row:  Row{"used": 25, "total": 100},
			want: "25.00%",
		},
		{
			name: "latency",
			def:  model.MetricDefinition{Name: "read_latency", Kind: model.KindLatency, Field: "read_latency", BaseUnit: "microseconds", Precision: 2},
			row:  Row{"read_latency": 1250.0},
			want: "1.25 ms",
		},
		{
			name: "text",
			def:  model.MetricDefinition{Name: "array_name", Kind: model.KindText, Field: "array_name"},
			row:  Row{"array_name": "flasharray-01"},
			want: "flasharray-01",
		},
		{
			name: "plain float",
			def:  model.MetricDefinition{Name: "cpu_busy", Kind: model.KindMetric, Field: "cpu_busy", Precision: 1},
			row:  Row{"cpu_busy": 42.26},
			want: "42.3",
		},
		{
			name: "plain int",
			def:  model.MetricDefinition{Name: "count", Kind: model.KindMetric, Field: "count", Precision: 2},
			row:  Row{"count": 7},
			want: "7",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Render(tt.def, tt.row)
			if err != nil {
				t.Fatalf("Render: %v", err)
			}
			if got != tt.want {
				t.Errorf("Render = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRender_MissingUsesPlaceholder(t *testing.T) {
	defs := []model.MetricDefinition{
		{Name: "a", Kind: model.KindScaledUnits, Field: "a", Scale: "bytes", Placeholder: "0.00 B"},
		{Name: "b", Kind: model.KindPercentage, Numerator: "x", Denominator: "y", Placeholder: "0.00%"},
		{Name: "c", Kind: model.KindLatency, Field: "c", BaseUnit: "milliseconds", Placeholder: "0.00 ms"},
		{Name: "d", Kind: model.KindText, Field: "d", Placeholder: "-"},
	}
	row := Row{"c": math.NaN(), "d": ""}
	for _, def := range defs {
		got, err := Render(def, row)
		if err != nil {
			t.Fatalf("Render(%s): %v", def.Name, err)
		}
		if got != def.Placeholder {
			t.Errorf("Render(%s) = %q, want placeholder %q", def.Name, got, def.Placeholder)
		}
	}
}

func TestRender_BadInputIsError(t *testing.T) {
	def := model.MetricDefinition{Name: "a", Kind: model.KindScaledUnits, Field: "a", Scale: "bytes"}
	if _, err := Render(def, Row{"a": "many"}); err == nil {
		t.Error("Render with unparseable value succeeded, want error")
	}
}

func TestRender_Actions(t *testing.T) {
	row := Row{
		"unreported_space":  float64(10 << 30),
		"reclaimable_space": float64(3 << 30),
		"reported_pyramid":  float64(2 << 30),
		"ssd_mapped":        float64(4 << 30),
	}

	raw := model.MetricDefinition{Name: "unaccounted_raw", Action: "calculate_raw_unaccounted"}
	got, err := Render(raw, row)
	if err != nil {
		t.Fatalf("Render raw: %v", err)
	}
	if got != "5368709120" {
		t.Errorf("unaccounted_raw = %q, want 5368709120", got)
	}

	space := model.MetricDefinition{Name: "unaccounted_space", Action: "scale_unaccounted_space", Precision: 2}
	if got, _ := Render(space, row); got != "5.00 GiB" {
		t.Errorf("unaccounted_space = %q, want 5.00 GiB", got)
	}
	if got, _ := Render(space, Row{"unaccounted_raw": 1024.0}); got != "1.00 KiB" {
		t.Errorf("unaccounted_space from raw = %q, want 1.00 KiB", got)
	}

	ratio := model.MetricDefinition{
		Name: "unreported_ratio", Action: "format_unreported_ratio",
		Numerator: "unreported_space", Denominator: "ssd_mapped", Precision: 2,
	}
	if got, _ := Render(ratio, row); got != "2.50:1" {
		t.Errorf("unreported_ratio = %q, want 2.50:1", got)
	}

	negative := Row{"unreported_space": 1.0, "reclaimable_space": 5.0, "reported_pyramid": 5.0}
	if got, _ := Render(raw, negative); got != "0" {
		t.Errorf("negative unaccounted_raw = %q, want 0", got)
	}

	missing := model.MetricDefinition{Name: "unaccounted_space", Action: "scale_unaccounted_space", Placeholder: "0.00 B"}
	if got, _ := Render(missing, Row{}); got != "0.00 B" {
		t.Errorf("missing inputs = %q, want placeholder", got)
	}
}

func TestHasActionAndScale(t *testing.T) {
	for _, name := range ActionNames() {
		if !HasAction(name) {
			t.Errorf("HasAction(%q) = false", name)
		}
	}
	if HasAction("nope") {
		t.Error("HasAction(nope) = true")
	}
	for _, s := range []string{"bandwidth", "iops", "binary_bytes", "bytes", "bits"} {
		if !HasScale(s) {
			t.Errorf("HasScale(%q) = false", s)
		}
	}
}
