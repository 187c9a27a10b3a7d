package schedule

import (
	"testing"
)

func TestParamsValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		params  Params
		wantErr bool
	}{
		{name: "fixed days", params: FixedInterval{Days: 30}},
		{name: "fixed months", params: FixedInterval{Months: 6}},
		{name: "fixed neither", params: FixedInterval{}, wantErr: true},
		{name: "fixed both", params: FixedInterval{Days: 7, Months: 1}, wantErr: true},
		{name: "calendar rule", params: CalendarRule{Expr: "0 9 * * 1"}},
		{name: "calendar rule empty", params: CalendarRule{}, wantErr: true},
		{name: "seasonal", params: Seasonal{Months: []int{2, 4, 6}, DayOfMonth: 31}},
		{name: "seasonal empty months", params: Seasonal{}, wantErr: true},
		{name: "seasonal month zero", params: Seasonal{Months: []int{0, 13, 15}}, wantErr: true},
		{name: "seasonal month thirteen", params: Seasonal{Months: []int{5, 13}}, wantErr: true},
		{name: "usage", params: UsageBased{CounterType: "hours", Threshold: 50}},
		{name: "usage zero threshold", params: UsageBased{CounterType: "hours"}, wantErr: true},
		{name: "usage negative threshold", params: UsageBased{CounterType: "hours", Threshold: -1}, wantErr: true},
		{name: "usage no counter type", params: UsageBased{Threshold: 50}, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if tt.wantErr && err == nil {
				t.Fatalf("Validate() = nil, want error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("Validate() error: %v", err)
			}
		})
	}
}

func TestParamsRoundTrip(t *testing.T) {
	t.Parallel()
	variants := []Params{
		FixedInterval{Days: 90},
		CalendarRule{Expr: "@monthly"},
		Seasonal{Months: []int{3, 9}, DayOfMonth: 15},
		UsageBased{CounterType: "cycles", Threshold: 1000, ResetOnTrigger: true},
	}
	for _, p := range variants {
		b, err := EncodeParams(p)
		if err != nil {
			t.Fatalf("EncodeParams(%v): %v", p, err)
		}
		got, err := DecodeParams(p.Kind(), b)
		if err != nil {
			t.Fatalf("DecodeParams(%s): %v", p.Kind(), err)
		}
		if got.Kind() != p.Kind() {
			t.Fatalf("round trip changed kind: %s -> %s", p.Kind(), got.Kind())
		}
		if err := got.Validate(); err != nil {
			t.Fatalf("round-tripped params invalid: %v", err)
		}
	}
}

func TestDecodeParamsUnknownKind(t *testing.T) {
	t.Parallel()
	if _, err := DecodeParams(Kind("bogus"), []byte(`{}`)); err == nil {
		t.Fatal("expected error for unknown kind")
	}
	if _, err := DecodeParams(KindSeasonal, []byte(`not json`)); err == nil {
		t.Fatal("expected error for malformed params")
	}
}
