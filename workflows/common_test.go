package workflows

import (
	"strings"
	"testing"

	"dhlprep/normalization"
)

func TestSafeSheetName(t *testing.T) {
	tn := normalization.NewTextNormalizer()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "Cairo Office", want: "Cairo Office"},
		{name: "forbidden chars", in: "Sales: EU/Africa [2025]", want: "Sales EU Africa 2025"},
		{name: "empty", in: "", want: "DATA"},
		{name: "only forbidden", in: "///", want: "DATA"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SafeSheetName(tn, tt.in); got != tt.want {
				t.Errorf("SafeSheetName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	long := strings.Repeat("Департамент ", 10)
	if got := SafeSheetName(tn, long); len([]rune(got)) > 31 {
		t.Errorf("имя листа длиннее 31 символа: %q", got)
	}
}

func TestSafeFileName(t *testing.T) {
	tn := normalization.NewTextNormalizer()

	tests := []struct {
		in   string
		want string
	}{
		{in: "Sales & Marketing (EU)", want: "Sales_Marketing_EU"},
		{in: "plain-name_1", want: "plain-name_1"},
		{in: "///", want: "TAB"},
		{in: "", want: "TAB"},
	}
	for _, tt := range tests {
		if got := SafeFileName(tn, tt.in); got != tt.want {
			t.Errorf("SafeFileName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSheetCode(t *testing.T) {
	tn := normalization.NewTextNormalizer()
	used := make(map[string]int)

	if got := SheetCode(tn, "Sales Department", used); got != "SALESD" {
		t.Errorf("SheetCode = %q, want SALESD", got)
	}
	// повторный код получает числовой суффикс
	if got := SheetCode(tn, "Sales Dep", used); got != "SALESD2" {
		t.Errorf("повторный SheetCode = %q, want SALESD2", got)
	}
	if got := SheetCode(tn, "Sales Dept", used); got != "SALESD3" {
		t.Errorf("третий SheetCode = %q, want SALESD3", got)
	}
	if got := SheetCode(tn, "", used); got != "SHEET" {
		t.Errorf("SheetCode для пустого имени = %q, want SHEET", got)
	}
	if got := SheetCode(tn, "HR", used); got != "HR" {
		t.Errorf("SheetCode = %q, want HR", got)
	}
}

func TestTodayString(t *testing.T) {
	got := TodayString()
	if len(got) != 10 || got[2] != '-' || got[5] != '-' {
		t.Errorf("TodayString() = %q, ожидали формат DD-MM-YYYY", got)
	}
}
