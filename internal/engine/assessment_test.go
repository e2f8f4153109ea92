package engine

import (
	"strings"
	"testing"

	"perimguard/internal/model"
)

func TestBuildSummaryFormat(t *testing.T) {
	acc := NewAccumulator()
	acc.AddScore("aoi_entry", 25, "夜间闯入防区")
	acc.AddScore("bucket_density", 2, "近30分钟内活动覆盖 1 个时间段")
	got := buildSummary(model.ClassGray, acc, 3)
	want := "灰名单 | 27 分 | 事件 3 条 | 夜间闯入防区"
	if got != want {
		t.Fatalf("summary %q, want %q", got, want)
	}
}

func TestBuildSummaryMarkerOnly(t *testing.T) {
	acc := NewAccumulator()
	acc.MarkWhite("farm_whitelist", "多日白天规律出现，疑似农作人员")
	got := buildSummary(model.ClassWhite, acc, 9)
	if !strings.HasPrefix(got, "白名单 | 0 分 | 事件 9 条 | ") {
		t.Fatalf("summary %q", got)
	}
	if !strings.Contains(got, "农作") {
		t.Fatalf("marker reason missing from summary: %q", got)
	}
}

func TestBuildSummaryNoHits(t *testing.T) {
	acc := NewAccumulator()
	got := buildSummary(model.ClassLogOnly, acc, 1)
	want := "仅记录 | 0 分 | 事件 1 条 | 无触发规则"
	if got != want {
		t.Fatalf("summary %q, want %q", got, want)
	}
}
