package engine

import (
	"fmt"
	"time"

	"perimguard/internal/model"
)

var classLabels = map[model.Classification]string{
	model.ClassBlack:       "黑名单",
	model.ClassStrongAlert: "强告警",
	model.ClassGray:        "灰名单",
	model.ClassWhite:       "白名单",
	model.ClassLogOnly:     "仅记录",
}

func buildAssessment(f *Features, acc *Accumulator, class model.Classification) model.Assessment {
	return model.Assessment{
		SubjectType:    f.Subject.Type,
		SubjectKey:     f.Subject.Key,
		Score:          acc.Total,
		Classification: class,
		Summary:        buildSummary(class, acc, len(f.Events)),
		WindowStart:    f.WindowStart,
		WindowEnd:      f.Now,
		UpdatedAt:      time.Now().UTC(),
		EventCount:     len(f.Events),
		Evidence:       acc.Evidence(),
	}
}

// buildSummary renders the operator-facing one-liner. The top rule is the
// highest-weight score hit; catalogue order breaks ties.
func buildSummary(class model.Classification, acc *Accumulator, eventCount int) string {
	label, ok := classLabels[class]
	if !ok {
		label = string(class)
	}
	top := "无触发规则"
	best := 0
	for _, hit := range acc.Hits {
		if hit.Weight > best {
			best = hit.Weight
			top = hit.Description
		}
	}
	if best == 0 {
		switch {
		case len(acc.DirectBlack) > 0:
			top = acc.DirectBlack[0].Reason
		case len(acc.ForcedGray) > 0:
			top = acc.ForcedGray[0].Reason
		case len(acc.White) > 0:
			top = acc.White[0].Reason
		}
	}
	return fmt.Sprintf("%s | %d 分 | 事件 %d 条 | %s", label, acc.Total, eventCount, top)
}
