package cliui

import (
	"fmt"
	"strings"

	"github.com/papercomputeco/drills/pkg/pack"
	"github.com/papercomputeco/drills/pkg/study"
	"github.com/papercomputeco/drills/pkg/utils"
)

const promptWidth = 48

// PackMarkdown lays a pack out as a markdown document: a summary line, the
// weak topics it targets, and one table row per item.
func PackMarkdown(p *pack.Pack) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Daily pack for %s\n\n", p.UserID)

	if p.Empty() {
		b.WriteString("_Nothing to study today._\n")
		return b.String()
	}

	fmt.Fprintf(&b, "**%d items**: %d due, %d weak topic, %d new\n\n",
		p.Breakdown.Total(), p.Breakdown.DueCount, p.Breakdown.WeakTopicCount, p.Breakdown.NewCount)

	if len(p.WeakTopics) > 0 {
		fmt.Fprintf(&b, "Weak topics: %s\n\n", strings.Join(p.WeakTopics, ", "))
	}

	b.WriteString("| # | Bucket | Type | Prompt | Topics | Due |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for i, it := range p.Items {
		fmt.Fprintf(&b, "| %d | %s | %s | %s | %s | %s |\n",
			i+1,
			it.Bucket,
			it.ItemType,
			escapeCell(promptOf(it.ReviewItem)),
			escapeCell(strings.Join(it.Topics, ", ")),
			it.DueAt.Format("Jan 2"),
		)
	}
	return b.String()
}

// RenderPack renders PackMarkdown for the terminal, falling back to the raw
// markdown when the renderer fails.
func RenderPack(p *pack.Pack) string {
	out, err := RenderMarkdown(PackMarkdown(p))
	if err != nil {
		return PackMarkdown(p)
	}
	return out
}

func promptOf(item *study.ReviewItem) string {
	if item.Prompt == "" {
		return item.Ref().String()
	}
	return utils.Truncate(item.Prompt, promptWidth)
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
