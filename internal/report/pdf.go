package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/JakeFAU/seo-orchestrator/internal/seo"
)

const maxTrendRows = 12

// RenderPDF builds a one page A4 report of latest plus the score trend.
func RenderPDF(latest seo.AuditRun, summary Summary, generated time.Time) ([]byte, error) {
	p := gofpdf.New("P", "mm", "A4", "")
	p.SetTitle("Technical SEO report", false)
	p.AddPage()

	p.SetFont("Arial", "B", 16)
	p.Cell(0, 10, "Technical SEO report")
	p.Ln(10)
	p.SetFont("Arial", "", 10)
	p.Cell(0, 6, fmt.Sprintf("Generated %s", generated.UTC().Format(time.RFC1123)))
	p.Ln(6)
	p.Cell(0, 6, fmt.Sprintf("Audit %s at %s", latest.ID, latest.Timestamp.UTC().Format(time.RFC3339)))
	p.Ln(10)

	p.SetFont("Arial", "B", 12)
	p.Cell(0, 8, fmt.Sprintf("Overall score: %d (%+d)", latest.OverallScore, summary.Change))
	p.Ln(8)
	p.SetFont("Arial", "", 10)
	p.Cell(0, 6, fmt.Sprintf("Passed %d, warning %d, critical %d, disabled %d",
		latest.Summary.Passed, latest.Summary.Warning, latest.Summary.Critical, latest.Summary.Disabled))
	p.Ln(10)

	section(p, "Categories")
	for _, cat := range sortedCategories(latest.Categories) {
		res := latest.Categories[cat]
		line := fmt.Sprintf("%-24s disabled", cat)
		if res != nil {
			line = fmt.Sprintf("%-24s %3d  (%d issues)", cat, res.Score, len(res.Issues))
		}
		p.Cell(0, 6, line)
		p.Ln(6)
	}
	p.Ln(4)

	if len(latest.Recommendations) > 0 {
		section(p, "Recommendations")
		for _, rec := range latest.Recommendations {
			p.MultiCell(0, 6, fmt.Sprintf("[%s] %s: %s", strings.ToUpper(string(rec.Priority)), rec.Title, rec.Description), "", "L", false)
		}
		p.Ln(4)
	}

	section(p, fmt.Sprintf("Score trend (%d audits, average %.1f, best %d, worst %d)",
		summary.Runs, summary.Average, summary.Best, summary.Worst))
	trend := summary.Trend
	if len(trend) > maxTrendRows {
		trend = trend[len(trend)-maxTrendRows:]
	}
	for _, pt := range trend {
		p.Cell(0, 6, fmt.Sprintf("%s  %3d  %s", pt.Timestamp.UTC().Format("2006-01-02 15:04"), pt.Score, pt.ID))
		p.Ln(6)
	}

	var buf bytes.Buffer
	if err := p.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func section(p *gofpdf.Fpdf, title string) {
	p.SetFont("Arial", "B", 11)
	p.Cell(0, 7, title)
	p.Ln(7)
	p.SetFont("Courier", "", 9)
}
