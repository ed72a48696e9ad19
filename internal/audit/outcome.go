package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/seo-orchestrator/internal/seo"
)

// Auditor evaluates one category.
type Auditor interface {
	Category() seo.Category
	Audit(ctx context.Context) (*seo.CategoryResult, error)
}

// Outcome is the explicit result of invoking one auditor.
type Outcome struct {
	Category seo.Category
	Result   *seo.CategoryResult
	Err      error
	Duration time.Duration
}

var errNoResult = errors.New("auditor returned no result")

// invoke runs a and converts panics into errors.
func invoke(ctx context.Context, a Auditor, now func() time.Time) (out Outcome) {
	out.Category = a.Category()
	started := now()
	defer func() {
		if r := recover(); r != nil {
			out.Result = nil
			out.Err = fmt.Errorf("auditor panicked: %v", r)
		}
		out.Duration = now().Sub(started)
	}()
	out.Result, out.Err = a.Audit(ctx)
	return out
}

// Resolve returns the category result to record: the auditor's own result with
// its score clamped, or a failed category.
func (o Outcome) Resolve() *seo.CategoryResult {
	if o.Err != nil {
		return seo.FailedCategory(o.Err)
	}
	if o.Result == nil {
		return seo.FailedCategory(errNoResult)
	}
	res := *o.Result
	res.Score = seo.ClampScore(float64(res.Score))
	if res.Issues == nil {
		res.Issues = []seo.Issue{}
	}
	return &res
}
