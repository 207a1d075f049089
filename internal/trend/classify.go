package trend

// Classification categories used by the dashboard. The KPI panel renders
// both English and Farsi labels.
const (
	CategoryNone = "none"
	CategoryInc  = "inc"
	CategoryDec  = "dec"
)

// Classify maps (slope, p-value) to the fixed 3-way classification at the
// given significance level. A significant test with a zero slope is not
// meaningful for the UI and is reported as none.
func Classify(senSlope, pValue, alpha float64) (category, labelEN, labelFA, symbol string) {
	if pValue > alpha {
		return CategoryNone, "No Significant Trend", "بدون روند معنی‌دار", "—"
	}
	if senSlope > 0 {
		return CategoryInc, "Increasing Trend (Wetter)", "روند افزایشی (مرطوب‌تر)", "↑"
	}
	if senSlope < 0 {
		return CategoryDec, "Decreasing Trend (Drier)", "روند کاهشی (خشک‌تر)", "↓"
	}
	return CategoryNone, "No Significant Trend", "بدون روند معنی‌دار", "—"
}

func (r *Result) applyClassification() {
	r.Category, r.LabelEN, r.LabelFA, r.Symbol = Classify(r.SenSlope, r.PValue, DefaultAlpha)
}
