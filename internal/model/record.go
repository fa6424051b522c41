package model

// Review is a single scraped review fragment carrying the exact outward
// field set expected by downstream consumers. Fields whose shape varies
// between retailers (ids, numeric ratings vs. string ratings, image lists)
// are deliberately loose-typed; they pass through unmodified.
type Review struct {
	InternalReviewID     string `json:"internalReviewId"`
	RetailerReviewID     any    `json:"retailerReviewId"`
	ReviewDate           string `json:"reviewDate"`
	ReviewDateISO        string `json:"reviewDateISO"`
	Rating               any    `json:"rating"`
	ReviewTitle          string `json:"reviewTitle"`
	ReviewText           string `json:"reviewText"`
	ParentOrChild        string `json:"parentOrChild"`
	ReviewURL            string `json:"reviewUrl"`
	ReviewType           string `json:"reviewType"`
	VerifiedPurchase     any    `json:"verifiedPurchase"`
	HelpfulReviewCount   any    `json:"helpfulReviewCount"`
	ReviewCustomerImages any    `json:"reviewCustomerImages"`
}

// Answer is a single answer inside a question thread.
type Answer struct {
	AnswerID   any    `json:"answerId"`
	AnswerDate string `json:"answerDate"`
	Answer     string `json:"answer"`
}

// Question is a scraped question fragment with its nested answers.
type Question struct {
	QuestionID      any      `json:"questionId"`
	QuestionURL     string   `json:"questionUrl"`
	QuestionDate    string   `json:"questionDate"`
	QuestionDateISO string   `json:"questionDateISO"`
	Question        string   `json:"question"`
	Answers         []Answer `json:"answers"`
}

// Fragment is one incremental scrape result for a product. Any of the
// three sections may be empty; an empty fragment merges as a no-op.
type Fragment struct {
	Details             map[string]any `json:"details,omitempty"`
	Reviews             []Review       `json:"reviews,omitempty"`
	QuestionsAndAnswers []Question     `json:"questionsAndAnswers,omitempty"`
}

// PartialRecord accumulates fragments for a single product across the run.
// Details merge last-write-wins per field; reviews and Q&A are append-only.
type PartialRecord struct {
	Details             map[string]any `json:"details"`
	Reviews             []Review       `json:"reviews"`
	QuestionsAndAnswers []Question     `json:"questionsAndAnswers"`
}

// NewPartialRecord returns an empty skeleton ready to merge into.
func NewPartialRecord() *PartialRecord {
	return &PartialRecord{
		Details:             map[string]any{},
		Reviews:             []Review{},
		QuestionsAndAnswers: []Question{},
	}
}

// Output is the finished record envelope handed to the sink once the
// caller declares a product complete.
type Output struct {
	RetailerName        string         `json:"retailerName"`
	Market              string         `json:"market"`
	Site                string         `json:"site"`
	Details             map[string]any `json:"details"`
	Reviews             []Review       `json:"reviews"`
	QuestionsAndAnswers []Question     `json:"questionsAndAnswers"`
}

// AsMap renders the wire form of the record. Validation and the sink both
// operate on this shape because null detection and extra-key detection only
// exist at the wire level, not on the typed structs.
func (o *Output) AsMap() map[string]any {
	reviews := make([]map[string]any, 0, len(o.Reviews))
	for _, r := range o.Reviews {
		reviews = append(reviews, map[string]any{
			"internalReviewId":     r.InternalReviewID,
			"retailerReviewId":     r.RetailerReviewID,
			"reviewDate":           r.ReviewDate,
			"reviewDateISO":        r.ReviewDateISO,
			"rating":               r.Rating,
			"reviewTitle":          r.ReviewTitle,
			"reviewText":           r.ReviewText,
			"parentOrChild":        r.ParentOrChild,
			"reviewUrl":            r.ReviewURL,
			"reviewType":           r.ReviewType,
			"verifiedPurchase":     r.VerifiedPurchase,
			"helpfulReviewCount":   r.HelpfulReviewCount,
			"reviewCustomerImages": r.ReviewCustomerImages,
		})
	}

	questions := make([]map[string]any, 0, len(o.QuestionsAndAnswers))
	for _, q := range o.QuestionsAndAnswers {
		answers := make([]map[string]any, 0, len(q.Answers))
		for _, a := range q.Answers {
			answers = append(answers, map[string]any{
				"answerId":   a.AnswerID,
				"answerDate": a.AnswerDate,
				"answer":     a.Answer,
			})
		}
		questions = append(questions, map[string]any{
			"questionId":      q.QuestionID,
			"questionUrl":     q.QuestionURL,
			"questionDate":    q.QuestionDate,
			"questionDateISO": q.QuestionDateISO,
			"question":        q.Question,
			"answers":         answers,
		})
	}

	return map[string]any{
		"retailerName":        o.RetailerName,
		"market":              o.Market,
		"site":                o.Site,
		"details":             o.Details,
		"reviews":             reviews,
		"questionsAndAnswers": questions,
	}
}
