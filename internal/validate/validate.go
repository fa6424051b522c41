// Package validate checks a finished record against the exact outward
// shape downstream consumers expect, before it is handed to the sink.
// Failures are diagnostic, never fatal: everything wrong with a record is
// logged with its structural context and the record is reported invalid.
package validate

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

var rootKeys = []string{"retailerName", "market", "site", "details", "reviews", "questionsAndAnswers"}

// detailsKeys is the full field set a completely scraped product carries.
var detailsKeys = []string{
	"productName", "category", "subcategory", "brand", "retailerProductCode", "upc",
	"manufacturer", "productUrl", "numberOfReviews", "rating", "aboutThisItem",
	"additionalProductDescription", "ingredients", "productImageUrl",
	"dateFirstAvailable", "dateAddedToCatalog",
}

// minDetailsKeys is the reduced set accepted from retailers that only
// populate the minimum fields. The tier is picked by how many keys the
// record actually carries.
var minDetailsKeys = []string{"productName", "productUrl", "numberOfReviews", "rating"}

var reviewKeys = []string{
	"internalReviewId", "retailerReviewId", "reviewDate", "reviewDateISO", "rating",
	"reviewTitle", "reviewText", "parentOrChild", "reviewUrl", "reviewType",
	"verifiedPurchase", "helpfulReviewCount", "reviewCustomerImages",
}

var questionKeys = []string{"questionId", "questionUrl", "questionDate", "questionDateISO", "question", "answers"}

var answerKeys = []string{"answerId", "answerDate", "answer"}

// Output reports whether the record matches the outward contract: exact
// key sets at every level and no null values anywhere. All failures found
// are logged; within each list the key-set check stops at the first
// mismatching entry.
func Output(record map[string]any) bool {
	ok := true

	ok = validateKeys("root", rootKeys, keysOf(record)) && ok
	ok = validateValues("root", record) && ok

	if details, isMap := record["details"].(map[string]any); isMap {
		found := keysOf(details)
		if len(found) <= len(minDetailsKeys) {
			ok = validateKeys("details", minDetailsKeys, found) && ok
		} else {
			ok = validateKeys("details", detailsKeys, found) && ok
		}
		ok = validateValues("details", details) && ok
	}

	if reviews, isList := record["reviews"].([]map[string]any); isList {
		ok = validateList("review", reviewKeys, reviews) && ok
	} else if raw, isAny := record["reviews"].([]any); isAny {
		ok = validateList("review", reviewKeys, asMaps(raw)) && ok
	}

	questions, isList := record["questionsAndAnswers"].([]map[string]any)
	if !isList {
		if raw, isAny := record["questionsAndAnswers"].([]any); isAny {
			questions, isList = asMaps(raw), true
		}
	}
	if isList {
		for _, q := range questions {
			if !validateKeys("questionsAndAnswers", questionKeys, keysOf(q)) {
				ok = false
				break
			}
			ok = validateValues("question", q) && ok

			if answers, isMaps := q["answers"].([]map[string]any); isMaps {
				ok = validateList("questionsAndAnswers.answer", answerKeys, answers) && ok
			} else if raw, isAny := q["answers"].([]any); isAny {
				ok = validateList("questionsAndAnswers.answer", answerKeys, asMaps(raw)) && ok
			}
		}
	}

	return ok
}

// validateList checks every entry's key set and values, stopping the
// key-set scan at the first mismatching entry.
func validateList(typ string, expected []string, entries []map[string]any) bool {
	ok := true
	for _, entry := range entries {
		if !validateKeys(typ, expected, keysOf(entry)) {
			return false
		}
		ok = validateValues(typ, entry) && ok
	}
	return ok
}

// validateKeys compares the found key set against the expected one; both
// missing and additional keys fail.
func validateKeys(typ string, expected, found []string) bool {
	var missing, additional []string
	for _, k := range expected {
		if !contains(found, k) {
			missing = append(missing, k)
		}
	}
	for _, k := range found {
		if !contains(expected, k) {
			additional = append(additional, k)
		}
	}

	var errs []string
	if len(missing) > 0 {
		errs = append(errs, fmt.Sprintf("Missing keys: %s", strings.Join(missing, ", ")))
	}
	if len(additional) > 0 {
		errs = append(errs, fmt.Sprintf("Additional keys: %s", strings.Join(additional, ", ")))
	}
	if len(errs) > 0 {
		zap.L().Error(fmt.Sprintf("Invalid output format for %q (%s)!", typ, strings.Join(errs, ", ")))
		return false
	}
	return true
}

// validateValues rejects nil values; empty strings and zeros pass.
func validateValues(typ string, object map[string]any) bool {
	errors := 0
	for _, key := range keysOf(object) {
		if object[key] == nil {
			zap.L().Error(fmt.Sprintf("Invalid value null for key %q!", typ+"."+key))
			errors++
		}
	}
	return errors == 0
}

// keysOf returns the map keys in stable order so log output is
// deterministic.
func keysOf(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func asMaps(raw []any) []map[string]any {
	out := make([]map[string]any, 0, len(raw))
	for _, v := range raw {
		if m, ok := v.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
