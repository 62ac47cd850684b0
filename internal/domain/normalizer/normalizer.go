// Package normalizer maps loosely keyed scraper rows onto the canonical job
// fields. It is pure: no I/O, no clock, same input same output.
package normalizer

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"jobsync/internal/domain/entity"
)

const (
	DefaultTitle       = "Untitled Job"
	DefaultDescription = "No description available"
	applyPrefix        = "Apply at: "

	// Epoch values below this are seconds, at or above it milliseconds.
	// 946684800000 ms is 2000-01-01T00:00:00Z.
	epochMillisThreshold = 946684800000
	maxEpochMillis       = 8.64e15
)

var numericPrefix = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

// Normalized is the canonical view of one raw row.
type Normalized struct {
	Title       string
	Description string
	Salary      *string
	PostedDate  *time.Time
}

// Candidate keys per field, tried in order. Extend here, not in code.
var (
	TitleKeys = []string{
		"title", "jobTitle", "job_title", "Job_Title", "job-title",
		"job_name", "jobName", "name",
		"position", "jobPosition", "job_position", "job-position",
		"heading", "jobHeading", "job_heading",
		"positionTitle", "position_title",
		"role", "jobRole", "job_role",
	}

	DescriptionKeys = []string{
		"description", "jobDescription", "job_description", "job-description",
		"Job_location", "job_location", "location",
		"btn_URL", "url", "jobUrl",
		"desc", "jobDesc", "job_desc",
		"details", "jobDetails", "job_details", "job-details",
		"content", "jobContent", "job_content",
		"body", "jobBody", "job_body",
		"summary", "jobSummary", "job_summary",
		"overview", "jobOverview", "job_overview",
		"requirements", "jobRequirements", "job_requirements",
		"text", "jobText", "job_text",
	}

	SalaryKeys = []string{
		"salary", "jobSalary", "job_salary", "job-salary",
		"amount", "jobAmount", "job_amount",
		"price", "jobPrice", "job_price",
		"wage", "jobWage", "job_wage",
		"pay", "jobPay", "job_pay",
		"compensation", "jobCompensation", "job_compensation",
		"rate", "jobRate", "job_rate",
		"payment", "jobPayment", "job_payment",
		"income", "jobIncome", "job_income",
		"remuneration", "jobRemuneration", "job_remuneration",
	}

	DateKeys = []string{
		"postDate", "post_date", "post-date",
		"postedDate", "posted_date", "posted-date",
		"date", "jobDate", "job_date", "job-date",
		"createdDate", "created_date", "created-date",
		"publishedDate", "published_date", "published-date",
		"timestamp", "jobTimestamp", "job_timestamp",
		"postTime", "post_time", "post-time",
		"postedTime", "posted_time", "posted-time",
		"createdAt", "created_at", "created-at",
		"publishedAt", "published_at", "published-at",
		"datePosted", "date_posted", "date-posted",
		"listingDate", "listing_date", "listing-date",
	}

	// Used to synthesize a description when none of DescriptionKeys match.
	LocationKeys = []string{"Job_location", "job_location", "location", "desc"}
	URLKeys      = []string{"btn_URL", "url", "jobUrl", "image"}
)

// Normalize never fails; missing fields fall back to their defaults.
func Normalize(raw entity.RawRecord) Normalized {
	out := Normalized{Title: DefaultTitle}

	if title, ok := FindValue(raw, TitleKeys); ok {
		out.Title = title
	}

	desc, ok := FindValue(raw, DescriptionKeys)
	if !ok || desc == DefaultDescription {
		desc = fallbackDescription(raw)
	}
	out.Description = desc

	if salary, ok := FindValue(raw, SalaryKeys); ok {
		out.Salary = &salary
	}

	if rawDate, ok := FindValue(raw, DateKeys); ok {
		out.PostedDate = ParseDate(rawDate)
	}

	return out
}

// FindValue returns the trimmed text of the first candidate key holding a
// usable value. Exact-case keys are tried first, then a case-insensitive pass.
func FindValue(raw entity.RawRecord, keys []string) (string, bool) {
	for _, key := range keys {
		if v, ok := raw[key]; ok {
			if s, ok := usable(v); ok {
				return s, true
			}
		}
	}

	if len(raw) == 0 {
		return "", false
	}
	rawKeys := make([]string, 0, len(raw))
	for k := range raw {
		rawKeys = append(rawKeys, k)
	}
	sort.Strings(rawKeys)

	for _, key := range keys {
		for _, rk := range rawKeys {
			if !strings.EqualFold(rk, key) {
				continue
			}
			if s, ok := usable(raw[rk]); ok {
				return s, true
			}
		}
	}
	return "", false
}

func usable(v entity.Value) (string, bool) {
	if v.IsNull() {
		return "", false
	}
	s := strings.TrimSpace(v.String())
	if s == "" {
		return "", false
	}
	return s, true
}

func fallbackDescription(raw entity.RawRecord) string {
	var parts []string
	if loc, ok := firstTruthy(raw, LocationKeys); ok {
		parts = append(parts, loc)
	}
	if url, ok := firstTruthy(raw, URLKeys); ok {
		parts = append(parts, applyPrefix+url)
	}
	if len(parts) == 0 {
		return DefaultDescription
	}
	return strings.Join(parts, "\n")
}

func firstTruthy(raw entity.RawRecord, keys []string) (string, bool) {
	for _, key := range keys {
		if v, ok := raw[key]; ok && v.Truthy() {
			return strings.TrimSpace(v.String()), true
		}
	}
	return "", false
}

// ParseDate tries calendar formats first (bare 10 and 13 digit values are
// read as unix seconds and milliseconds there) and falls back to epoch
// parsing of the leading numeric prefix. Unparseable input yields nil.
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	if t, err := dateparse.ParseIn(s, time.UTC); err == nil {
		t = t.UTC()
		return &t
	}

	prefix := numericPrefix.FindString(s)
	if prefix == "" {
		return nil
	}
	n, err := strconv.ParseFloat(prefix, 64)
	if err != nil {
		return nil
	}
	return fromEpoch(n)
}

func fromEpoch(n float64) *time.Time {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return nil
	}
	ms := n
	if n < epochMillisThreshold {
		ms = n * 1000
	}
	if math.Abs(ms) > maxEpochMillis {
		return nil
	}
	t := time.UnixMilli(int64(math.Round(ms))).UTC()
	return &t
}
