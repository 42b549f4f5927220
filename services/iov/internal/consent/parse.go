package consent

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Verdict is the structured reading of an oracle narrative. Missing markers
// leave zero values; callers treat anything other than an explicit approve as
// a denial.
type Verdict struct {
	Decision       string
	Justification  string
	WalletApproval string
	Data           map[string]any
	MotionSafe     bool
	Suspicious     bool
}

// Approved reports whether the narrative carried an explicit approve marker.
func (v Verdict) Approved() bool { return v.Decision == "approve" }

// AutoShare reports whether the oracle approved without requiring owner
// confirmation.
func (v Verdict) AutoShare() bool { return v.Approved() && v.WalletApproval == "no" }

var (
	decisionRe       = regexp.MustCompile(`(?is)\*\*Decision:\*\* (approve|deny)\n`)
	justificationRe  = regexp.MustCompile(`(?s)\*\*Justification:\*\* (.+?)\n`)
	walletApprovalRe = regexp.MustCompile(`(?is)\*\*User Wallet Approval:\*\* (yes|no)`)
	returnedDataRe   = regexp.MustCompile(`(?s)\*\*Return Requested Data:\*\* (.+?)\n`)
)

// ParseVerdict extracts the decision markers from an oracle narrative. The
// returned data is the parsed JSON of the returned-data marker, or a map with
// a single "raw" key when the marker is not valid JSON.
func ParseVerdict(text string) Verdict {
	v := Verdict{
		MotionSafe: strings.Contains(text, "MOTION_SAFE"),
		Suspicious: strings.Contains(text, "SUSPICIOUS"),
	}
	if m := decisionRe.FindStringSubmatch(text); m != nil {
		v.Decision = strings.ToLower(strings.TrimSpace(m[1]))
	}
	if m := justificationRe.FindStringSubmatch(text); m != nil {
		v.Justification = strings.TrimSpace(m[1])
	}
	if m := walletApprovalRe.FindStringSubmatch(text); m != nil {
		v.WalletApproval = strings.ToLower(strings.TrimSpace(m[1]))
	}
	if m := returnedDataRe.FindStringSubmatch(text); m != nil {
		raw := strings.TrimSpace(m[1])
		var data map[string]any
		if err := json.Unmarshal([]byte(raw), &data); err == nil {
			v.Data = data
		} else if raw != "" {
			v.Data = map[string]any{"raw": raw}
		}
	}
	return v
}
