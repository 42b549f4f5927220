// Package consent evaluates data sharing requests against wallet policy and
// the decision oracle, and applies the resulting approvals, denials, and
// blocks.
package consent

import "iovid/services/iov/internal/wallet"

// Permission is the outcome of a pure policy check.
type Permission int

const (
	// PermissionDenied means policy forbids the request outright.
	PermissionDenied Permission = iota
	// PermissionGranted means policy allows the request without owner
	// involvement.
	PermissionGranted
	// PermissionNeedsConsent means policy allows the requester type but the
	// owner must approve.
	PermissionNeedsConsent
)

// CheckPermission applies the wallet policy matrix. Precedence: unknown data
// types deny; emergency auto-share wins before the requester-type check;
// unlisted requester types deny; consent-requiring policies defer to the
// owner.
func CheckPermission(policies map[string]wallet.Policy, requesterType, dataType string, isEmergency bool) Permission {
	policy, ok := policies[dataType]
	if !ok {
		return PermissionDenied
	}
	if isEmergency && policy.AutoShareEmergency {
		return PermissionGranted
	}
	allowed := false
	for _, t := range policy.ShareWith {
		if t == requesterType {
			allowed = true
			break
		}
	}
	if !allowed {
		return PermissionDenied
	}
	if policy.RequiresConsent && !isEmergency {
		return PermissionNeedsConsent
	}
	return PermissionGranted
}
