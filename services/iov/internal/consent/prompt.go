package consent

import (
	"encoding/json"
	"fmt"
	"strings"

	"iovid/services/iov/internal/sensors"
	"iovid/services/iov/internal/wallet"
)

// requesterNotes keys on the wire requester type.
var requesterNotes = map[string]string{
	"mechanic": "MECHANIC REQUEST: weigh the necessity of the requested data for " +
		"diagnostics and repair. Prioritize requests tied to identified issues or " +
		"safety concerns, and question data that looks excessive for the stated purpose. " +
		"Mention what issue the sensor data suggests the request is likely for.",
	"service": "SERVICE PROVIDER REQUEST: weigh the necessity of the requested data for " +
		"diagnostics and maintenance. Only share what the owner's policy specifies and " +
		"question data that looks excessive for the stated purpose.",
	"insurance": "INSURANCE PROVIDER REQUEST: insurers request data for risk assessment, " +
		"claims, or usage-based programs. The data must be directly relevant to the policy " +
		"and consent explicitly documented. Be wary of granular location or driving " +
		"behavior data that infringes on privacy.",
	"roadside_unit": "ROADSIDE UNIT REQUEST: RSUs request data for traffic management, " +
		"safety alerts, or infrastructure monitoring. Verify the RSU by its DID. Allow " +
		"non-sensitive safety data, but require explicit consent for location tracking.",
	"manufacturer": "MANUFACTURER REQUEST: manufacturers request data for R&D, updates, " +
		"or remote diagnostics. Verify the manufacturer's DID and keep the request within " +
		"the owner's sharing policy. Be cautious of data usable to profile drivers.",
	"vehicle": "VEHICLE-TO-VEHICLE REQUEST: both vehicles must hold valid DIDs. Share " +
		"only safety-related data such as speed, location, and braking status, and respect " +
		"the privacy settings of both parties.",
}

const defaultRequesterNote = "INDIVIDUAL/UNKNOWN REQUESTER: apply strict data " +
	"minimisation, verify identity, and require clarification and explicit consent."

// CraftPrompt renders the oracle prompt for one request: the request itself,
// the owner's policy matrix, the telemetry snapshot, and per-requester-type
// guidance.
func CraftPrompt(req Request, snap sensors.Snapshot, policies map[string]wallet.Policy) string {
	note, ok := requesterNotes[req.RequesterType]
	if !ok {
		note = defaultRequesterNote
	}
	policyJSON, _ := json.Marshal(policies)
	snapJSON, _ := json.Marshal(snap)

	var b strings.Builder
	fmt.Fprintf(&b, "Evaluate this data sharing request between self-sovereign vehicle identities.\n\n")
	fmt.Fprintf(&b, "Request:\n- Request ID: %s\n- Requester DID: %s\n- Requester type: %s\n- Data type: %s\n- Reason: %s\n- Emergency: %v\n\n",
		req.RequestID, req.RequesterDID, req.RequesterType, req.DataType, req.Reason, req.IsEmergency)
	fmt.Fprintf(&b, "Owner wallet policies (follow these when deciding whether owner approval is needed):\n%s\n\n", policyJSON)
	fmt.Fprintf(&b, "Current vehicle sensor snapshot:\n%s\n\n", snapJSON)
	fmt.Fprintf(&b, "Contextual note for this requester type:\n%s\n\n", note)
	b.WriteString(`Principles: decentralized identity verification, user consent and control, privacy protection, selective disclosure.

Rules:
1. In emergencies, recommend approval for critical data with minimal disclosure.
2. Verify roadside units by DID and require consent for location tracking.
3. Vehicle-to-vehicle sharing covers safety data only.
4. Service providers get only what the owner's policy specifies.

Respond concisely with exactly these markers, each on its own line:
**Decision:** approve or deny
**Justification:** one sentence grounded in the policies, requester type, and sensors
**User Wallet Approval:** yes or no
**Return Requested Data:** the requested data as JSON if approved

User Wallet Approval means the owner must confirm in their wallet. Answer no only when the situation is life threatening and the sensor data confirms it.
Additionally emit the token MOTION_SAFE if acting on this request is safe while the vehicle is moving, and the token SUSPICIOUS if the request looks malicious.
`)
	return b.String()
}
