package msnp

// Status is an MSNP presence code as it appears in CHG, NLN and ILN.
type Status string

const (
	StatusOnline        Status = "NLN"
	StatusBusy          Status = "BSY"
	StatusAway          Status = "AWY"
	StatusIdle          Status = "IDL"
	StatusOutToLunch    Status = "LUN"
	StatusOnThePhone    Status = "PHN"
	StatusBeRightBack   Status = "BRB"
	StatusAppearOffline Status = "HDN"
)

// ParseStatus normalizes a wire status code. Servers occasionally invent
// codes; anything unknown is treated as online, which is how the official
// client behaved.
func ParseStatus(code string) Status {
	switch s := Status(code); s {
	case StatusBusy, StatusAway, StatusIdle, StatusOutToLunch,
		StatusOnThePhone, StatusBeRightBack, StatusAppearOffline:
		return s
	default:
		return StatusOnline
	}
}

// Presence is a contact's advertised state: status code, capabilities
// bitfield and, when a display picture is set, its MsnObject XML.
type Presence struct {
	Status    Status
	ClientID  uint64
	MsnObject string
}

// NewPresence returns a presence with the default capabilities.
func NewPresence(status Status, msnObject string) *Presence {
	return &Presence{
		Status:    status,
		ClientID:  DefaultClientCapabilities,
		MsnObject: msnObject,
	}
}
