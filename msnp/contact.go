package msnp

// List is one of the five server-side contact lists. LST reports membership
// as a bitmask of these values.
type List int

const (
	// ForwardList is the contact list as it appears in the client.
	ForwardList List = 1 << iota

	// AllowList holds the people allowed to talk to you and see your
	// presence when BLP is BL.
	AllowList

	// BlockList holds blocked contacts.
	BlockList

	ReverseList
	PendingList
)

func (l List) String() string {
	switch l {
	case ForwardList:
		return "FL"
	case AllowList:
		return "AL"
	case BlockList:
		return "BL"
	case ReverseList:
		return "RL"
	case PendingList:
		return "PL"
	}
	return ""
}

// ParseListMask expands an LST membership bitmask into lists, ordered
// FL, AL, BL, RL, PL.
func ParseListMask(mask int) []List {
	var lists []List
	for _, l := range []List{ForwardList, AllowList, BlockList, ReverseList, PendingList} {
		if mask&int(l) != 0 {
			lists = append(lists, l)
		}
	}
	return lists
}
