package chatview

import "wellness-chat/internal/models"

type Receipt int

const (
	ReceiptSent Receipt = iota
	ReceiptRead
	ReceiptReadByAll
)

func (r Receipt) String() string {
	switch r {
	case ReceiptReadByAll:
		return "read by all"
	case ReceiptRead:
		return "read"
	default:
		return "sent"
	}
}

// ReceiptFor computes the receipt shown to self. A message is read by all when
// every current member is in readBy; an empty member set never qualifies.
func ReceiptFor(msg models.Message, members []string, self string) Receipt {
	if len(members) > 0 {
		all := true
		for _, m := range members {
			if !msg.IsReadBy(m) {
				all = false
				break
			}
		}
		if all {
			return ReceiptReadByAll
		}
	}
	if msg.IsReadBy(self) && len(msg.ReadBy) > 1 {
		return ReceiptRead
	}
	return ReceiptSent
}
