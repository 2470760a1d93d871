package delivery

import (
	"fmt"

	"github.com/zulandar/groupyard/internal/platform"
)

// Kind tags a recipient set.
type Kind string

const (
	KindGroups   Kind = "groups"
	KindNumbers  Kind = "numbers"
	KindContacts Kind = "contacts"
)

var addressers = map[Kind]func(string) string{
	KindGroups:   platform.GroupChatID,
	KindNumbers:  platform.NumberChatID,
	KindContacts: platform.ContactChatID,
}

// Recipients is a homogeneous recipient list.
type Recipients struct {
	Kind Kind     `json:"kind"`
	IDs  []string `json:"ids"`
}

// Validate checks the kind and that there is at least one recipient.
func (r Recipients) Validate() error {
	if _, ok := addressers[r.Kind]; !ok {
		return fmt.Errorf("delivery: unknown recipient kind %q (groups, numbers, contacts)", r.Kind)
	}
	if len(r.IDs) == 0 {
		return fmt.Errorf("delivery: no recipients")
	}
	return nil
}

// ChatID resolves one recipient to its platform chat ID.
func (r Recipients) ChatID(id string) string {
	if f, ok := addressers[r.Kind]; ok {
		return f(id)
	}
	return id
}
