// Package multi joins several in-process inventories into the single
// Platform the entity manager consumes.
package multi

import (
	"codeberg.org/mutker/chassisctl/internal/platform"
)

// Inventory concatenates the devices of its members in member order.
type Inventory []platform.Inventory

func (inv Inventory) Fans() []platform.FanDevice {
	var out []platform.FanDevice
	for _, m := range inv {
		out = append(out, m.Fans()...)
	}
	return out
}

func (inv Inventory) Temps() []platform.TempDevice {
	var out []platform.TempDevice
	for _, m := range inv {
		out = append(out, m.Temps()...)
	}
	return out
}

func (inv Inventory) PsuSlots() []platform.PsuSlot {
	var out []platform.PsuSlot
	for _, m := range inv {
		out = append(out, m.PsuSlots()...)
	}
	return out
}

// Platform is a local inventory plus the inventories of chassis cards.
type Platform struct {
	local Inventory
	cards []platform.Card
}

var _ platform.Platform = (*Platform)(nil)

func New(members ...platform.Inventory) *Platform {
	p := &Platform{}
	for _, m := range members {
		if m != nil {
			p.local = append(p.local, m)
		}
	}
	return p
}

// AddCard attaches the inventory of the card in slot. Slot 0 is the local
// card and is merged into the platform inventory instead.
func (p *Platform) AddCard(slot int, inv platform.Inventory) {
	if inv == nil {
		return
	}
	if slot == 0 {
		p.local = append(p.local, inv)
		return
	}
	p.cards = append(p.cards, platform.Card{Slot: slot, Inventory: inv})
}

func (p *Platform) Inventory() platform.Inventory {
	return p.local
}

func (p *Platform) Cards() []platform.Card {
	return p.cards
}

// Len is the number of local members.
func (p *Platform) Len() int {
	return len(p.local)
}
