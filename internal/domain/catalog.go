package domain

import "sort"

// Catalog is the set of configured cold rooms
type Catalog struct {
	rooms map[string]ColdRoom
}

// NewCatalog indexes rooms by id; a later duplicate id replaces an earlier one
func NewCatalog(rooms ...ColdRoom) *Catalog {
	c := &Catalog{rooms: make(map[string]ColdRoom, len(rooms))}
	for _, r := range rooms {
		if r.ID == "" {
			continue
		}
		if r.Name == "" {
			r.Name = r.ID
		}
		c.rooms[r.ID] = r
	}
	return c
}

// Lookup finds a room by id
func (c *Catalog) Lookup(id string) (ColdRoom, bool) {
	r, ok := c.rooms[id]
	return r, ok
}

// Require returns the room or ErrUnknownColdRoom
func (c *Catalog) Require(id string) (ColdRoom, error) {
	if id == "" {
		return ColdRoom{}, ErrColdRoomRequired
	}
	r, ok := c.rooms[id]
	if !ok {
		return ColdRoom{}, ErrUnknownColdRoom
	}
	return r, nil
}

// IDs returns room ids in sorted order
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Rooms returns every room sorted by id
func (c *Catalog) Rooms() []ColdRoom {
	out := make([]ColdRoom, 0, len(c.rooms))
	for _, id := range c.IDs() {
		out = append(out, c.rooms[id])
	}
	return out
}
